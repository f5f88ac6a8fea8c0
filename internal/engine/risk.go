package engine

import (
	"glucowatch/internal/config"
	"glucowatch/internal/model"
)

// AssessRisk maps the 30-minute prediction onto a risk level using the
// configured thresholds. Severity is the percentage distance below the
// relevant threshold.
func AssessRisk(pred *model.PredictionResult, alerting config.AlertingConfig) model.RiskAssessment {
	hp, ok := pred.Horizon(30)
	if !ok && len(pred.HorizonPoints) > 0 {
		hp = pred.HorizonPoints[len(pred.HorizonPoints)-1]
	}
	predicted := hp.ValueMgDl

	res := model.RiskAssessment{
		HighThresholdMgDl:   alerting.HighThresholdMgDl,
		MediumThresholdMgDl: alerting.MediumThresholdMgDl,
	}
	switch {
	case predicted < alerting.HighThresholdMgDl:
		res.Level = model.RiskHigh
		res.Severity = clamp((alerting.HighThresholdMgDl-predicted)/alerting.HighThresholdMgDl*100, 0, 100)
		res.Description = "likely hypoglycemia within 30 minutes"
	case predicted < alerting.MediumThresholdMgDl:
		res.Level = model.RiskMedium
		res.Severity = clamp((alerting.MediumThresholdMgDl-predicted)/alerting.MediumThresholdMgDl*100, 0, 100)
		res.Description = "glucose trending low"
	default:
		res.Level = model.RiskLow
		res.Description = "glucose in expected range"
	}
	return res
}

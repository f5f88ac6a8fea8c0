// Package engine implements the glucose prediction pipeline: quality
// assessment, preprocessing, lifestyle-adjusted trend extrapolation,
// confidence scoring, validation, and risk classification. It performs no
// I/O; collaborators hand it a point-in-time snapshot.
package engine

import (
	"fmt"
	"math"
	"time"

	"glucowatch/internal/config"
	"glucowatch/internal/model"
)

type Pipeline struct {
	Horizons       []int
	MaxTrendPoints int
	MinLookback    int
	MaxLookback    int
}

func NewPipeline(cfg config.PredictionConfig) *Pipeline {
	return &Pipeline{
		Horizons:       cfg.Horizons,
		MaxTrendPoints: cfg.MaxTrendPoints,
		MinLookback:    cfg.MinSpanDays,
		MaxLookback:    cfg.MaxSpanDays,
	}
}

// Input is the snapshot a single prediction cycle operates on.
type Input struct {
	Readings     []model.GlucoseReading
	Treatments   []model.TreatmentEvent
	Priors       []model.PredictionResult
	Lookup       HistoryLookup
	Now          time.Time
	LookbackDays int
	Conservative bool
}

type Output struct {
	Quality    model.QualityAssessment
	Trend      model.TrendEstimate
	Lifestyle  LifestyleContext
	Prediction *model.PredictionResult
	Risk       model.RiskAssessment
}

// Run executes one full pipeline pass. A validation failure flagged as
// trend-inconsistent or implausible triggers exactly one conservative
// re-prediction; all other failures degrade to warnings on the result.
func (p *Pipeline) Run(in Input, alerting config.AlertingConfig) (*Output, error) {
	if in.LookbackDays < p.MinLookback || in.LookbackDays > p.MaxLookback {
		return nil, &InsufficientDataError{
			Reason: fmt.Sprintf("lookback of %d days outside [%d,%d]", in.LookbackDays, p.MinLookback, p.MaxLookback),
		}
	}

	quality := AssessQuality(in.Readings, in.Now)
	cleaned := Clean(in.Readings, quality.Tier)
	if required := quality.Tier.MinPoints(); len(cleaned) < required {
		return nil, &InsufficientDataError{
			Points:   len(cleaned),
			Required: required,
			Reason:   fmt.Sprintf("tier %s requires more cleaned readings", quality.Tier),
		}
	}

	lifestyle := ExtractLifestyle(in.Treatments, in.Now)
	trend := EstimateTrend(cleaned, quality.Tier, in.Now, p.MaxTrendPoints)

	var pred *model.PredictionResult
	if in.Conservative {
		pred = ProjectConservative(cleaned, p.Horizons, in.Now)
	} else {
		pred = Project(cleaned, trend, lifestyle, p.Horizons, in.Now)
	}

	current := pred.CurrentValueMgDl
	pred.ConfidenceScore = math.Round(ScoreConfidence(
		len(cleaned), quality, trend.TrendConfidence, in.Now, in.Treatments, current, len(in.Priors))*10) / 10

	if staleMin := in.Now.Sub(cleaned[len(cleaned)-1].Timestamp).Minutes(); staleMin > staleAfterMinutes {
		pred.Warnings = append(pred.Warnings,
			fmt.Sprintf("newest reading is %.0f minutes old", staleMin))
	}

	validation := ValidatePrediction(pred, cleaned, in.Priors, in.Lookup)
	pred.Validation = &validation

	if !validation.IsValid && !in.Conservative &&
		(validation.HasFlag(model.FlagTrendInconsistency) || validation.HasFlag(model.FlagPhysiologicalImplausibility)) {
		retry := ProjectConservative(cleaned, p.Horizons, in.Now)
		retry.ConfidenceScore = pred.ConfidenceScore
		retry.Warnings = append(append(retry.Warnings, pred.Warnings...), validation.Warnings...)
		retry.Validation = &validation
		pred = retry
	} else if len(validation.Warnings) > 0 {
		pred.Warnings = append(pred.Warnings, validation.Warnings...)
	}

	return &Output{
		Quality:    quality,
		Trend:      trend,
		Lifestyle:  lifestyle,
		Prediction: pred,
		Risk:       AssessRisk(pred, alerting),
	}, nil
}

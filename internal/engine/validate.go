package engine

import (
	"fmt"
	"math"
	"time"

	"glucowatch/internal/model"
)

// HistoryLookup finds the stored reading closest to target within the
// tolerance, if any. Backed by the reading store.
type HistoryLookup func(target time.Time, tolerance time.Duration) (model.GlucoseReading, bool)

// ValidatePrediction sanity-checks a prediction on three independent axes:
// agreement with the recent raw trend, accuracy of stored predictions from
// the last day, and physiological plausibility of the projected change.
func ValidatePrediction(pred *model.PredictionResult, readings []model.GlucoseReading,
	priors []model.PredictionResult, lookup HistoryLookup) model.ValidationResult {

	trendScore := trendConsistencyScore(pred, readings)
	historyScore := historicalAccuracyScore(priors, lookup)
	physioScore := physiologicalScore(pred)

	res := model.ValidationResult{
		TrendScore:      trendScore,
		HistoryScore:    historyScore,
		PhysioScore:     physioScore,
		ValidationScore: 0.4*trendScore + 0.3*historyScore + 0.3*physioScore,
		IsValid:         trendScore >= 60 && physioScore >= 70,
	}
	if trendScore < 60 {
		res.Flags = append(res.Flags, model.FlagTrendInconsistency)
		res.Warnings = append(res.Warnings, "predicted change disagrees with the recent glucose trend")
	}
	if historyScore < 60 {
		res.Flags = append(res.Flags, model.FlagHistoricalInaccuracy)
		res.Warnings = append(res.Warnings, "recent predictions have tracked poorly against actual readings")
	}
	if physioScore < 70 {
		res.Flags = append(res.Flags, model.FlagPhysiologicalImplausibility)
		res.Warnings = append(res.Warnings, fmt.Sprintf("projected change of %.0f mg/dL in 30 minutes is physiologically unlikely",
			predictedChange30(pred)))
	}
	return res
}

func predictedChange30(pred *model.PredictionResult) float64 {
	hp, ok := pred.Horizon(30)
	if !ok && len(pred.HorizonPoints) > 0 {
		hp = pred.HorizonPoints[len(pred.HorizonPoints)-1]
	}
	return hp.ValueMgDl - pred.CurrentValueMgDl
}

// trendConsistencyScore compares the prediction's implied 30-minute change
// against the change the last five raw readings project over the same span.
func trendConsistencyScore(pred *model.PredictionResult, readings []model.GlucoseReading) float64 {
	recent := readings
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	if len(recent) < 2 {
		return 60
	}
	var rate float64
	for i := 1; i < len(recent); i++ {
		rate += float64(recent[i].ValueMgDl - recent[i-1].ValueMgDl)
	}
	rate /= float64(len(recent) - 1)
	projected := rate * 30.0 / idealGapMinutes

	diff := math.Abs(predictedChange30(pred) - projected)
	switch {
	case diff <= 2:
		return 100
	case diff <= 5:
		return 80
	case diff <= 10:
		return 60
	default:
		return 30
	}
}

// historicalAccuracyScore grades stored predictions from the last 24 hours
// against the actual reading within ±10 minutes of each target. With no
// comparable pairs it defaults from 70 (no priors) up to 90 (≥15 priors).
func historicalAccuracyScore(priors []model.PredictionResult, lookup HistoryLookup) float64 {
	if lookup == nil {
		return defaultHistoryScore(len(priors))
	}
	var total float64
	var compared int
	for _, prior := range priors {
		for _, hp := range prior.HorizonPoints {
			target := prior.GeneratedAt.Add(time.Duration(hp.MinutesAhead) * time.Minute)
			actual, ok := lookup(target, 10*time.Minute)
			if !ok || actual.ValueMgDl == 0 {
				continue
			}
			errPct := math.Abs(hp.ValueMgDl-float64(actual.ValueMgDl)) / float64(actual.ValueMgDl) * 100
			total += math.Max(0, 100-errPct)
			compared++
		}
	}
	if compared == 0 {
		return defaultHistoryScore(len(priors))
	}
	return total / float64(compared)
}

func defaultHistoryScore(priorCount int) float64 {
	if priorCount > 15 {
		priorCount = 15
	}
	return 70 + float64(priorCount)/15.0*20
}

func physiologicalScore(pred *model.PredictionResult) float64 {
	hp, ok := pred.Horizon(30)
	if !ok && len(pred.HorizonPoints) > 0 {
		hp = pred.HorizonPoints[len(pred.HorizonPoints)-1]
	}
	predicted := hp.ValueMgDl
	if predicted < 20 || predicted > 600 {
		return 0
	}

	score := 100.0
	change := math.Abs(predicted - pred.CurrentValueMgDl)
	switch {
	case change > 50:
		score = 20
	case change > 30:
		score = 50
	case change > 20:
		score = 80
	}

	switch {
	case predicted < 40:
		score = math.Min(score, 30)
	case predicted < 70:
		score = math.Min(score, 70)
	case predicted > 250:
		score = math.Min(score, 80)
	}

	// High current values have more downward headroom; low ones make any
	// large swing riskier to trust.
	if pred.CurrentValueMgDl > 200 {
		score = math.Min(100, score*1.2)
	}
	if pred.CurrentValueMgDl < 80 && change > 15 {
		score = math.Min(score, 60)
	}
	return score
}

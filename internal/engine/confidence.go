package engine

import (
	"math"
	"time"

	"glucowatch/internal/model"
)

// ScoreConfidence blends six independent factors into one 10–100 score.
// Weights sum to 1.0.
func ScoreConfidence(pointCount int, quality model.QualityAssessment, trendConfidence float64,
	now time.Time, treatments []model.TreatmentEvent, currentMgDl float64, priorCount int) float64 {

	volume := math.Min(float64(pointCount)/15.0, 1.0)
	qualityFactor := quality.OverallScore / 100.0
	timeOfDay := timeOfDayFactor(now)
	mealContext := mealContextFactor(treatments, now, currentMgDl)
	history := historyFactor(priorCount)

	sum := volume*0.15 +
		qualityFactor*0.25 +
		trendConfidence*0.20 +
		timeOfDay*0.15 +
		mealContext*0.15 +
		history*0.10

	return clamp(sum*100, 10, 100)
}

// Typical CGM noise by period: quietest overnight, worst around the dawn
// phenomenon hours.
func timeOfDayFactor(now time.Time) float64 {
	switch model.PeriodOf(now) {
	case model.PeriodNight:
		return 0.95
	case model.PeriodMorning:
		return 0.75
	case model.PeriodAfternoon:
		return 0.85
	default:
		return 0.80
	}
}

func mealContextFactor(treatments []model.TreatmentEvent, now time.Time, currentMgDl float64) float64 {
	factor := 0.9
	for _, ev := range treatments {
		if ev.CarbsGrams <= 0 {
			continue
		}
		ago := now.Sub(ev.Timestamp).Minutes()
		// Glucose is hardest to project mid-absorption.
		if ago >= 60 && ago <= 180 {
			factor *= 0.85
			break
		}
	}
	if currentMgDl > 180 || currentMgDl < 70 {
		factor *= 0.9
	}
	return factor
}

// historyFactor rises with the number of stored predictions in the last day,
// capped at 0.75–0.9 absent a ground-truth comparison.
func historyFactor(priorCount int) float64 {
	if priorCount > 15 {
		priorCount = 15
	}
	return 0.75 + float64(priorCount)/15.0*0.15
}

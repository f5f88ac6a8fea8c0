package engine

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"glucowatch/internal/model"
)

const (
	AlgorithmWeightedTrend = "weighted_trend_v2"
	AlgorithmConservative  = "conservative_fallback"
)

// Project extrapolates the newest reading forward to each horizon using the
// weighted trend rate, damped by trend confidence, plus the lifestyle
// adjustment at that horizon.
func Project(readings []model.GlucoseReading, trend model.TrendEstimate, lifestyle LifestyleContext, horizons []int, now time.Time) *model.PredictionResult {
	current := float64(readings[len(readings)-1].ValueMgDl)
	points := make([]model.HorizonPoint, 0, len(horizons))
	for _, h := range horizons {
		timeFactor := float64(h) / idealGapMinutes
		change := trend.AverageChangePerStep*timeFactor*(0.7+0.3*trend.TrendConfidence) + lifestyle.AdjustmentAt(h)
		predicted := current + change
		points = append(points, model.HorizonPoint{
			MinutesAhead: h,
			ValueMgDl:    predicted,
			ValueMmolL:   model.MgDlToMmolL(predicted),
		})
	}
	return &model.PredictionResult{
		ID:                uuid.NewString(),
		GeneratedAt:       now,
		CurrentValueMgDl:  current,
		CurrentValueMmolL: model.MgDlToMmolL(current),
		HorizonPoints:     points,
		AlgorithmTag:      AlgorithmWeightedTrend,
		InputPointCount:   len(readings),
	}
}

// ProjectConservative is the fallback after a validation failure: a damped
// median of the last three deltas, biased away from further extremes and
// clamped to min(0.1×current, 15) mg/dL over the 30-minute horizon.
func ProjectConservative(readings []model.GlucoseReading, horizons []int, now time.Time) *model.PredictionResult {
	current := float64(readings[len(readings)-1].ValueMgDl)
	step := medianRecentDelta(readings, 3) * 0.6

	points := make([]model.HorizonPoint, 0, len(horizons))
	for _, h := range horizons {
		change := step * float64(h) / idealGapMinutes
		if current > 180 {
			change -= math.Abs(change) * 0.1
		} else if current < 80 {
			change += math.Abs(change) * 0.1
		}
		maxAbs := math.Min(0.1*current, 15) * float64(h) / 30.0
		change = clamp(change, -maxAbs, maxAbs)
		predicted := current + change
		points = append(points, model.HorizonPoint{
			MinutesAhead: h,
			ValueMgDl:    predicted,
			ValueMmolL:   model.MgDlToMmolL(predicted),
		})
	}
	return &model.PredictionResult{
		ID:                uuid.NewString(),
		GeneratedAt:       now,
		CurrentValueMgDl:  current,
		CurrentValueMmolL: model.MgDlToMmolL(current),
		HorizonPoints:     points,
		AlgorithmTag:      AlgorithmConservative,
		InputPointCount:   len(readings),
	}
}

func medianRecentDelta(readings []model.GlucoseReading, count int) float64 {
	deltas := make([]float64, 0, count)
	for i := len(readings) - 1; i > 0 && len(deltas) < count; i-- {
		deltas = append(deltas, float64(readings[i].ValueMgDl-readings[i-1].ValueMgDl))
	}
	if len(deltas) == 0 {
		return 0
	}
	sort.Float64s(deltas)
	mid := len(deltas) / 2
	if len(deltas)%2 == 1 {
		return deltas[mid]
	}
	return (deltas[mid-1] + deltas[mid]) / 2
}

package engine

import (
	"math"
	"time"

	"glucowatch/internal/model"
)

// EstimateTrend computes a weighted per-step change rate over the most
// recent window of cleaned readings. Each point carries a recency ramp
// weight multiplied by an individual quality weight, renormalized so the
// weight vector's mean is 1.0.
func EstimateTrend(readings []model.GlucoseReading, tier model.QualityTier, now time.Time, maxPoints int) model.TrendEstimate {
	if maxPoints <= 0 {
		maxPoints = 15
	}
	if len(readings) > maxPoints {
		readings = readings[len(readings)-maxPoints:]
	}
	n := len(readings)
	if n < 2 {
		return model.TrendEstimate{TrendConfidence: 0.1}
	}

	weights := make([]float64, n)
	for i, r := range readings {
		base := 1.0
		if n > 1 {
			base = 0.3 + 0.7*float64(i)/float64(n-1)
		}
		weights[i] = base * pointQuality(r, now)
	}
	normalizeMean(weights)

	changes := make([]float64, 0, n-1)
	weighted := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		change := float64(readings[i].ValueMgDl - readings[i-1].ValueMgDl)
		changes = append(changes, change)
		weighted = append(weighted, change*(weights[i]+weights[i-1])/2)
	}

	var avgWeighted float64
	for _, c := range weighted {
		avgWeighted += c
	}
	avgWeighted /= float64(len(weighted))

	mean, std := meanStd(changes)
	raw := 1.0
	if mean != 0 {
		raw = math.Max(0, 1-std/math.Abs(mean))
	}
	confidence := clamp(raw*tier.TrendMultiplier(), 0.1, 1.0)

	return model.TrendEstimate{
		Weights:              weights,
		AverageChangePerStep: avgWeighted,
		TrendConfidence:      confidence,
	}
}

// pointQuality blends value-range plausibility with freshness. Full weight
// inside [70,250] mg/dL tapering to 0.3 at the [30,400] bounds; full weight
// under 30 minutes old tapering to 0.5 past two hours.
func pointQuality(r model.GlucoseReading, now time.Time) float64 {
	v := float64(r.ValueMgDl)
	var value float64
	switch {
	case v >= 70 && v <= 250:
		value = 1.0
	case v > 250 && v <= 400:
		value = 1.0 - 0.7*(v-250)/150
	case v >= 30 && v < 70:
		value = 1.0 - 0.7*(70-v)/40
	default:
		value = 0.3
	}

	ageMin := now.Sub(r.Timestamp).Minutes()
	var fresh float64
	switch {
	case ageMin <= 30:
		fresh = 1.0
	case ageMin >= 120:
		fresh = 0.5
	default:
		fresh = 1.0 - 0.5*(ageMin-30)/90
	}
	return (value + fresh) / 2
}

func normalizeMean(weights []float64) {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum == 0 {
		return
	}
	mean := sum / float64(len(weights))
	for i := range weights {
		weights[i] /= mean
	}
}

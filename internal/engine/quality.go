package engine

import (
	"math"
	"time"

	"glucowatch/internal/model"
)

const (
	idealGapMinutes = 5.0
	// Beyond this per-step jump a delta is counted as a sensor anomaly.
	maxPlausibleDelta = 10.0
	staleAfterMinutes = 30.0
)

// AssessQuality scores an ascending reading series for timeliness and
// internal consistency and maps the blend onto a tier. Fewer than five
// points is unconditionally CRITICAL.
func AssessQuality(readings []model.GlucoseReading, now time.Time) model.QualityAssessment {
	if len(readings) < 5 {
		return model.QualityAssessment{Tier: model.TierCritical}
	}

	timeliness := timelinessScore(readings, now)
	consistency, anomalies := consistencyScore(readings)
	overall := 0.4*timeliness + 0.6*consistency

	return model.QualityAssessment{
		TimelinessScore:  timeliness,
		ConsistencyScore: consistency,
		OverallScore:     overall,
		Tier:             tierFor(overall),
		AnomalyCount:     anomalies,
	}
}

func timelinessScore(readings []model.GlucoseReading, now time.Time) float64 {
	var totalGap float64
	for i := 1; i < len(readings); i++ {
		gap := readings[i].Timestamp.Sub(readings[i-1].Timestamp).Minutes()
		if gap < 0 {
			gap = 0
		}
		totalGap += gap
	}
	meanGap := totalGap / float64(len(readings)-1)

	var cadence float64
	if meanGap > 0 {
		cadence = math.Min(idealGapMinutes/meanGap, meanGap/idealGapMinutes) * 100
	}

	staleMin := now.Sub(readings[len(readings)-1].Timestamp).Minutes()
	if staleMin > staleAfterMinutes {
		penalty := math.Min(50, (staleMin-staleAfterMinutes)*50.0/60.0)
		cadence -= penalty
	}
	return clamp(cadence, 0, 100)
}

func consistencyScore(readings []model.GlucoseReading) (float64, int) {
	deltas := make([]float64, 0, len(readings)-1)
	anomalies := 0
	for i := 1; i < len(readings); i++ {
		d := math.Abs(float64(readings[i].ValueMgDl - readings[i-1].ValueMgDl))
		if d > maxPlausibleDelta {
			anomalies++
		}
		deltas = append(deltas, d)
	}

	mean, std := meanStd(deltas)
	cov := 0.0
	if mean > 0 {
		cov = std / mean
	}
	anomalyRatio := float64(anomalies) / float64(len(deltas))
	score := 100*(1-cov) - 50*anomalyRatio
	return clamp(score, 0, 100), anomalies
}

func tierFor(overall float64) model.QualityTier {
	switch {
	case overall >= 85:
		return model.TierExcellent
	case overall >= 70:
		return model.TierGood
	case overall >= 50:
		return model.TierFair
	case overall >= 30:
		return model.TierPoor
	default:
		return model.TierCritical
	}
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

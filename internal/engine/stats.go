package engine

import (
	"math"

	"glucowatch/internal/model"
)

// ComputeStats summarizes a reading series in mmol/L: range statistics,
// time in the 3.9–10.0 target band, variability, and estimated HbA1c by
// the ADAG and Nathan formulas.
func ComputeStats(readings []model.GlucoseReading) model.GlucoseStats {
	values := make([]float64, 0, len(readings))
	for _, r := range readings {
		if r.ValueMgDl > 0 {
			values = append(values, r.ValueMmolL())
		}
	}
	if len(values) == 0 {
		return model.GlucoseStats{}
	}

	minV, maxV := values[0], values[0]
	var inRange int
	for _, v := range values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
		if v >= 3.9 && v <= 10.0 {
			inRange++
		}
	}
	mean, std := meanStd(values)

	adag := (mean + 2.59) / 1.59
	nathan := (mean + 2.15) / 1.51

	stats := model.GlucoseStats{
		AvgMmolL:           round1(mean),
		MinMmolL:           round1(minV),
		MaxMmolL:           round1(maxV),
		StdDevMmolL:        math.Round(std*100) / 100,
		InRangeCount:       inRange,
		TotalCount:         len(values),
		InRangePercent:     round1(float64(inRange) / float64(len(values)) * 100),
		HbA1cADAGPercent:   round1(adag),
		HbA1cNathanPercent: round1(nathan),
		HbA1cADAGMmolMol:   math.Round((adag - 2.15) * 10.929),
		HbA1cNathanMmolMol: math.Round((nathan - 2.15) * 10.929),
	}
	if mean > 0 {
		stats.CVPercent = round1(std / mean * 100)
	}
	return stats
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

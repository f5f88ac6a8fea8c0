package engine

import (
	"sort"

	"glucowatch/internal/model"
)

// Clean drops readings outside the hard [1,1000] mg/dL window, tightening
// the bounds when the series quality tier is poor. Readings without a
// usable timestamp are dropped too. The result stays time-ordered; nothing
// is resampled or interpolated.
func Clean(readings []model.GlucoseReading, tier model.QualityTier) []model.GlucoseReading {
	lo, hi := 1, 1000
	switch tier {
	case model.TierCritical:
		lo, hi = 30, 500
	case model.TierPoor:
		lo, hi = 20, 600
	}

	out := make([]model.GlucoseReading, 0, len(readings))
	for _, r := range readings {
		if r.Timestamp.IsZero() {
			continue
		}
		if r.ValueMgDl < lo || r.ValueMgDl > hi {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

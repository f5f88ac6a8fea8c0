package engine

import (
	"math"
	"strings"
	"time"

	"glucowatch/internal/model"
)

const (
	mealWindowMinutes     = 240.0
	exerciseWindowMinutes = 120.0
)

// LifestyleContext is the time-decayed glucose impact of recent meals and
// exercise. CarbImpact is positive, ExerciseImpact negative, both mg/dL.
type LifestyleContext struct {
	CarbImpact     float64
	ExerciseImpact float64
	HasData        bool
}

// AdjustmentAt returns the combined impact applied at a horizon, fading as
// the horizon moves further out.
func (c LifestyleContext) AdjustmentAt(minutesAhead int) float64 {
	if !c.HasData {
		return 0
	}
	fade := math.Max(0.1, 1-float64(minutesAhead)/60.0)
	return (c.CarbImpact + c.ExerciseImpact) * fade * 0.8
}

// ExtractLifestyle scans treatments in the recent meal and exercise windows
// and accumulates their decayed impact.
func ExtractLifestyle(events []model.TreatmentEvent, now time.Time) LifestyleContext {
	var ctx LifestyleContext
	for _, ev := range events {
		ago := now.Sub(ev.Timestamp).Minutes()
		if ago < 0 {
			continue
		}
		switch {
		case ev.Kind == model.TreatmentExercise:
			if ago > exerciseWindowMinutes {
				continue
			}
			decay := math.Max(0.1, 1-ago/exerciseWindowMinutes)
			ctx.ExerciseImpact -= ev.DurationMinutes * 0.2 * exerciseIntensity(ev) * decay * (0.7 + 0.3*decay)
			ctx.HasData = true
		case ev.CarbsGrams > 0:
			if ago > mealWindowMinutes {
				continue
			}
			decay := math.Max(0.1, 1-ago/mealWindowMinutes)
			ctx.CarbImpact += ev.CarbsGrams * 1.2 * decay * (0.8 + 0.2*decay)
			ctx.HasData = true
		}
	}
	return ctx
}

func exerciseIntensity(ev model.TreatmentEvent) float64 {
	text := strings.ToLower(ev.Notes)
	intensity := 1.0
	switch {
	case containsAny(text, "high", "intense", "run", "sprint", "hiit"):
		intensity = 1.5
	case containsAny(text, "moderate", "bike", "cycle", "swim"):
		intensity = 1.2
	case containsAny(text, "light", "walk", "yoga", "stretch"):
		intensity = 0.8
	}
	// Very short sessions barely move glucose; very long ones plateau.
	if ev.DurationMinutes > 0 && ev.DurationMinutes < 10 {
		intensity *= 0.8
	} else if ev.DurationMinutes > 120 {
		intensity *= 0.9
	}
	return intensity
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

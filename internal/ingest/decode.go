package ingest

import (
	"errors"
	"strings"
	"time"

	"glucowatch/internal/model"
)

// wireEntry is the CGM uploader's glucose entry shape. Timestamps arrive
// either as an RFC3339 dateString or an epoch-millisecond date.
type wireEntry struct {
	SGV        int    `json:"sgv"`
	Date       int64  `json:"date"`
	DateString string `json:"dateString"`
	Direction  string `json:"direction"`
	Type       string `json:"type"`
}

type wireTreatment struct {
	EventType string  `json:"eventType"`
	CreatedAt string  `json:"created_at"`
	Timestamp int64   `json:"timestamp"`
	Carbs     float64 `json:"carbs"`
	Duration  float64 `json:"duration"`
	Notes     string  `json:"notes"`
}

var errNoTimestamp = errors.New("entry has no usable timestamp")

func (e wireEntry) toReading() (model.GlucoseReading, error) {
	if e.SGV <= 0 {
		return model.GlucoseReading{}, errors.New("entry has no sgv value")
	}
	ts, err := wireTime(e.DateString, e.Date)
	if err != nil {
		return model.GlucoseReading{}, err
	}
	return model.GlucoseReading{
		Timestamp: ts,
		ValueMgDl: e.SGV,
		Direction: model.Direction(e.Direction),
	}, nil
}

func (t wireTreatment) toTreatment() (model.TreatmentEvent, error) {
	ts, err := wireTime(t.CreatedAt, t.Timestamp)
	if err != nil {
		return model.TreatmentEvent{}, err
	}
	// The uploader event type often carries the only intensity hint
	// ("High Intensity Exercise"); keep it when there are no notes.
	notes := t.Notes
	if notes == "" {
		notes = t.EventType
	}
	return model.TreatmentEvent{
		Timestamp:       ts,
		Kind:            treatmentKind(t.EventType, t.Carbs),
		CarbsGrams:      t.Carbs,
		DurationMinutes: t.Duration,
		Notes:           notes,
	}, nil
}

func wireTime(iso string, epochMillis int64) (time.Time, error) {
	if iso != "" {
		if ts, err := time.Parse(time.RFC3339, iso); err == nil {
			return ts.UTC(), nil
		}
		if ts, err := time.Parse("2006-01-02T15:04:05.000Z0700", iso); err == nil {
			return ts.UTC(), nil
		}
	}
	if epochMillis > 0 {
		return time.UnixMilli(epochMillis).UTC(), nil
	}
	return time.Time{}, errNoTimestamp
}

func treatmentKind(eventType string, carbs float64) model.TreatmentKind {
	switch {
	case strings.Contains(strings.ToLower(eventType), "exercise"):
		return model.TreatmentExercise
	case carbs > 0 || strings.Contains(strings.ToLower(eventType), "carb") ||
		strings.Contains(strings.ToLower(eventType), "meal"):
		return model.TreatmentMeal
	default:
		return model.TreatmentCorrection
	}
}

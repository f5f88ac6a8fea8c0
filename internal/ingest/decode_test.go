package ingest

import (
	"testing"
	"time"

	"glucowatch/internal/model"
)

func TestEntryDecodeDateString(t *testing.T) {
	e := wireEntry{SGV: 142, DateString: "2026-01-05T11:55:00Z", Direction: "Flat"}
	r, err := e.toReading()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.ValueMgDl != 142 || r.Direction != model.DirectionFlat {
		t.Fatalf("wrong reading: %+v", r)
	}
	want := time.Date(2026, 1, 5, 11, 55, 0, 0, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Fatalf("timestamp: got %s want %s", r.Timestamp, want)
	}
}

func TestEntryDecodeEpochMillis(t *testing.T) {
	want := time.Date(2026, 1, 5, 11, 55, 0, 0, time.UTC)
	e := wireEntry{SGV: 98, Date: want.UnixMilli()}
	r, err := e.toReading()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !r.Timestamp.Equal(want) {
		t.Fatalf("timestamp: got %s want %s", r.Timestamp, want)
	}
}

func TestEntryDecodeRejectsBadInput(t *testing.T) {
	if _, err := (wireEntry{SGV: 0, Date: 1}).toReading(); err == nil {
		t.Fatalf("zero sgv should fail")
	}
	if _, err := (wireEntry{SGV: 100}).toReading(); err == nil {
		t.Fatalf("missing timestamp should fail")
	}
}

func TestTreatmentKindMapping(t *testing.T) {
	cases := []struct {
		eventType string
		carbs     float64
		want      model.TreatmentKind
	}{
		{"Meal Bolus", 45, model.TreatmentMeal},
		{"Carb Correction", 0, model.TreatmentMeal},
		{"Exercise", 0, model.TreatmentExercise},
		{"Correction Bolus", 0, model.TreatmentCorrection},
		{"Snack", 20, model.TreatmentMeal},
	}
	for _, tc := range cases {
		got := treatmentKind(tc.eventType, tc.carbs)
		if got != tc.want {
			t.Fatalf("%s (carbs %.0f): got %s want %s", tc.eventType, tc.carbs, got, tc.want)
		}
	}
}

func TestTreatmentEventTypeFallsBackIntoNotes(t *testing.T) {
	wt := wireTreatment{EventType: "High Intensity Exercise", Duration: 30, CreatedAt: "2026-01-05T11:00:00Z"}
	ev, err := wt.toTreatment()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != model.TreatmentExercise {
		t.Fatalf("kind: %s", ev.Kind)
	}
	if ev.Notes != "High Intensity Exercise" {
		t.Fatalf("event type should survive as notes, got %q", ev.Notes)
	}

	withNotes := wireTreatment{EventType: "Exercise", Duration: 30, Notes: "easy walk", CreatedAt: "2026-01-05T11:00:00Z"}
	ev, err = withNotes.toTreatment()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Notes != "easy walk" {
		t.Fatalf("explicit notes must win, got %q", ev.Notes)
	}
}

func TestDecodeKafkaBareEntry(t *testing.T) {
	ev, err := decodeKafka([]byte(`{"sgv": 110, "date": 1767614100000, "direction": "FortyFiveDown"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Reading == nil || ev.Reading.ValueMgDl != 110 {
		t.Fatalf("expected a reading event: %+v", ev)
	}
	if ev.Source != "kafka" {
		t.Fatalf("source: %s", ev.Source)
	}
}

func TestDecodeKafkaWrappedTreatment(t *testing.T) {
	body := `{"kind": "treatment", "treatment": {"eventType": "Exercise", "duration": 30, "created_at": "2026-01-05T11:00:00Z", "notes": "bike"}}`
	ev, err := decodeKafka([]byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Treatment == nil || ev.Treatment.Kind != model.TreatmentExercise {
		t.Fatalf("expected an exercise treatment: %+v", ev)
	}
	if ev.Treatment.DurationMinutes != 30 {
		t.Fatalf("duration: %.0f", ev.Treatment.DurationMinutes)
	}
}

package storage

import (
	"context"
	"testing"
	"time"

	"glucowatch/internal/model"
)

func TestSaveReadingsIfAbsent(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	batch := []model.GlucoseReading{
		{Timestamp: now, ValueMgDl: 120},
		{Timestamp: now.Add(5 * time.Minute), ValueMgDl: 125},
	}
	saved, err := store.SaveReadings(ctx, batch)
	if err != nil || saved != 2 {
		t.Fatalf("first save: saved=%d err=%v", saved, err)
	}
	saved, err = store.SaveReadings(ctx, batch)
	if err != nil || saved != 0 {
		t.Fatalf("duplicate save should be a no-op: saved=%d err=%v", saved, err)
	}

	got, err := store.Readings(ctx, now.Add(-time.Hour))
	if err != nil || len(got) != 2 {
		t.Fatalf("readings: n=%d err=%v", len(got), err)
	}
	if got[0].Timestamp.After(got[1].Timestamp) {
		t.Fatalf("readings not ascending")
	}
}

func TestReadingNearTolerance(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	_, err := store.SaveReadings(ctx, []model.GlucoseReading{
		{Timestamp: now.Add(-8 * time.Minute), ValueMgDl: 110},
		{Timestamp: now.Add(-3 * time.Minute), ValueMgDl: 115},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	r, ok, err := store.ReadingNear(ctx, now, 10*time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected a nearby reading: ok=%v err=%v", ok, err)
	}
	if r.ValueMgDl != 115 {
		t.Fatalf("expected the closest reading, got %d", r.ValueMgDl)
	}

	_, ok, err = store.ReadingNear(ctx, now, 2*time.Minute)
	if err != nil || ok {
		t.Fatalf("tolerance should exclude both readings: ok=%v err=%v", ok, err)
	}
}

func TestAlertStatusCompareAndSet(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	alert := model.Alert{ID: "a1", CreatedAt: now, RiskLevel: model.RiskHigh, Status: model.AlertActive}
	if err := store.SaveAlert(ctx, alert); err != nil {
		t.Fatalf("save alert: %v", err)
	}

	ok, err := store.UpdateAlertStatus(ctx, "a1", model.AlertActive, model.AlertAcknowledged, now)
	if err != nil || !ok {
		t.Fatalf("acknowledge: ok=%v err=%v", ok, err)
	}
	ok, err = store.UpdateAlertStatus(ctx, "a1", model.AlertActive, model.AlertAcknowledged, now)
	if err != nil || ok {
		t.Fatalf("second acknowledge must fail the compare-and-set: ok=%v err=%v", ok, err)
	}

	list, err := store.ListAlerts(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: n=%d err=%v", len(list), err)
	}
	if list[0].Status != model.AlertAcknowledged || list[0].AcknowledgedAt == nil {
		t.Fatalf("acknowledged alert not recorded: %+v", list[0])
	}
}

func TestListAlertsNewestFirst(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		alert := model.Alert{
			ID:        string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Status:    model.AlertActive,
			RiskLevel: model.RiskMedium,
		}
		if err := store.SaveAlert(ctx, alert); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	list, err := store.ListAlerts(ctx, 3)
	if err != nil || len(list) != 3 {
		t.Fatalf("limit ignored: n=%d err=%v", len(list), err)
	}
	if !list[0].CreatedAt.After(list[1].CreatedAt) {
		t.Fatalf("alerts not newest-first")
	}
}

func TestListAlertsStableForEqualTimestamps(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	at := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"first", "second", "third"} {
		if err := store.SaveAlert(ctx, model.Alert{ID: id, CreatedAt: at, Status: model.AlertActive}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	want := []string{"first", "second", "third"}
	for round := 0; round < 3; round++ {
		list, err := store.ListAlerts(ctx, 10)
		if err != nil || len(list) != 3 {
			t.Fatalf("list: n=%d err=%v", len(list), err)
		}
		for i, id := range want {
			if list[i].ID != id {
				t.Fatalf("round %d: order changed: got %s at %d", round, list[i].ID, i)
			}
		}
	}
}

func TestSavePredictionDedupedByID(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	pred := model.PredictionResult{ID: "p1", GeneratedAt: now, CurrentValueMgDl: 120}
	if err := store.SavePrediction(ctx, pred); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SavePrediction(ctx, pred); err != nil {
		t.Fatalf("repeat save: %v", err)
	}
	list, err := store.RecentPredictions(ctx, now.Add(-time.Hour))
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one stored prediction: n=%d err=%v", len(list), err)
	}
}

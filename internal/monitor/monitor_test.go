package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"glucowatch/internal/alerts"
	"glucowatch/internal/config"
	"glucowatch/internal/engine"
	"glucowatch/internal/model"
	"glucowatch/internal/storage"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC)
}

func testMonitor(t *testing.T) (*Monitor, storage.Store) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = "memory"
	manager := config.NewStaticManager(cfg)
	store := storage.NewMemory()

	alertMgr := alerts.NewManager(store, nil, cfg.Notify, cfg.Alerting.StoreLimit, nil)
	alertMgr.SetClock(fixedNow)

	mon := New(store, alertMgr, manager, nil)
	mon.SetClock(fixedNow)
	return mon, store
}

func seedFallingSeries(t *testing.T, store storage.Store) {
	t.Helper()
	now := fixedNow()
	readings := make([]model.GlucoseReading, 0, 15)
	for i := 0; i < 15; i++ {
		readings = append(readings, model.GlucoseReading{
			Timestamp: now.Add(-time.Duration(14-i) * 5 * time.Minute),
			ValueMgDl: 146 - i*4,
		})
	}
	if _, err := store.SaveReadings(context.Background(), readings); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestPredictPersistsAndAlerts(t *testing.T) {
	mon, store := testMonitor(t)
	seedFallingSeries(t, store)
	ctx := context.Background()

	out, err := mon.Predict(ctx, 1, false)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if out.Risk.Level != model.RiskHigh {
		t.Fatalf("expected HIGH risk, got %s", out.Risk.Level)
	}

	preds, err := store.RecentPredictions(ctx, fixedNow().Add(-time.Hour))
	if err != nil || len(preds) != 1 {
		t.Fatalf("prediction not persisted: n=%d err=%v", len(preds), err)
	}

	list, err := mon.ListAlerts(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one alert: n=%d err=%v", len(list), err)
	}
	if list[0].Status != model.AlertActive {
		t.Fatalf("expected ACTIVE alert, got %s", list[0].Status)
	}

	latest, cycles, failures := mon.Status()
	if latest == nil || !latest.AlertRaised || cycles != 1 || failures != 0 {
		t.Fatalf("snapshot wrong: latest=%+v cycles=%d failures=%d", latest, cycles, failures)
	}
}

func TestPersistingRiskAlertsEveryCycle(t *testing.T) {
	mon, store := testMonitor(t)
	seedFallingSeries(t, store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := mon.Predict(ctx, 1, false); err != nil {
			t.Fatalf("predict %d: %v", i, err)
		}
	}
	list, err := mon.ListAlerts(ctx, 10)
	if err != nil || len(list) != 2 {
		t.Fatalf("each cycle must raise its own alert: n=%d err=%v", len(list), err)
	}
}

func TestAcknowledgeThroughMonitor(t *testing.T) {
	mon, store := testMonitor(t)
	seedFallingSeries(t, store)
	ctx := context.Background()

	if _, err := mon.Predict(ctx, 1, false); err != nil {
		t.Fatalf("predict: %v", err)
	}
	list, err := mon.ListAlerts(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("alerts: n=%d err=%v", len(list), err)
	}
	id := list[0].ID

	if err := mon.AcknowledgeAlert(ctx, id); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if err := mon.AcknowledgeAlert(ctx, id); !errors.Is(err, alerts.ErrNotFoundOrHandled) {
		t.Fatalf("repeat acknowledge should conflict, got %v", err)
	}
}

func TestPredictWithEmptyStoreFails(t *testing.T) {
	mon, _ := testMonitor(t)

	_, err := mon.Predict(context.Background(), 1, false)
	var insufficient *engine.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient data, got %v", err)
	}

	latest, cycles, failures := mon.Status()
	if latest == nil || latest.Err == "" || cycles != 1 || failures != 1 {
		t.Fatalf("failed cycle not recorded: latest=%+v cycles=%d failures=%d", latest, cycles, failures)
	}
}

func TestConservativePredictOnDemand(t *testing.T) {
	mon, store := testMonitor(t)
	seedFallingSeries(t, store)

	out, err := mon.Predict(context.Background(), 1, true)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if out.Prediction.AlgorithmTag != engine.AlgorithmConservative {
		t.Fatalf("expected conservative algorithm, got %s", out.Prediction.AlgorithmTag)
	}
}

func TestStats(t *testing.T) {
	mon, store := testMonitor(t)
	now := fixedNow()
	readings := make([]model.GlucoseReading, 0, 10)
	for i := 0; i < 10; i++ {
		readings = append(readings, model.GlucoseReading{
			Timestamp: now.Add(-time.Duration(i) * 10 * time.Minute),
			ValueMgDl: 90,
		})
	}
	if _, err := store.SaveReadings(context.Background(), readings); err != nil {
		t.Fatalf("seed: %v", err)
	}

	stats, err := mon.Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalCount != 10 || stats.AvgMmolL != 5.0 {
		t.Fatalf("stats wrong: %+v", stats)
	}
	if stats.InRangePercent != 100 {
		t.Fatalf("90 mg/dL is in range: %+v", stats)
	}
	if stats.HbA1cADAGPercent != 4.8 || stats.HbA1cNathanPercent != 4.7 {
		t.Fatalf("hba1c estimates wrong: %+v", stats)
	}
}

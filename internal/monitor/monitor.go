// Package monitor runs the prediction cycle: it pulls readings and
// treatments from the store, drives the engine pipeline, persists the
// result, and raises alerts for risky predictions. Cycles run serialized on
// a ticker and on demand through Predict.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"glucowatch/internal/alerts"
	"glucowatch/internal/config"
	"glucowatch/internal/engine"
	"glucowatch/internal/model"
	"glucowatch/internal/storage"
)

const historyTolerance = 10 * time.Minute

type Monitor struct {
	store    storage.Store
	alerts   *alerts.Manager
	manager  *config.Manager
	logger   *slog.Logger
	snapshot snapshotStore

	mu  sync.Mutex
	now func() time.Time
}

func New(store storage.Store, alertMgr *alerts.Manager, manager *config.Manager, logger *slog.Logger) *Monitor {
	return &Monitor{
		store:   store,
		alerts:  alertMgr,
		manager: manager,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Predict runs one prediction cycle for the given lookback. The mutex keeps
// a manual trigger from overlapping a scheduled cycle.
func (m *Monitor) Predict(ctx context.Context, lookbackDays int, conservative bool) (*engine.Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	started := m.now().UTC()
	cfg := m.manager.Get()
	if lookbackDays <= 0 {
		lookbackDays = cfg.Prediction.LookbackDays
	}

	out, err := m.runCycle(ctx, cfg, lookbackDays, conservative, started)
	snap := CycleSnapshot{RanAt: started, DurationMillis: m.now().Sub(started).Milliseconds()}
	if err != nil {
		snap.Err = err.Error()
		m.snapshot.set(snap)
		return nil, err
	}
	snap.Quality = &out.Quality
	snap.Prediction = out.Prediction
	snap.Risk = &out.Risk
	snap.AlertRaised = out.Risk.Level != model.RiskLow && cfg.Alerting.AlertsEnabled
	m.snapshot.set(snap)
	return out, nil
}

func (m *Monitor) runCycle(ctx context.Context, cfg *config.Config, lookbackDays int, conservative bool, now time.Time) (*engine.Output, error) {
	since := now.Add(-time.Duration(lookbackDays) * 24 * time.Hour)

	readings, err := m.store.Readings(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load readings: %w", err)
	}
	treatments, err := m.store.Treatments(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load treatments: %w", err)
	}
	priors, err := m.store.RecentPredictions(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("load predictions: %w", err)
	}

	pipeline := engine.NewPipeline(cfg.Prediction)
	out, err := pipeline.Run(engine.Input{
		Readings:     readings,
		Treatments:   treatments,
		Priors:       priors,
		Lookup:       m.historyLookup(ctx),
		Now:          now,
		LookbackDays: lookbackDays,
		Conservative: conservative,
	}, cfg.Alerting)
	if err != nil {
		if m.logger != nil {
			m.logger.Info("prediction cycle skipped", "reason", err.Error())
		}
		return nil, err
	}

	if err := m.store.SavePrediction(ctx, *out.Prediction); err != nil {
		return nil, fmt.Errorf("save prediction: %w", err)
	}
	if m.logger != nil {
		m.logger.Info("prediction generated",
			"prediction_id", out.Prediction.ID,
			"algorithm", out.Prediction.AlgorithmTag,
			"confidence", out.Prediction.ConfidenceScore,
			"risk_level", string(out.Risk.Level),
			"input_points", out.Prediction.InputPointCount)
	}

	if _, err := m.alerts.Raise(ctx, out.Prediction, out.Risk, cfg.Alerting); err != nil {
		if m.logger != nil {
			m.logger.Error("raise alert", "error", err)
		}
	}
	return out, nil
}

// historyLookup adapts the store into the engine's reading lookup.
func (m *Monitor) historyLookup(ctx context.Context) engine.HistoryLookup {
	return func(target time.Time, tolerance time.Duration) (model.GlucoseReading, bool) {
		if tolerance <= 0 {
			tolerance = historyTolerance
		}
		r, ok, err := m.store.ReadingNear(ctx, target, tolerance)
		if err != nil {
			if m.logger != nil {
				m.logger.Error("history lookup", "error", err)
			}
			return model.GlucoseReading{}, false
		}
		return r, ok
	}
}

func (m *Monitor) AcknowledgeAlert(ctx context.Context, id string) error {
	return m.alerts.Acknowledge(ctx, id)
}

func (m *Monitor) DismissAlert(ctx context.Context, id string) error {
	return m.alerts.Dismiss(ctx, id)
}

func (m *Monitor) ListAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	return m.alerts.List(ctx, limit)
}

// RecentAlerts serves the in-memory alert ring, avoiding a store round
// trip on the status path.
func (m *Monitor) RecentAlerts(limit int) []model.Alert {
	return m.alerts.Recent(limit)
}

// Stats summarizes the stored readings over the given number of days.
func (m *Monitor) Stats(ctx context.Context, days int) (model.GlucoseStats, error) {
	if days <= 0 {
		days = 1
	}
	readings, err := m.store.Readings(ctx, m.now().UTC().Add(-time.Duration(days)*24*time.Hour))
	if err != nil {
		return model.GlucoseStats{}, fmt.Errorf("load readings: %w", err)
	}
	return engine.ComputeStats(readings), nil
}

// Status reports the latest cycle outcome plus cycle counters.
func (m *Monitor) Status() (latest *CycleSnapshot, cycles, failures int64) {
	return m.snapshot.get()
}

// Run drives scheduled prediction cycles until ctx is cancelled. The
// interval tracks config reloads between ticks.
func (m *Monitor) Run(ctx context.Context) {
	cfg := m.manager.Get()
	if !cfg.Prediction.Enabled {
		if m.logger != nil {
			m.logger.Info("scheduled prediction disabled")
		}
		return
	}
	interval := time.Duration(cfg.Prediction.IntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if m.logger != nil {
		m.logger.Info("prediction scheduler started", "interval", interval.String())
	}
	for {
		select {
		case <-ticker.C:
			cfg = m.manager.Get()
			if !cfg.Prediction.Enabled {
				continue
			}
			if next := time.Duration(cfg.Prediction.IntervalMinutes) * time.Minute; next != interval && next > 0 {
				interval = next
				ticker.Reset(interval)
			}
			if _, err := m.Predict(ctx, cfg.Prediction.LookbackDays, false); err != nil {
				if m.logger != nil {
					m.logger.Warn("scheduled prediction failed", "error", err)
				}
			}
		case <-ctx.Done():
			if m.logger != nil {
				m.logger.Info("prediction scheduler stopped")
			}
			return
		}
	}
}

// Package alerts manages the lifecycle of hypoglycemia alerts: creation
// from risk assessments, notification dispatch, and status transitions.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"glucowatch/internal/config"
	"glucowatch/internal/model"
	"glucowatch/internal/notify"
	"glucowatch/internal/storage"
)

// ErrNotFoundOrHandled marks a status transition that matched no alert in
// the expected state. A second acknowledge of the same alert lands here.
var ErrNotFoundOrHandled = errors.New("alert not found or already handled")

type Manager struct {
	store    storage.Store
	notifier notify.Notifier
	ring     *Ring
	logger   *slog.Logger

	maxAttempts int
	backoffSeed time.Duration

	dispatches sync.WaitGroup
	now        func() time.Time
}

func NewManager(store storage.Store, notifier notify.Notifier, cfg config.NotifyConfig, storeLimit int, logger *slog.Logger) *Manager {
	return &Manager{
		store:       store,
		notifier:    notifier,
		ring:        NewRing(storeLimit),
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		backoffSeed: time.Duration(cfg.BackoffSeedSeconds) * time.Second,
		now:         time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Raise records a fresh ACTIVE alert for a non-LOW risk assessment. Every
// qualifying prediction cycle produces its own alert; an unresolved risk
// keeps surfacing until someone acts on it.
func (m *Manager) Raise(ctx context.Context, pred *model.PredictionResult, risk model.RiskAssessment, alerting config.AlertingConfig) (*model.Alert, error) {
	if !alerting.AlertsEnabled || risk.Level == model.RiskLow {
		return nil, nil
	}
	hp, ok := pred.Horizon(30)
	if !ok && len(pred.HorizonPoints) > 0 {
		hp = pred.HorizonPoints[len(pred.HorizonPoints)-1]
	}

	alert := model.Alert{
		ID:                  uuid.NewString(),
		CreatedAt:           m.now().UTC(),
		PredictedValueMgDl:  hp.ValueMgDl,
		PredictedValueMmolL: hp.ValueMmolL,
		RiskLevel:           risk.Level,
		Status:              model.AlertActive,
	}
	if err := m.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}
	m.ring.Add(alert)

	if m.logger != nil {
		m.logger.Warn("alert raised",
			"alert_id", alert.ID,
			"risk_level", string(risk.Level),
			"predicted_mgdl", alert.PredictedValueMgDl,
			"severity", risk.Severity)
	}

	m.dispatches.Add(1)
	go func() {
		defer m.dispatches.Done()
		m.dispatch(alert, risk)
	}()
	return &alert, nil
}

// Wait blocks until every in-flight notification dispatch has finished.
// Used on shutdown and by tests.
func (m *Manager) Wait() {
	m.dispatches.Wait()
}

// dispatch sends the notification off the prediction path with retries.
func (m *Manager) dispatch(alert model.Alert, risk model.RiskAssessment) {
	if m.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	title := fmt.Sprintf("Glucose alert: %s risk", risk.Level)
	body := fmt.Sprintf("%s\nPredicted glucose in 30 minutes: %.0f mg/dL (%.1f mmol/L)\nSeverity: %.0f%%\nAlert ID: %s",
		risk.Description, alert.PredictedValueMgDl, alert.PredictedValueMmolL, risk.Severity, alert.ID)

	err := notify.WithRetry(ctx, m.maxAttempts, m.backoffSeed, func(ctx context.Context) error {
		return m.notifier.Send(ctx, title, body)
	})
	if err != nil {
		if m.logger != nil {
			m.logger.Error("alert notification failed", "alert_id", alert.ID, "error", err)
		}
		return
	}
	at := m.now().UTC()
	if err := m.store.MarkAlertNotified(ctx, alert.ID, at); err != nil {
		if m.logger != nil {
			m.logger.Error("mark alert notified", "alert_id", alert.ID, "error", err)
		}
		return
	}
	m.ring.MarkNotified(alert.ID, at)
}

// Acknowledge moves an ACTIVE alert to ACKNOWLEDGED. The transition is a
// compare-and-set against the stored status, so a repeat acknowledge or an
// acknowledge of a dismissed alert fails with ErrNotFoundOrHandled.
func (m *Manager) Acknowledge(ctx context.Context, id string) error {
	return m.transition(ctx, id, model.AlertActive, model.AlertAcknowledged)
}

// Dismiss moves an ACTIVE alert to DISMISSED.
func (m *Manager) Dismiss(ctx context.Context, id string) error {
	return m.transition(ctx, id, model.AlertActive, model.AlertDismissed)
}

func (m *Manager) transition(ctx context.Context, id string, from, to model.AlertStatus) error {
	at := m.now().UTC()
	ok, err := m.store.UpdateAlertStatus(ctx, id, from, to, at)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	if !ok {
		return ErrNotFoundOrHandled
	}
	m.ring.SetStatus(id, to, at)
	if m.logger != nil {
		m.logger.Info("alert status changed", "alert_id", id, "status", string(to))
	}
	return nil
}

func (m *Manager) List(ctx context.Context, limit int) ([]model.Alert, error) {
	return m.store.ListAlerts(ctx, limit)
}

// Recent returns alerts from the in-memory ring without a store round trip.
func (m *Manager) Recent(limit int) []model.Alert {
	return m.ring.List(limit)
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"glucowatch/internal/config"
	"glucowatch/internal/model"
)

// Store is the persistent reading/prediction/alert store consumed by the
// monitor. Readings and treatments are written if-absent; predictions are
// append-only; alerts mutate only through status transitions.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	SaveReadings(ctx context.Context, readings []model.GlucoseReading) (int, error)
	SaveTreatments(ctx context.Context, events []model.TreatmentEvent) (int, error)
	Readings(ctx context.Context, since time.Time) ([]model.GlucoseReading, error)
	Treatments(ctx context.Context, since time.Time) ([]model.TreatmentEvent, error)
	ReadingNear(ctx context.Context, target time.Time, tolerance time.Duration) (model.GlucoseReading, bool, error)

	SavePrediction(ctx context.Context, pred model.PredictionResult) error
	RecentPredictions(ctx context.Context, since time.Time) ([]model.PredictionResult, error)

	SaveAlert(ctx context.Context, alert model.Alert) error
	UpdateAlertStatus(ctx context.Context, id string, from, to model.AlertStatus, at time.Time) (bool, error)
	MarkAlertNotified(ctx context.Context, id string, at time.Time) error
	ListAlerts(ctx context.Context, limit int) ([]model.Alert, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func closestReading(rows *sql.Rows, target time.Time) (model.GlucoseReading, bool, error) {
	defer rows.Close()
	var best model.GlucoseReading
	found := false
	for rows.Next() {
		var tsMillis int64
		var value int
		var direction string
		if err := rows.Scan(&tsMillis, &value, &direction); err != nil {
			return model.GlucoseReading{}, false, err
		}
		r := model.GlucoseReading{
			Timestamp: time.UnixMilli(tsMillis).UTC(),
			ValueMgDl: value,
			Direction: model.Direction(direction),
		}
		if !found || absDuration(r.Timestamp.Sub(target)) < absDuration(best.Timestamp.Sub(target)) {
			best = r
			found = true
		}
	}
	return best, found, rows.Err()
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

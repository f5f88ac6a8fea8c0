package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"glucowatch/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:glucowatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			value_mgdl INTEGER NOT NULL,
			direction TEXT NOT NULL DEFAULT '',
			UNIQUE(ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts)`,
		`CREATE TABLE IF NOT EXISTS treatments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			kind TEXT NOT NULL,
			carbs_grams REAL NOT NULL DEFAULT 0,
			duration_min REAL NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			UNIQUE(ts, kind, carbs_grams)
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			generated_at INTEGER NOT NULL,
			current_mgdl REAL NOT NULL,
			confidence REAL NOT NULL,
			algorithm TEXT NOT NULL,
			input_points INTEGER NOT NULL,
			horizons_json TEXT NOT NULL,
			warnings_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_generated ON predictions(generated_at)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			predicted_mgdl REAL NOT NULL,
			predicted_mmol REAL NOT NULL,
			risk_level TEXT NOT NULL,
			status TEXT NOT NULL,
			acknowledged_at INTEGER,
			notification_sent INTEGER NOT NULL DEFAULT 0,
			notification_sent_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveReadings(ctx context.Context, readings []model.GlucoseReading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO readings (ts, value_mgdl, direction) VALUES (?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	saved := 0
	for _, r := range readings {
		res, err := stmt.ExecContext(ctx, r.Timestamp.UnixMilli(), r.ValueMgDl, string(r.Direction))
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			saved++
		}
	}
	return saved, tx.Commit()
}

func (s *sqliteStore) SaveTreatments(ctx context.Context, events []model.TreatmentEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO treatments (ts, kind, carbs_grams, duration_min, notes) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	saved := 0
	for _, ev := range events {
		res, err := stmt.ExecContext(ctx, ev.Timestamp.UnixMilli(), string(ev.Kind), ev.CarbsGrams, ev.DurationMinutes, ev.Notes)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			saved++
		}
	}
	return saved, tx.Commit()
}

func (s *sqliteStore) Readings(ctx context.Context, since time.Time) ([]model.GlucoseReading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, value_mgdl, direction FROM readings WHERE ts >= ? ORDER BY ts ASC`,
		since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.GlucoseReading
	for rows.Next() {
		var ts int64
		var value int
		var direction string
		if err := rows.Scan(&ts, &value, &direction); err != nil {
			return nil, err
		}
		out = append(out, model.GlucoseReading{
			Timestamp: time.UnixMilli(ts).UTC(),
			ValueMgDl: value,
			Direction: model.Direction(direction),
		})
	}
	return out, rows.Err()
}

func (s *sqliteStore) Treatments(ctx context.Context, since time.Time) ([]model.TreatmentEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, kind, carbs_grams, duration_min, notes FROM treatments WHERE ts >= ? ORDER BY ts ASC`,
		since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TreatmentEvent
	for rows.Next() {
		var ts int64
		var kind, notes string
		var carbs, duration float64
		if err := rows.Scan(&ts, &kind, &carbs, &duration, &notes); err != nil {
			return nil, err
		}
		out = append(out, model.TreatmentEvent{
			Timestamp:       time.UnixMilli(ts).UTC(),
			Kind:            model.TreatmentKind(kind),
			CarbsGrams:      carbs,
			DurationMinutes: duration,
			Notes:           notes,
		})
	}
	return out, rows.Err()
}

func (s *sqliteStore) ReadingNear(ctx context.Context, target time.Time, tolerance time.Duration) (model.GlucoseReading, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, value_mgdl, direction FROM readings WHERE ts >= ? AND ts <= ? ORDER BY ts ASC`,
		target.Add(-tolerance).UnixMilli(), target.Add(tolerance).UnixMilli())
	if err != nil {
		return model.GlucoseReading{}, false, err
	}
	return closestReading(rows, target)
}

func (s *sqliteStore) SavePrediction(ctx context.Context, pred model.PredictionResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO predictions (id, generated_at, current_mgdl, confidence, algorithm, input_points, horizons_json, warnings_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pred.ID,
		pred.GeneratedAt.UnixMilli(),
		pred.CurrentValueMgDl,
		pred.ConfidenceScore,
		pred.AlgorithmTag,
		pred.InputPointCount,
		encodeJSON(pred.HorizonPoints),
		encodeJSON(pred.Warnings),
	)
	return err
}

func (s *sqliteStore) RecentPredictions(ctx context.Context, since time.Time) ([]model.PredictionResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, generated_at, current_mgdl, confidence, algorithm, input_points, horizons_json
		FROM predictions WHERE generated_at >= ? ORDER BY generated_at ASC`,
		since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PredictionResult
	for rows.Next() {
		var p model.PredictionResult
		var ts int64
		var horizons string
		if err := rows.Scan(&p.ID, &ts, &p.CurrentValueMgDl, &p.ConfidenceScore, &p.AlgorithmTag, &p.InputPointCount, &horizons); err != nil {
			return nil, err
		}
		p.GeneratedAt = time.UnixMilli(ts).UTC()
		p.CurrentValueMmolL = model.MgDlToMmolL(p.CurrentValueMgDl)
		_ = json.Unmarshal([]byte(horizons), &p.HorizonPoints)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, created_at, predicted_mgdl, predicted_mmol, risk_level, status, notification_sent)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.CreatedAt.UnixMilli(),
		alert.PredictedValueMgDl,
		alert.PredictedValueMmolL,
		string(alert.RiskLevel),
		string(alert.Status),
		boolToInt(alert.NotificationSent),
	)
	return err
}

func (s *sqliteStore) UpdateAlertStatus(ctx context.Context, id string, from, to model.AlertStatus, at time.Time) (bool, error) {
	var res sql.Result
	var err error
	if to == model.AlertAcknowledged {
		res, err = s.db.ExecContext(ctx,
			`UPDATE alerts SET status = ?, acknowledged_at = ? WHERE id = ? AND status = ?`,
			string(to), at.UnixMilli(), id, string(from))
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE alerts SET status = ? WHERE id = ? AND status = ?`,
			string(to), id, string(from))
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) MarkAlertNotified(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET notification_sent = 1, notification_sent_at = ? WHERE id = ?`,
		at.UnixMilli(), id)
	return err
}

func (s *sqliteStore) ListAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, predicted_mgdl, predicted_mmol, risk_level, status, acknowledged_at, notification_sent, notification_sent_at
		FROM alerts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func scanAlerts(rows *sql.Rows) ([]model.Alert, error) {
	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var created int64
		var acked, notified sql.NullInt64
		var sent int
		var risk, status string
		if err := rows.Scan(&a.ID, &created, &a.PredictedValueMgDl, &a.PredictedValueMmolL, &risk, &status, &acked, &sent, &notified); err != nil {
			return nil, err
		}
		a.CreatedAt = time.UnixMilli(created).UTC()
		a.RiskLevel = model.RiskLevel(risk)
		a.Status = model.AlertStatus(status)
		a.NotificationSent = sent != 0
		if acked.Valid {
			t := time.UnixMilli(acked.Int64).UTC()
			a.AcknowledgedAt = &t
		}
		if notified.Valid {
			t := time.UnixMilli(notified.Int64).UTC()
			a.NotificationSentAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

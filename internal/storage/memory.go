package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"glucowatch/internal/model"
)

// memoryStore keeps everything in process memory. It backs tests and the
// "memory" storage driver.
type memoryStore struct {
	mu          sync.RWMutex
	readings    map[int64]model.GlucoseReading
	treatments  map[treatmentKey]model.TreatmentEvent
	predictions []model.PredictionResult
	alerts      []model.Alert
}

type treatmentKey struct {
	ts    int64
	kind  model.TreatmentKind
	carbs float64
}

func NewMemory() Store {
	return &memoryStore{
		readings:   make(map[int64]model.GlucoseReading),
		treatments: make(map[treatmentKey]model.TreatmentEvent),
	}
}

func (s *memoryStore) Init(ctx context.Context) error { return nil }
func (s *memoryStore) Close() error                   { return nil }

func (s *memoryStore) SaveReadings(ctx context.Context, readings []model.GlucoseReading) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := 0
	for _, r := range readings {
		key := r.Timestamp.UnixMilli()
		if _, ok := s.readings[key]; ok {
			continue
		}
		s.readings[key] = r
		saved++
	}
	return saved, nil
}

func (s *memoryStore) SaveTreatments(ctx context.Context, events []model.TreatmentEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := 0
	for _, ev := range events {
		key := treatmentKey{ts: ev.Timestamp.UnixMilli(), kind: ev.Kind, carbs: ev.CarbsGrams}
		if _, ok := s.treatments[key]; ok {
			continue
		}
		s.treatments[key] = ev
		saved++
	}
	return saved, nil
}

func (s *memoryStore) Readings(ctx context.Context, since time.Time) ([]model.GlucoseReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.GlucoseReading
	for _, r := range s.readings {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *memoryStore) Treatments(ctx context.Context, since time.Time) ([]model.TreatmentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.TreatmentEvent
	for _, ev := range s.treatments {
		if !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *memoryStore) ReadingNear(ctx context.Context, target time.Time, tolerance time.Duration) (model.GlucoseReading, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best model.GlucoseReading
	found := false
	for _, r := range s.readings {
		if absDuration(r.Timestamp.Sub(target)) > tolerance {
			continue
		}
		if !found || absDuration(r.Timestamp.Sub(target)) < absDuration(best.Timestamp.Sub(target)) {
			best = r
			found = true
		}
	}
	return best, found, nil
}

func (s *memoryStore) SavePrediction(ctx context.Context, pred model.PredictionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.predictions {
		if p.ID == pred.ID {
			return nil
		}
	}
	s.predictions = append(s.predictions, pred)
	return nil
}

func (s *memoryStore) RecentPredictions(ctx context.Context, since time.Time) ([]model.PredictionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.PredictionResult
	for _, p := range s.predictions {
		if !p.GeneratedAt.Before(since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.Before(out[j].GeneratedAt) })
	return out, nil
}

func (s *memoryStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *memoryStore) UpdateAlertStatus(ctx context.Context, id string, from, to model.AlertStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID != id || s.alerts[i].Status != from {
			continue
		}
		s.alerts[i].Status = to
		if to == model.AlertAcknowledged {
			t := at
			s.alerts[i].AcknowledgedAt = &t
		}
		return true, nil
	}
	return false, nil
}

func (s *memoryStore) MarkAlertNotified(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			t := at
			s.alerts[i].NotificationSent = true
			s.alerts[i].NotificationSentAt = &t
			return nil
		}
	}
	return nil
}

func (s *memoryStore) ListAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]model.Alert, len(s.alerts))
	copy(out, s.alerts)
	// Stable so alerts sharing a timestamp keep insertion order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

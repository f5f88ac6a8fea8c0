package monitor

import (
	"sync"
	"time"

	"glucowatch/internal/model"
)

// CycleSnapshot is the outcome of the most recent prediction cycle, kept in
// memory for the status endpoint.
type CycleSnapshot struct {
	RanAt          time.Time                `json:"ran_at"`
	Quality        *model.QualityAssessment `json:"quality,omitempty"`
	Prediction     *model.PredictionResult  `json:"prediction,omitempty"`
	Risk           *model.RiskAssessment    `json:"risk,omitempty"`
	AlertRaised    bool                     `json:"alert_raised"`
	Err            string                   `json:"error,omitempty"`
	DurationMillis int64                    `json:"duration_millis"`
}

type snapshotStore struct {
	mu       sync.RWMutex
	latest   *CycleSnapshot
	cycles   int64
	failures int64
}

func (s *snapshotStore) set(snap CycleSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &snap
	s.cycles++
	if snap.Err != "" {
		s.failures++
	}
}

func (s *snapshotStore) get() (*CycleSnapshot, int64, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.cycles, s.failures
}

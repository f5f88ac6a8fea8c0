package alerts

import (
	"sync"
	"time"

	"glucowatch/internal/model"
)

// Ring is a bounded in-memory buffer of recent alerts, used by the status
// endpoint so it never touches the database on the hot path. Status
// transitions and notification marks are mirrored into the buffer so reads
// stay consistent with the store.
type Ring struct {
	mu    sync.RWMutex
	buf   []model.Alert
	limit int
}

func NewRing(limit int) *Ring {
	if limit <= 0 {
		limit = 1000
	}
	return &Ring{limit: limit}
}

func (r *Ring) Add(alert model.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) < r.limit {
		r.buf = append(r.buf, alert)
		return
	}
	copy(r.buf, r.buf[1:])
	r.buf[len(r.buf)-1] = alert
}

func (r *Ring) List(limit int) []model.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.buf) {
		limit = len(r.buf)
	}
	out := make([]model.Alert, 0, limit)
	start := len(r.buf) - limit
	if start < 0 {
		start = 0
	}
	for i := start; i < len(r.buf); i++ {
		out = append(out, r.buf[i])
	}
	return out
}

// SetStatus mirrors a store status transition into the buffer. A no-op for
// alerts already evicted.
func (r *Ring) SetStatus(id string, status model.AlertStatus, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.buf {
		if r.buf[i].ID != id {
			continue
		}
		r.buf[i].Status = status
		if status == model.AlertAcknowledged {
			t := at
			r.buf[i].AcknowledgedAt = &t
		}
		return
	}
}

// MarkNotified mirrors a successful notification dispatch into the buffer.
func (r *Ring) MarkNotified(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.buf {
		if r.buf[i].ID != id {
			continue
		}
		t := at
		r.buf[i].NotificationSent = true
		r.buf[i].NotificationSentAt = &t
		return
	}
}

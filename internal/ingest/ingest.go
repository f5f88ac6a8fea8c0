// Package ingest accepts glucose readings and treatment events over REST
// and Kafka, decodes the CGM uploader wire format, and feeds the store
// through a buffered channel.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"glucowatch/internal/model"
	"glucowatch/internal/storage"
)

// Event is one decoded ingest item: exactly one of Reading or Treatment is
// set.
type Event struct {
	Reading   *model.GlucoseReading
	Treatment *model.TreatmentEvent
	Source    string
}

func SendNonBlocking(ctx context.Context, out chan<- Event, ev Event, logger *slog.Logger) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("ingest channel full, dropping event", "source", ev.Source)
		}
		return false
	}
}

// StartWriter drains the ingest channel into the store. Events are batched
// on a short flush interval to keep insert pressure down during catch-up
// syncs.
func StartWriter(ctx context.Context, store storage.Store, in <-chan Event, logger *slog.Logger) {
	go func() {
		var readings []model.GlucoseReading
		var treatments []model.TreatmentEvent
		flush := func() {
			// ctx may already be cancelled on shutdown; writes get their
			// own deadline so the final flush still lands.
			wctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if len(readings) > 0 {
				saved, err := store.SaveReadings(wctx, readings)
				if err != nil {
					if logger != nil {
						logger.Error("save readings", "error", err)
					}
				} else if logger != nil && saved > 0 {
					logger.Debug("readings saved", "count", saved, "received", len(readings))
				}
				readings = readings[:0]
			}
			if len(treatments) > 0 {
				saved, err := store.SaveTreatments(wctx, treatments)
				if err != nil {
					if logger != nil {
						logger.Error("save treatments", "error", err)
					}
				} else if logger != nil && saved > 0 {
					logger.Debug("treatments saved", "count", saved, "received", len(treatments))
				}
				treatments = treatments[:0]
			}
		}

		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case ev := <-in:
				if ev.Reading != nil {
					readings = append(readings, *ev.Reading)
				}
				if ev.Treatment != nil {
					treatments = append(treatments, *ev.Treatment)
				}
				if len(readings)+len(treatments) >= 200 {
					flush()
				}
			case <-ticker.C:
				flush()
			case <-ctx.Done():
				flush()
				return
			}
		}
	}()
}

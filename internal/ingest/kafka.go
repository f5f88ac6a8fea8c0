package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"glucowatch/internal/config"
)

// kafkaMessage wraps either an entry or a treatment; the "kind" field
// disambiguates.
type kafkaMessage struct {
	Kind      string          `json:"kind"`
	Entry     json.RawMessage `json:"entry,omitempty"`
	Treatment json.RawMessage `json:"treatment,omitempty"`
}

func StartKafka(ctx context.Context, cfg *config.Manager, out chan<- Event, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			ev, err := decodeKafka(m.Value)
			if err != nil {
				if logger != nil {
					logger.Warn("kafka decode error", "err", err)
				}
				continue
			}
			SendNonBlocking(ctx, out, ev, logger)
		}
	}()
}

func decodeKafka(value []byte) (Event, error) {
	var msg kafkaMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return Event{}, err
	}
	switch {
	case msg.Kind == "treatment" || len(msg.Treatment) > 0:
		raw := msg.Treatment
		if len(raw) == 0 {
			raw = value
		}
		var wt wireTreatment
		if err := json.Unmarshal(raw, &wt); err != nil {
			return Event{}, err
		}
		treatment, err := wt.toTreatment()
		if err != nil {
			return Event{}, err
		}
		return Event{Treatment: &treatment, Source: "kafka"}, nil
	default:
		raw := msg.Entry
		if len(raw) == 0 {
			raw = value
		}
		var we wireEntry
		if err := json.Unmarshal(raw, &we); err != nil {
			return Event{}, err
		}
		reading, err := we.toReading()
		if err != nil {
			return Event{}, err
		}
		return Event{Reading: &reading, Source: "kafka"}, nil
	}
}

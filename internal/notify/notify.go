// Package notify delivers alert notifications over email and webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"glucowatch/internal/config"
)

// Notifier sends one human-readable notification. Implementations must be
// safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
	Name() string
}

// Multi fans a notification out to every enabled channel and collects the
// failures. A partial failure still delivers to the remaining channels.
type Multi struct {
	channels []Notifier
}

func NewMulti(cfg config.NotifyConfig, alerting config.AlertingConfig) *Multi {
	var channels []Notifier
	if alerting.EmailEnabled && cfg.Email.SMTPHost != "" && len(cfg.Email.To) > 0 {
		channels = append(channels, NewEmail(cfg.Email))
	}
	if alerting.WebhookEnabled && cfg.Webhook.URL != "" {
		channels = append(channels, NewWebhook(cfg.Webhook))
	}
	return &Multi{channels: channels}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Channels() int { return len(m.channels) }

func (m *Multi) Send(ctx context.Context, title, body string) error {
	var errs []string
	for _, ch := range m.channels {
		if err := ch.Send(ctx, title, body); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// WithRetry runs fn up to maxAttempts times with exponential backoff seeded
// at seed (1s, 2s, 4s for the defaults). Context cancellation aborts the
// wait between attempts.
func WithRetry(ctx context.Context, maxAttempts int, seed time.Duration, fn func(context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if seed <= 0 {
		seed = time.Second
	}
	var lastErr error
	delay := seed
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return lastErr
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glucowatch/internal/config"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	wantErr := errors.New("permanent")
	err := WithRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		attempts++
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 3, attempts)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := WithRetry(ctx, 5, time.Hour, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
}

func TestWebhookPostsJSON(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := NewWebhook(config.WebhookConfig{URL: server.URL, TimeoutSeconds: 5})
	err := ch.Send(context.Background(), "Glucose alert: HIGH risk", "predicted 66 mg/dL")
	require.NoError(t, err)
	require.Equal(t, "Glucose alert: HIGH risk", got["title"])
	require.Equal(t, "predicted 66 mg/dL", got["body"])
}

func TestWebhookRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ch := NewWebhook(config.WebhookConfig{URL: server.URL})
	err := ch.Send(context.Background(), "t", "b")
	require.Error(t, err)
}

func TestMultiHonorsToggles(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Notify.Webhook.URL = "http://localhost:9/hook"
	cfg.Notify.Email.SMTPHost = "smtp.example.com"
	cfg.Notify.Email.To = []string{"a@example.com"}

	none := NewMulti(cfg.Notify, cfg.Alerting)
	require.Equal(t, 0, none.Channels())

	cfg.Alerting.WebhookEnabled = true
	one := NewMulti(cfg.Notify, cfg.Alerting)
	require.Equal(t, 1, one.Channels())

	cfg.Alerting.EmailEnabled = true
	both := NewMulti(cfg.Notify, cfg.Alerting)
	require.Equal(t, 2, both.Channels())
}

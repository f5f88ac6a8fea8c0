// Package api exposes the monitor over HTTP: status, on-demand
// predictions, alert listing and acknowledgement, runtime alert
// configuration, and glucose statistics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"glucowatch/internal/alerts"
	"glucowatch/internal/config"
	"glucowatch/internal/engine"
	"glucowatch/internal/model"
	"glucowatch/internal/monitor"
)

type Server struct {
	cfg     *config.Manager
	monitor *monitor.Monitor
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string                 `json:"status"`
	Time       string                 `json:"time"`
	Version    string                 `json:"version"`
	ConfigPath string                 `json:"config_path"`
	Ingest     ingestStatus           `json:"ingest"`
	Prediction predictionStatus       `json:"prediction"`
	Alerting     config.AlertingConfig  `json:"alerting"`
	LastCycle    *monitor.CycleSnapshot `json:"last_cycle,omitempty"`
	Cycles       int64                  `json:"cycles"`
	Failures     int64                  `json:"failures"`
	RecentAlerts []model.Alert          `json:"recent_alerts"`
}

type ingestStatus struct {
	REST  bool `json:"rest"`
	Kafka bool `json:"kafka"`
}

type predictionStatus struct {
	Enabled         bool  `json:"enabled"`
	IntervalMinutes int   `json:"interval_minutes"`
	LookbackDays    int   `json:"lookback_days"`
	Horizons        []int `json:"horizons"`
}

func Start(ctx context.Context, cfg *config.Manager, mon *monitor.Monitor, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{cfg: cfg, monitor: mon, logger: logger, version: version}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/predict", server.handlePredict)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/alerts/ack", server.handleAck)
	mux.HandleFunc("/alerts/dismiss", server.handleDismiss)
	mux.HandleFunc("/config/alerts", server.handleAlertConfig)
	mux.HandleFunc("/stats", server.handleStats)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	latest, cycles, failures := s.monitor.Status()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			REST:  cfg.Ingest.REST.Enabled,
			Kafka: cfg.Ingest.Kafka.Enabled,
		},
		Prediction: predictionStatus{
			Enabled:         cfg.Prediction.Enabled,
			IntervalMinutes: cfg.Prediction.IntervalMinutes,
			LookbackDays:    cfg.Prediction.LookbackDays,
			Horizons:        cfg.Prediction.Horizons,
		},
		Alerting:     cfg.Alerting,
		LastCycle:    latest,
		Cycles:       cycles,
		Failures:     failures,
		RecentAlerts: s.monitor.RecentAlerts(20),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	lookback := 0
	if v := r.URL.Query().Get("lookback_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		lookback = n
	}
	conservative := r.URL.Query().Get("conservative") == "true"

	out, err := s.monitor.Predict(r.Context(), lookback, conservative)
	if err != nil {
		var insufficient *engine.InsufficientDataError
		if errors.As(err, &insufficient) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  insufficient.Error(),
				"points": insufficient.Points,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prediction": out.Prediction,
		"quality":    out.Quality,
		"risk":       out.Risk,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	list, err := s.monitor.ListAlerts(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.monitor.AcknowledgeAlert)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.monitor.DismissAlert)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.ID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := fn(r.Context(), req.ID); err != nil {
		if errors.Is(err, alerts.ErrNotFoundOrHandled) {
			writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleAlertConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg := s.cfg.Get()
		writeJSON(w, http.StatusOK, map[string]any{
			"alerting": cfg.Alerting,
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		current := s.cfg.Get()
		next := *current
		alerting := current.Alerting
		if err := json.Unmarshal(body, &alerting); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := config.ValidateAlerting(alerting); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
			return
		}
		next.Alerting = alerting
		if err := s.cfg.Update(&next); err != nil {
			if errors.Is(err, config.ErrConfigInvariant) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "alerting": alerting})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	days := 1
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		days = n
	}
	stats, err := s.monitor.Stats(r.Context(), days)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":  days,
		"stats": stats,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"glucowatch/internal/config"
)

type RESTServer struct {
	cfg    *config.Manager
	out    chan<- Event
	logger *slog.Logger
}

func StartREST(ctx context.Context, cfg *config.Manager, out chan<- Event, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	server := &RESTServer{cfg: cfg, out: out, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/entries", server.handleEntries)
	mux.HandleFunc("/treatments", server.handleTreatments)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
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
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *RESTServer) handleEntries(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var list []wireEntry
	if err := decodeOneOrMany(body, &list); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	accepted, failed := 0, 0
	for _, e := range list {
		reading, err := e.toReading()
		if err != nil {
			failed++
			continue
		}
		if SendNonBlocking(r.Context(), s.out, Event{Reading: &reading, Source: "rest"}, s.logger) {
			accepted++
		} else {
			failed++
		}
	}
	writeCounts(w, accepted, failed)
}

func (s *RESTServer) handleTreatments(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var list []wireTreatment
	if err := decodeOneOrMany(body, &list); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	accepted, failed := 0, 0
	for _, t := range list {
		treatment, err := t.toTreatment()
		if err != nil {
			failed++
			continue
		}
		if SendNonBlocking(r.Context(), s.out, Event{Treatment: &treatment, Source: "rest"}, s.logger) {
			accepted++
		} else {
			failed++
		}
	}
	writeCounts(w, accepted, failed)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil || len(bytesTrim(body)) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	return bytesTrim(body), true
}

// decodeOneOrMany accepts either a single JSON object or an array of them,
// matching what uploaders actually send.
func decodeOneOrMany[T any](body []byte, out *[]T) error {
	if body[0] == '[' {
		return json.Unmarshal(body, out)
	}
	var one T
	if err := json.Unmarshal(body, &one); err != nil {
		return err
	}
	*out = append(*out, one)
	return nil
}

func writeCounts(w http.ResponseWriter, accepted, failed int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{
		"accepted": accepted,
		"failed":   failed,
	})
}

func bytesTrim(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\n' || b[start] == '\r' || b[start] == '\t') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\n' || b[end-1] == '\r' || b[end-1] == '\t') {
		end--
	}
	return b[start:end]
}

// Package web serves the read-only status endpoints for the drip-controller
// daemon.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/sweeney/drip-controller/internal/status"
)

// Source provides the current daemon status.
type Source interface {
	StatusSnapshot() status.Snapshot
}

// Server serves the status JSON, a health probe and Prometheus metrics.
type Server struct {
	httpServer *http.Server
	source     Source
	logger     zerolog.Logger
}

// New creates a Server. metrics may be nil, in which case /metrics is not
// routed.
func New(addr string, source Source, metrics http.Handler, logger zerolog.Logger) *Server {
	s := &Server{
		source: source,
		logger: logger.With().Str("component", "web").Logger(),
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.source.StatusSnapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

type healthJSON struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	SafetyActive   bool   `json:"safety_active"`
	MQTTConnected  bool   `json:"mqtt_connected"`
	LastIrrigation string `json:"last_irrigation,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.source.StatusSnapshot()
	h := healthJSON{
		Status:        "ok",
		UptimeSeconds: int64(snap.Uptime().Seconds()),
		SafetyActive:  snap.Safety.Active,
		MQTTConnected: snap.MQTTConnected,
	}
	if snap.LastIrrigation != nil {
		h.LastIrrigation = snap.LastIrrigation.UTC().Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.code).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// Package server exposes daemon health, metrics and live events over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/HerbHall/campusnet/internal/daemon"
	"github.com/HerbHall/campusnet/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Operational paths exempt from logging, rate limiting and auth.
var operationalPaths = []string{"/healthz", "/readyz", "/metrics"}

// StatusSource provides the daemon state served at /api/v1/status.
type StatusSource interface {
	Snapshot() daemon.State
}

// ReadinessChecker returns nil once the daemon can report real state.
type ReadinessChecker func(ctx context.Context) error

// Config holds listener settings.
type Config struct {
	Addr  string
	Token string // bearer token for /api/v1/*; empty disables auth

	// Per-IP token bucket. Zero values take the defaults.
	RateLimit float64
	Burst     int
}

// Deps are the components the server reports on. Nil fields disable
// the matching route or check.
type Deps struct {
	Status   StatusSource
	Ready    ReadinessChecker
	Registry *prometheus.Registry
	Events   http.Handler // websocket stream
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Service string            `json:"service"`
	Version map[string]string `json:"version"`
	Daemon  daemon.State      `json:"daemon"`
}

// Server is the local status HTTP server.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New builds the server with its middleware chain and routes.
func New(cfg Config, deps Deps, logger *zap.Logger) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 40
	}

	s := &Server{
		deps:   deps,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()

	var reg prometheus.Registerer = prometheus.NewRegistry()
	if deps.Registry != nil {
		reg = deps.Registry
	}

	handler := Chain(s.mux,
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger, newHTTPMetrics(reg), operationalPaths),
		VersionHeaderMiddleware,
		RateLimitMiddleware(cfg.RateLimit, cfg.Burst, operationalPaths),
		TokenMiddleware(cfg.Token, "/api/"),
	)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: /api/v1/events holds the connection open.
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	if s.deps.Registry != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	}

	s.mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	if s.deps.Events != nil {
		s.mux.Handle("GET /api/v1/events", s.deps.Events)
	}
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFound(w, "no such endpoint", r.URL.Path)
	})
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting status server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down status server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealthz is the liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadyz reports 503 until the daemon has completed its first check.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		ServiceUnavailable(w, "daemon is not running", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Service: "campusnet",
		Version: version.Map(),
		Daemon:  s.deps.Status.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

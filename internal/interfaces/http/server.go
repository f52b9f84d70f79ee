// Package http serves the read-only observability surface: health, status,
// dashboard, and Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketflow/internal/system"
)

// Server is the observability HTTP server. It only reads system state.
type Server struct {
	sys     *system.MultiChannelSystem
	metrics *MetricsRegistry
	router  *mux.Router
	server  *http.Server
	log     zerolog.Logger
}

// NewServer builds the server on the given listen address.
func NewServer(addr string, sys *system.MultiChannelSystem) *Server {
	s := &Server{
		sys:     sys,
		metrics: NewMetricsRegistry(),
		router:  mux.NewRouter(),
		log:     log.With().Str("component", "http").Logger(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.refreshBeforeScrape(
		promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))).Methods(http.MethodGet)
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("http server failed")
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("http shutdown forced")
	}
}

type healthResponse struct {
	Status    string       `json:"status"`
	State     system.State `json:"state"`
	Ready     bool         `json:"ready"`
	Timestamp time.Time    `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ready := s.sys.Ready()
	resp := healthResponse{
		Status:    "healthy",
		State:     s.sys.State(),
		Ready:     ready,
		Timestamp: time.Now().UTC(),
	}
	code := http.StatusOK
	if !ready {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sys.Status())
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sys.Monitor().Dashboard())
}

// refreshBeforeScrape pushes the latest status into the registry so scraped
// values are current without a background sampler.
func (s *Server) refreshBeforeScrape(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Update(s.sys.Status())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}

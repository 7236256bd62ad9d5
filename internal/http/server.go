package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cartridge/replay/internal/metrics"
	"github.com/cartridge/replay/internal/middleware"
	"github.com/cartridge/replay/internal/service"
	"github.com/cartridge/replay/internal/storage"
)

// Server exposes health, metrics and buffer administration over HTTP.
type Server struct {
	backend   storage.Backend
	gatherer  prometheus.Gatherer
	collector *metrics.Collector
	logger    zerolog.Logger
}

// NewServer constructs a Server instance. collector may be nil.
func NewServer(backend storage.Backend, gatherer prometheus.Gatherer, collector *metrics.Collector, logger zerolog.Logger) *Server {
	return &Server{
		backend:   backend,
		gatherer:  gatherer,
		collector: collector,
		logger:    logger.With().Str("component", "admin_http").Logger(),
	}
}

// Routes builds the admin HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.RequestLogger(s.logger))
	if s.collector != nil {
		r.Use(middleware.Metrics(s.collector))
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Post("/clear", s.handleClear)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.backend.GetStats(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.backend.GetStats(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, service.StatsToWire(stats))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var keep uint64
	if raw := r.URL.Query().Get("keep_last_n"); raw != "" {
		var err error
		keep, err = strconv.ParseUint(raw, 10, 32)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "keep_last_n must be a non-negative integer")
			return
		}
	}

	cleared, err := s.backend.Clear(r.Context(), uint32(keep))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"cleared_count": cleared})
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/metrics"
	"github.com/JakeFAU/image-crawler/internal/orchestrator"
	"github.com/JakeFAU/image-crawler/internal/sources"
	"github.com/JakeFAU/image-crawler/internal/store"
)

// Defaults seed every job submitted over HTTP.
type Defaults struct {
	Limits      crawler.Limits
	Destination string
	Sources     sources.Settings
}

// Config wires the Server's collaborators. History is optional.
type Config struct {
	Runs     *Manager
	Tracker  *Tracker
	History  store.RunRepository
	Defaults Defaults
	Logger   *zap.Logger
}

// Server wires HTTP handlers to the run manager and stores.
type Server struct {
	router   chi.Router
	runs     *Manager
	tracker  *Tracker
	defaults Defaults
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runs:     cfg.Runs,
		tracker:  cfg.Tracker,
		defaults: cfg.Defaults,
		logger:   logger,
	}
	history := NewHistoryHandler(cfg.History, logger)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.startRun)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Post("/cancel", s.cancelRun)
			})
		})
		r.Route("/history/runs", func(r chi.Router) {
			r.Get("/", history.ListRuns)
			r.Get("/{run_id}", history.GetRun)
			r.Get("/{run_id}/sources", history.ListRunSources)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type runRequest struct {
	Query        string   `json:"query"`
	Destination  *string  `json:"destination"`
	Sources      []string `json:"sources"`
	MaxDownloads *int     `json:"max_downloads"`
	PerSourceMax *int     `json:"per_source_max"`
	SafeSearch   *bool    `json:"safe_search"`
	Headless     *bool    `json:"headless"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.toJob(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.runs.Start(job)
	if err != nil {
		if errors.Is(err, ErrRunActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("start run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	s.tracker.Begin(id, job.Query)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id.String()})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := s.tracker.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": snap})
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.runs.Cancel(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id.String(), "status": "cancelling"})
}

func (s *Server) toJob(req runRequest) (orchestrator.Job, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return orchestrator.Job{}, errors.New("query required")
	}
	limits := s.defaults.Limits
	limits.AllowedExtensions = append([]string(nil), limits.AllowedExtensions...)
	limits.GlobalMaxDownloads = valueOrDefault(req.MaxDownloads, limits.GlobalMaxDownloads)
	limits.PerSourceMaxResults = valueOrDefault(req.PerSourceMax, limits.PerSourceMaxResults)
	limits.SafeSearch = valueOrDefault(req.SafeSearch, limits.SafeSearch)
	limits.Headless = valueOrDefault(req.Headless, limits.Headless)
	if limits.GlobalMaxDownloads <= 0 {
		return orchestrator.Job{}, errors.New("max_downloads must be positive")
	}
	if limits.PerSourceMaxResults < 0 {
		return orchestrator.Job{}, errors.New("per_source_max must not be negative")
	}

	settings := s.defaults.Sources
	if len(req.Sources) > 0 {
		settings.Override = append([]string(nil), req.Sources...)
	}
	return orchestrator.Job{
		Query:       query,
		Destination: valueOrDefault(req.Destination, s.defaults.Destination),
		Limits:      limits,
		Sources:     settings,
	}, nil
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "run_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return id, nil
}

type requestIDKey struct{}

// RequestID returns the ID assigned by the request middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("encode response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

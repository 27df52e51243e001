// Package api provides the HTTP surface of the predictor daemon. The routes
// are a thin transport over the dispatcher, the refresh engine, and the
// repository; authentication lives in front of this server and the caller's
// identity arrives in the X-User-ID header.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pantrylab/pantryd/internal/app/dispatcher"
	"github.com/pantrylab/pantryd/internal/app/refresh"
	"github.com/pantrylab/pantryd/internal/domain"
	"github.com/pantrylab/pantryd/internal/habit"
)

// Server is the pantryd HTTP API server.
type Server struct {
	store      domain.Repository
	dispatch   *dispatcher.Dispatcher
	worker     *dispatcher.Worker
	refresher  *refresh.Engine
	habits     *habit.Resolver
	log        zerolog.Logger
	metricsEnabled bool

	// Now is an injectable clock for testing.
	Now func() time.Time
}

// NewServer creates the API server.
func NewServer(store domain.Repository, d *dispatcher.Dispatcher, w *dispatcher.Worker, r *refresh.Engine, habits *habit.Resolver, log zerolog.Logger) *Server {
	return &Server{
		store:     store,
		dispatch:  d,
		worker:    w,
		refresher: r,
		habits:    habits,
		log:       log,
		Now:       time.Now,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/inventory", func(r chi.Router) {
			r.Post("/log", s.handleCreateLog)
			r.Get("/{productID}", s.handleGetItem)
			r.Post("/{productID}/feedback", s.handleFeedback)
			r.Post("/{productID}/action", s.handleAction)
		})

		r.Route("/habits", func(r chi.Router) {
			r.Get("/", s.handleListHabits)
			r.Post("/", s.handleCreateHabit)
			r.Delete("/{habitID}", s.handleDeleteHabit)
		})

		r.Route("/predictor", func(r chi.Router) {
			r.Post("/process-log/{logID}", s.handleProcessLog)
			r.Post("/refresh/{userID}", s.handleRefreshUser)
			r.Get("/forecast/{userID}/{productID}", s.handleGetForecast)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// userID extracts the authenticated user from the request.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrHabitNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrLogRowNotFound),
		errors.Is(err, domain.ErrInvalidFeedback),
		errors.Is(err, domain.ErrUnknownAction),
		errors.Is(err, domain.ErrProfileNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

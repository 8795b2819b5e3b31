// Package server exposes the HTTP trigger for sync runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"signin-token-sync/internal/logging"
	"signin-token-sync/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
	shutdownTimeout  = 10 * time.Second
)

// Starter launches a detached run unless one is already in flight
type Starter interface {
	TryStart(ctx context.Context) bool
}

// Lister returns recent run outcomes, newest first
type Lister interface {
	Recent(ctx context.Context, limit int) ([]models.Result, error)
}

// Handlers serves the trigger endpoints
type Handlers struct {
	runs    Starter
	history Lister
	// runCtx outlives requests; detached runs are bound to it.
	runCtx context.Context
}

// New creates the handlers. history may be nil when run history is disabled.
func New(runCtx context.Context, runs Starter, history Lister) *Handlers {
	return &Handlers{runs: runs, history: history, runCtx: runCtx}
}

// Router builds the chi router with all routes mounted
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", h.Index)
	r.Get("/refresh", h.Refresh)
	r.Get("/runs", h.Runs)
	r.Get("/healthz", h.Health)

	return r
}

func (h *Handlers) Index(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "Bot Server is Active.")
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// Refresh acknowledges immediately and leaves the run to continue in the background
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	log := logging.Log.WithField("request_id", middleware.GetReqID(r.Context()))
	if h.runs.TryStart(h.runCtx) {
		log.Info("Sync run triggered")
	} else {
		log.Info("Sync run already in progress, trigger ignored")
	}
	writeText(w, http.StatusOK, "OK")
}

func (h *Handlers) Runs(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunsLimit)
	}

	results := []models.Result{}
	if h.history != nil {
		recent, err := h.history.Recent(r.Context(), limit)
		if err != nil {
			logging.Log.WithError(err).Error("Failed to read run history")
			http.Error(w, "failed to read run history", http.StatusInternalServerError)
			return
		}
		results = append(results, recent...)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(results); err != nil {
		logging.Log.WithError(err).Warn("Failed to write runs response")
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts down gracefully
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Log.WithField("addr", addr).Info("Trigger server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Log.Info("Shutting down trigger server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

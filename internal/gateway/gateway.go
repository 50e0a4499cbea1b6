// ABOUTME: Gateway orchestrator that owns the HTTP server and wires routes
// ABOUTME: Manages session manager, job tracker, and store lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/carenav/navigator/internal/config"
	"github.com/carenav/navigator/internal/jobs"
	"github.com/carenav/navigator/internal/session"
)

// Gateway coordinates the HTTP surface of the navigator service.
type Gateway struct {
	config     *config.Config
	sessions   *session.Manager
	tracker    *jobs.Tracker
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a gateway over the given session manager and job tracker.
func New(cfg *config.Config, sessions *session.Manager, tracker *jobs.Tracker, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		config:   cfg,
		sessions: sessions,
		tracker:  tracker,
		logger:   logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// routes builds the chi router for the API surface.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", g.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/converse", g.handleConverse)
		r.Post("/jobs/start", g.handleStartJob)
		r.Get("/jobs/status", g.handleJobStatus)
		r.Post("/jobs/cancel", g.handleCancelJob)
		r.Get("/jobs/stream", g.handleJobStream)
		r.Get("/sessions/{user_id}/history", g.handleHistory)
	})

	return r
}

// Start runs the HTTP server until it fails or Shutdown is called.
// It blocks; run it from the caller's goroutine of choice.
func (g *Gateway) Start() error {
	g.logger.Info("http server listening", "addr", g.httpServer.Addr)
	if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains the HTTP server, then stops the job tracker so in-flight
// searches get a chance to reach a terminal state.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down")

	if err := g.httpServer.Shutdown(ctx); err != nil {
		g.logger.Error("http shutdown failed", "error", err)
	}

	if err := g.tracker.Shutdown(ctx); err != nil {
		return fmt.Errorf("stopping job tracker: %w", err)
	}

	g.logger.Info("shutdown complete")
	return nil
}

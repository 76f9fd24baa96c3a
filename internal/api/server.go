// Package api exposes the reconciliation service over HTTP.
//
// Example usage:
//
//	srv := api.NewServer(api.Config{Port: 8085}, svc, logger)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/eshaffer321/contribution-reconciler/internal/api/handlers"
	"github.com/eshaffer321/contribution-reconciler/internal/api/middleware"
	"github.com/eshaffer321/contribution-reconciler/internal/application/service"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8085,
		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	svc        *service.ReconciliationService
}

// NewServer creates a new API server.
func NewServer(cfg Config, svc *service.ReconciliationService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		logger: logger,
		svc:    svc,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(cors))

	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(chimw.Recoverer)
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	s.router.Get("/health", handlers.NewHealthHandler().ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		sessions := handlers.NewSessionsHandler(s.svc, s.logger)
		overrides := handlers.NewOverridesHandler(s.svc, s.logger)

		r.Get("/sessions", sessions.List)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", sessions.Get)
			r.Post("/reconcile", sessions.Reconcile)
			r.Post("/contributors", sessions.AddContributors)
			r.Get("/results", sessions.Results)
			r.Get("/summary", sessions.Summary)

			r.Route("/results/{txID}", func(r chi.Router) {
				r.Post("/confirm", overrides.Confirm)
				r.Post("/divergence/confirm", overrides.ConfirmDivergence)
				r.Post("/divergence/reject", overrides.RejectDivergence)
				r.Post("/reopen", overrides.Reopen)
			})
		})

		fileModels := handlers.NewModelsHandler(s.svc, s.logger)
		r.Get("/models", fileModels.List)
		r.Post("/models", fileModels.Create)
		r.Get("/models/{id}", fileModels.Get)
		r.Patch("/models/{id}", fileModels.Update)
		r.Delete("/models/{id}", fileModels.Delete)

		runs := handlers.NewRunsHandler(s.svc, s.logger)
		r.Get("/runs", runs.List)
		r.Get("/associations", runs.Associations)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	// Runs may wait on the AI fallback, so writes get a longer window.
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

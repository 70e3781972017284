package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cronbox/core/internal/config"
	"github.com/cronbox/core/pkg/database"
	"github.com/cronbox/core/pkg/handlers/health"
	"github.com/cronbox/core/pkg/handlers/jobs"
	"github.com/cronbox/core/pkg/logger"
	"github.com/cronbox/core/pkg/middleware"
	"github.com/cronbox/core/pkg/scheduler"
)

// Server represents the API server
type Server struct {
	router   *http.ServeMux
	httpSrv  *http.Server
	apiKey   string
	logger   *logger.Logger
	handlers struct {
		health *health.Handler
		jobs   *jobs.Handler
	}
}

// New creates a new server instance on top of an already opened store
// and a running scheduler. The server owns neither: lifecycle of both
// belongs to main.
func New(cfg *config.Config, store database.Store, sched *scheduler.Scheduler, log *logger.Logger) *Server {
	server := &Server{
		router: http.NewServeMux(),
		apiKey: cfg.Server.APIKey,
		logger: log,
	}

	server.handlers.health = health.NewHandler(log)
	server.handlers.jobs = jobs.NewHandler(store, sched, log)

	server.setupRoutes()

	server.httpSrv = &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint, deliberately unauthenticated
	s.router.HandleFunc("GET /health", middleware.CORS(s.handlers.health.HealthCheck))

	// Simple root endpoint
	s.router.HandleFunc("/", middleware.CORS(func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintf(w, "Cronbox API Service - OK"); err != nil {
			http.Error(w, "Failed to write response", http.StatusInternalServerError)
		}
	}))

	// Job endpoints
	s.router.HandleFunc("GET /api/v1/jobs", s.protect(s.handlers.jobs.List))
	s.router.HandleFunc("POST /api/v1/jobs", s.protect(s.handlers.jobs.Create))
	s.router.HandleFunc("GET /api/v1/jobs/{id}", s.protect(s.handlers.jobs.Get))
	s.router.HandleFunc("DELETE /api/v1/jobs/{id}", s.protect(s.handlers.jobs.Delete))
	s.router.HandleFunc("POST /api/v1/jobs/{id}/pause", s.protect(s.handlers.jobs.Pause))
	s.router.HandleFunc("POST /api/v1/jobs/{id}/resume", s.protect(s.handlers.jobs.Resume))
	s.router.HandleFunc("POST /api/v1/jobs/{id}/run", s.protect(s.handlers.jobs.Run))
	s.router.HandleFunc("GET /api/v1/jobs/{id}/runs", s.protect(s.handlers.jobs.Runs))
}

func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return middleware.CORS(middleware.APIKey(s.apiKey, next))
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info().
		Str("action", "server_start").
		Str("addr", s.httpSrv.Addr).
		Bool("api_key_enabled", s.apiKey != "").
		Msg("Starting API server")

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed on %s: %w", s.httpSrv.Addr, err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down API server")
	return s.httpSrv.Shutdown(ctx)
}

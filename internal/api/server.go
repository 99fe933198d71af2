package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/harvestarr/internal/api/handlers"
	"github.com/amaumene/harvestarr/internal/api/middleware"
	"github.com/amaumene/harvestarr/internal/config"
	"github.com/amaumene/harvestarr/internal/controllers"
	"github.com/amaumene/harvestarr/internal/metrics"
	"github.com/amaumene/harvestarr/internal/scheduler"
)

// Server represents the HTTP server
type Server struct {
	server   *http.Server
	resolver *controllers.ResolveController
	history  *controllers.HistoryController
	jobs     *scheduler.JobHost
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(
	cfg *config.Config,
	resolver *controllers.ResolveController,
	history *controllers.HistoryController,
	jobs *scheduler.JobHost,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		resolver: resolver,
		history:  history,
		jobs:     jobs,
		metrics:  m,
		logger:   logger,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux, cfg)

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      middleware.Logging(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler, for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux, cfg *config.Config) {
	// Health check
	healthHandler := handlers.NewHealthHandler(s.logger)
	mux.HandleFunc("/health", healthHandler.ServeHTTP)

	// Status endpoint
	statusHandler := handlers.NewStatusHandler(s.history, s.jobs, s.logger)
	mux.HandleFunc("/status", statusHandler.ServeHTTP)

	// History
	historyHandler := handlers.NewHistoryHandler(s.history, s.logger)
	mux.HandleFunc("/history", historyHandler.ServeHTTP)
	mux.HandleFunc("/history/", historyHandler.ServeRecord)

	// Resolution and durable jobs
	resolveHandler := handlers.NewResolveHandler(s.resolver, s.logger)
	mux.HandleFunc("/resolve", resolveHandler.ServeHTTP)

	jobsHandler := handlers.NewJobsHandler(s.resolver, s.jobs, cfg.SaveLocation, cfg.DefaultQualityTier, s.logger)
	mux.HandleFunc("/jobs", jobsHandler.ServeHTTP)

	// Prometheus
	mux.Handle("/metrics", s.metrics.Handler())
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

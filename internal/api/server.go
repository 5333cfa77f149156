package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/osprey-risk/internal/domain"
	"github.com/opensource-finance/osprey-risk/internal/metrics"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(MetricsMiddleware)      // Prometheus request metrics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health and metrics endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// API routes (tenant required)
	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Scoring
		r.Post("/score", handler.Score)
		r.Get("/transactions/{id}", handler.GetTransaction)
		r.Get("/results/{txId}", handler.GetResult)
		r.Get("/stats", handler.Stats)

		// Alert workflow
		r.Get("/alerts", handler.ListAlerts)
		r.Get("/alerts/pending", handler.PendingAlerts)
		r.Get("/alerts/stats", handler.AlertStats)
		r.Post("/alerts/{id}/review", handler.ReviewAlert)
		r.Post("/alerts/{id}/resolve", handler.ResolveAlert)

		// Baselines
		r.Post("/baselines/{userId}/recompute", handler.RecomputeBaseline)

		// Models and decision configuration
		r.Get("/models", handler.ListModels)
		r.Post("/models/{role}", handler.UpdateModel)
		r.Get("/config", handler.GetConfig)
		r.Put("/config/thresholds", handler.UpdateThresholds)
		r.Put("/config/weights", handler.UpdateWeights)
		r.Put("/config/costs", handler.UpdateCosts)
		r.Post("/calibrate", handler.Calibrate)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}

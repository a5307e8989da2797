package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/regtools/internal/domain"
	"github.com/opensource-finance/regtools/internal/metrics"
	"github.com/opensource-finance/regtools/internal/pipeline"
	"github.com/opensource-finance/regtools/internal/worker"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// Option customizes the server's handler.
type Option func(*Handler)

// WithWorker reports the async worker's subscriptions on /health.
func WithWorker(w *worker.Worker) Option {
	return func(h *Handler) {
		h.worker = w
	}
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, p *pipeline.Pipeline, m *metrics.Metrics, version string, opts ...Option) *Server {
	handler := NewHandler(p, m, cfg.MaxBatchSize, version)
	handler.policyAdmin = cfg.PolicyAdminTenant
	for _, opt := range opts {
		opt(handler)
	}

	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(MetricsMiddleware(m))
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health checks and scraping, no tenant required
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", m.Handler())

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Post("/evaluate", handler.Evaluate)
		r.Post("/evaluate/batch", handler.EvaluateBatch)
		r.Post("/classify", handler.Classify)

		r.Post("/profiles", handler.CreateProfile)
		r.Get("/profiles", handler.ListProfiles)
		r.Get("/profiles/{id}", handler.GetProfile)
		r.Get("/profiles/{id}/evaluations", handler.ListProfileEvaluations)

		r.Get("/evaluations/{id}", handler.GetEvaluation)

		r.Get("/clients/{clientId}/contracts", handler.ClientContracts)

		r.Get("/catalogue", handler.Catalogue)
		r.Get("/thresholds", handler.Thresholds)
		r.Put("/thresholds", handler.ReplaceThresholds)
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

// Package api exposes the metrics engine over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"perfmetrics/internal/domain"
	"perfmetrics/internal/engine"
)

// Service is the engine surface the HTTP layer needs.
type Service interface {
	GetMetrics(ctx context.Context, symbol string) (*domain.CacheEntry, error)
	RefreshAll(ctx context.Context, symbols []string) engine.BatchResult
}

// maxRefreshSymbols caps a single refresh request.
const maxRefreshSymbols = 500

// Server hosts the HTTP endpoints.
type Server struct {
	router *chi.Mux
	server *http.Server
	svc    Service
	log    *slog.Logger
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, svc Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		router: chi.NewRouter(),
		svc:    svc,
		log:    log.With("component", "api"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Timeout(60*time.Second)).Get("/metrics/{symbol}", s.handleGetMetrics)
		r.Post("/refresh", s.handleRefresh)
	})
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe starts the HTTP listener and blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/joeychilson/strmanip/engine"
	"github.com/joeychilson/strmanip/logger"
	"github.com/joeychilson/strmanip/server/middleware"
)

const (
	httpReadTimeout     = 30 * time.Second
	httpWriteTimeout    = 60 * time.Second
	httpIdleTimeout     = 60 * time.Second
	httpShutdownTimeout = 10 * time.Second
)

// Config holds configuration for the API server.
type Config struct {
	// RedisClient for distributed rate limiting (optional, uses in-memory if nil)
	RedisClient *redis.Client
	// RateLimitRequests is the number of requests allowed per window (default: 100)
	RateLimitRequests int
	// RateLimitWindow is the time window for rate limiting (default: 1 minute)
	RateLimitWindow time.Duration
}

// Server is the HTTP server for the API.
type Server struct {
	handler *Handler
	logger  logger.Logger
	router  *chi.Mux
}

// New creates a new API server with chi router and middleware stack.
func New(e *engine.Engine, log logger.Logger, cfg *Config) (*Server, error) {
	if e == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if log == nil {
		log = logger.Noop()
	}
	if cfg == nil {
		cfg = &Config{}
	}

	handler := NewHandler(e, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestLimit:   cfg.RateLimitRequests,
		WindowDuration: cfg.RateLimitWindow,
		RedisClient:    cfg.RedisClient,
	}))

	r.Get("/health", handler.HandleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/apply", handler.HandleApply)
		r.Post("/apply/batch", handler.HandleApplyBatch)
		r.Post("/parse", handler.HandleParse)
		r.Get("/presets", handler.HandlePresets)
	})

	return &Server{
		handler: handler,
		logger:  log,
		router:  r,
	}, nil
}

// Router returns the HTTP handler for the server.
func (s *Server) Router() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// StartWithShutdown serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) StartWithShutdown(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  httpReadTimeout,
		WriteTimeout: httpWriteTimeout,
		IdleTimeout:  httpIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Package server provides the HTTP API for thesislens.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/thesislens/internal/config"
	"github.com/hyperjump/thesislens/internal/search"
	"github.com/hyperjump/thesislens/internal/storage"
	"github.com/hyperjump/thesislens/pkg/utils"
)

// Server is the HTTP server for the thesislens API.
type Server struct {
	engine  *search.Engine
	store   storage.DocumentStore
	config  *config.Config
	logger  *zap.Logger
	limiter *rate.Limiter
	server  *http.Server
}

// NewServer creates a server with the given dependencies. store may be nil,
// in which case the status endpoint omits the document count.
func NewServer(engine *search.Engine, store storage.DocumentStore, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		engine: engine,
		store:  store,
		config: cfg,
		logger: utils.OrNop(logger),
	}
	if rl := cfg.Server.RateLimit; rl.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), max(rl.Burst, 1))
	}
	return s
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(allowCORS)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/api/v1/search", s.handleSearch)
		r.Post("/api/v1/recommend", s.handleRecommend)
		// Path used by the existing thesis frontend.
		r.Post("/semantic-search", s.handleSearch)
	})
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

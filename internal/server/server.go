// Package server provides the HTTP surface of the surrounding shard-request
// handler: document ingestion into the in-memory shard, search execution,
// and scroll session management. The query-execution core itself owns no
// wire surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/shiboru/internal/config"
	"github.com/hyperjump/shiboru/internal/scroll"
	"github.com/hyperjump/shiboru/internal/search"
)

// Server is the HTTP server for the shiboru API.
type Server struct {
	executor *search.Executor
	manager  *IndexManager
	sessions *scroll.Store
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	executor *search.Executor,
	manager *IndexManager,
	sessions *scroll.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		executor: executor,
		manager:  manager,
		sessions: sessions,
		config:   cfg,
		logger:   logger,
	}
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/documents", s.handleIndexDocument)
	r.Delete("/api/v1/documents", s.handleDeleteByTerm)
	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/scroll", s.handleScrollContinue)
	r.Delete("/api/v1/scroll/{id}", s.handleScrollClear)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops. A background
// ticker expires idle scroll sessions.
func (s *Server) Start() error {
	stop := make(chan struct{})
	go s.expireLoop(stop)
	defer close(stop)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
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

func (s *Server) expireLoop(stop <-chan struct{}) {
	ttl := time.Duration(s.config.Search.ScrollTTLMinutes) * time.Minute
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := s.sessions.Expire(context.Background(), ttl)
			if err != nil {
				s.logger.Warn("scroll session expiry failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Debug("expired scroll sessions", zap.Int64("count", n))
			}
		}
	}
}

// Package server provides the HTTP API for Sensei.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/sensei/internal/backend"
	"github.com/hyperjump/sensei/internal/chat"
	"github.com/hyperjump/sensei/internal/config"
	"github.com/hyperjump/sensei/internal/doubts"
	"github.com/hyperjump/sensei/internal/metrics"
	"github.com/hyperjump/sensei/internal/models"
)

// KnowledgeBase is the knowledge retriever as exposed over HTTP.
type KnowledgeBase interface {
	Search(ctx context.Context, query string, topK int) ([]models.KnowledgeSnippet, error)
	Add(ctx context.Context, snippets ...models.KnowledgeSnippet) error
	Remove(ctx context.Context, ids ...string) (int, error)
	Size() int
}

// BackendFactory builds an adapter for a backend kind when the active backend is switched.
type BackendFactory func(kind string) (backend.Adapter, error)

// Server is the HTTP server for the Sensei API.
type Server struct {
	chat      *chat.Orchestrator
	doubts    *doubts.Service
	knowledge KnowledgeBase
	backends  BackendFactory
	metrics   *metrics.Metrics
	config    *config.ServerConfig
	topK      int
	logger    *zap.Logger
	server    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithKnowledge exposes kb under /chatbot/knowledge, searching topK results by default.
func WithKnowledge(kb KnowledgeBase, topK int) Option {
	return func(s *Server) {
		s.knowledge = kb
		if topK > 0 {
			s.topK = topK
		}
	}
}

// WithBackendFactory enables POST /chatbot/backend.
func WithBackendFactory(f BackendFactory) Option {
	return func(s *Server) { s.backends = f }
}

// WithMetrics serves m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server with the given dependencies.
func NewServer(orch *chat.Orchestrator, svc *doubts.Service, cfg *config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		chat:   orch,
		doubts: svc,
		config: cfg,
		topK:   3,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// SSE responses must flush as they are written, so the stream route skips Timeout and Compress.
	r.Post("/chatbot/chat/stream", s.handleChatStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Use(middleware.Compress(5))

		r.Get("/health", s.handleHealth)
		if s.metrics != nil {
			r.Handle("/metrics", s.metrics.Handler())
		}

		r.Route("/chatbot", func(r chi.Router) {
			r.Post("/chat", s.handleChat)
			r.Get("/conversation/{id}/history", s.handleHistory)
			r.Delete("/conversation/{id}", s.handleClear)
			r.Get("/status", s.handleStatus)
			r.Get("/modes", s.handleModes)
			r.Post("/backend", s.handleSwitchBackend)
			r.Get("/knowledge/search", s.handleKnowledgeSearch)
			r.Post("/knowledge", s.handleKnowledgeAdd)
			r.Delete("/knowledge/{id}", s.handleKnowledgeRemove)
		})

		r.Route("/doubts", func(r chi.Router) {
			r.Post("/upload", s.handleUpload)
			r.Get("/upload/{id}", s.handleGetUpload)
			r.Get("/summary", s.handleSummary)
			r.Get("/topics", s.handleTopics)
			r.Get("/insights", s.handleInsights)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
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

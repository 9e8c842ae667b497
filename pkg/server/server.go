// Package server composes the AgentDesk API server: storage, auth,
// LLM client, agent runner, workflow engine, metrics, RAG pipeline,
// scheduler, and retention janitor.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/agentdesk/agentdesk/internal/agents"
	"github.com/agentdesk/agentdesk/internal/api"
	"github.com/agentdesk/agentdesk/internal/api/handlers"
	"github.com/agentdesk/agentdesk/internal/auth"
	"github.com/agentdesk/agentdesk/internal/config"
	"github.com/agentdesk/agentdesk/internal/embeddings"
	"github.com/agentdesk/agentdesk/internal/llm"
	"github.com/agentdesk/agentdesk/internal/metrics"
	"github.com/agentdesk/agentdesk/internal/rag"
	"github.com/agentdesk/agentdesk/internal/retention"
	"github.com/agentdesk/agentdesk/internal/scheduler"
	"github.com/agentdesk/agentdesk/internal/store"
	"github.com/agentdesk/agentdesk/internal/telemetry"
	"github.com/agentdesk/agentdesk/internal/vectorstore"
	"github.com/agentdesk/agentdesk/internal/workflow"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized AgentDesk API server.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store (in-memory or PostgreSQL).
	Store store.Store

	// Scheduler fires scheduled workflows. Started by Start.
	Scheduler *scheduler.Scheduler

	// Port is the port the server should listen on.
	Port int

	cfg     *config.Config
	janitor *retention.Janitor

	// shutdownTelemetry flushes pending spans on graceful shutdown.
	shutdownTelemetry func(context.Context) error

	cancelBackground context.CancelFunc
}

// New initializes all components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the server with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Auth: JWT session tokens first, API keys second.
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	chain := auth.NewProviderChain()
	chain.RegisterProvider(auth.NewJWTProvider(tokens, dataStore))
	chain.RegisterProvider(auth.NewAPIKeyProvider(dataStore))

	client := llm.NewClient(cfg.LLM.OllamaURL, cfg.LLM.DefaultModel)
	runner := agents.NewRunner(client, cfg.LLM.DemoMode)
	engine := workflow.NewEngine(dataStore, runner)
	metricsSvc := metrics.NewService(dataStore)

	vectors, err := newVectorStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	embedder := embeddings.NewOllamaEmbedder(cfg.LLM.OllamaURL, cfg.LLM.EmbeddingModel)
	ragSvc := rag.NewService(dataStore, embedder, vectors, client)

	sched := scheduler.New(dataStore, engine)
	janitor := retention.NewJanitor(dataStore, cfg.Retention.ExecutionTTL, 0)
	janitor.SetArchiver(retention.NewLocalFileArchiver("", true))

	h := handlers.New(dataStore, tokens, runner, engine, metricsSvc, ragSvc, client, sched, cfg.Version)
	router := api.NewRouter(h, chain)

	log.Info().
		Str("version", cfg.Version).
		Bool("demo_mode", cfg.LLM.DemoMode).
		Msg("✅ AgentDesk components initialized")

	return &Server{
		Handler:           router,
		Store:             dataStore,
		Scheduler:         sched,
		Port:              cfg.Port,
		cfg:               cfg,
		janitor:           janitor,
		shutdownTelemetry: shutdown,
	}, nil
}

// Start launches the background workers: the cron scheduler and the
// execution retention janitor.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelBackground = cancel

	if err := s.Scheduler.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start scheduler: %w", err)
	}
	go s.janitor.Start(ctx)
	return nil
}

// Shutdown stops background workers, flushes telemetry, and closes the
// store.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBackground != nil {
		s.cancelBackground()
	}
	s.Scheduler.Stop()
	if err := s.shutdownTelemetry(ctx); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
	return s.Store.Close()
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL != "" {
		s, err := store.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		log.Info().Msg("✅ PostgreSQL store initialized")
		return s, nil
	}
	s := store.NewMemoryStore()
	log.Info().Msg("✅ In-memory store initialized")
	return s, nil
}

func newVectorStore(ctx context.Context, cfg *config.Config) (vectorstore.Driver, error) {
	if cfg.Database.PgvectorURL != "" {
		dims := embeddings.NewOllamaEmbedder(cfg.LLM.OllamaURL, cfg.LLM.EmbeddingModel).Dimensions()
		vs, err := vectorstore.NewPgvectorStore(ctx, cfg.Database.PgvectorURL, dims)
		if err != nil {
			return nil, fmt.Errorf("connect pgvector: %w", err)
		}
		log.Info().Msg("✅ pgvector document index initialized")
		return vs, nil
	}
	log.Info().Msg("✅ Embedded document index initialized")
	return vectorstore.NewEmbeddedStore(), nil
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arahq/ara/db"
	"github.com/arahq/ara/internal/config"
	"github.com/arahq/ara/internal/database"
	"github.com/arahq/ara/internal/engine"
	"github.com/arahq/ara/internal/knowledge"
	"github.com/arahq/ara/internal/llm"
	"github.com/arahq/ara/internal/log"
	"github.com/arahq/ara/internal/observability"
	"github.com/arahq/ara/internal/security"
	"github.com/arahq/ara/internal/thread"
	"github.com/arahq/ara/internal/tools"
)

// app holds the wired application. Every command goes through setup so
// config loading, migrations, and dependency construction happen exactly
// the same way everywhere.
type app struct {
	cfg    *config.Config
	logger log.Logger
	pool   *pgxpool.Pool

	threads   *thread.Store
	knowledge *knowledge.Store
	engine    *engine.Engine

	shutdownTracing func(context.Context) error
}

// setup loads config, runs migrations, and wires the full dependency
// graph. Callers must invoke close when done.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{})

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	if err := db.Migrate(cfg.DSN()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	threadStore := thread.NewStore(thread.NewPostgresQuerier(pool), pool, logger)

	// All outbound HTTP shares an SSRF-guarded client.
	outbound := security.NewGuard().NewClient(30 * time.Second)

	chunker, err := knowledge.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building chunker: %w", err)
	}
	embedder, err := knowledge.NewHFEmbedder(knowledge.HFConfig{
		APIKey:     cfg.HuggingFaceAPIKey,
		Model:      cfg.EmbedderModel,
		BatchSize:  cfg.EmbedBatchSize,
		HTTPClient: outbound,
		Logger:     logger,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building embedder: %w", err)
	}
	knowledgeStore := knowledge.NewStore(knowledge.NewPostgresQuerier(pool), embedder, chunker, logger)

	model, err := llm.NewGroqClient(llm.Config{
		APIKey:        cfg.GroqAPIKey,
		BackupAPIKey:  cfg.GroqAPIKeyBackup,
		Model:         cfg.ModelName,
		FallbackModel: cfg.FallbackModel,
		Logger:        logger,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building model client: %w", err)
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterWebTools(registry, tools.WebToolsConfig{
		SerperAPIKey:       cfg.SerperAPIKey,
		NewsAPIKey:         cfg.NewsAPIKey,
		TavilyAPIKey:       cfg.TavilyAPIKey,
		AlphaVantageAPIKey: cfg.AlphaVantageAPIKey,
		HTTPClient:         outbound,
		Logger:             logger,
	}); err != nil {
		pool.Close()
		return nil, fmt.Errorf("registering web tools: %w", err)
	}
	ragTool, err := tools.NewRAGSearch(knowledgeStore, cfg.RetrievalTopK, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building rag tool: %w", err)
	}
	if err := registry.Register(ragTool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("registering rag tool: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Model:       model,
		History:     threadStore,
		Runner:      tools.NewDispatcher(registry, logger),
		Registry:    registry,
		Logger:      logger,
		MaxTurns:    cfg.MaxTurns,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building engine: %w", err)
	}

	return &app{
		cfg:             cfg,
		logger:          logger,
		pool:            pool,
		threads:         threadStore,
		knowledge:       knowledgeStore,
		engine:          eng,
		shutdownTracing: shutdownTracing,
	}, nil
}

// close releases the pool and flushes traces.
func (a *app) close(ctx context.Context) {
	a.pool.Close()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.Warn("flushing traces failed", "error", err)
	}
}

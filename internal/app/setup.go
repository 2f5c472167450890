package app

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exbordia/exbordia/db"
	"github.com/exbordia/exbordia/internal/agent"
	"github.com/exbordia/exbordia/internal/config"
	"github.com/exbordia/exbordia/internal/conversation"
	"github.com/exbordia/exbordia/internal/ingest"
	"github.com/exbordia/exbordia/internal/knowledge"
	"github.com/exbordia/exbordia/internal/log"
	"github.com/exbordia/exbordia/internal/notion"
	"github.com/exbordia/exbordia/internal/orchestrator"
	"github.com/exbordia/exbordia/internal/rag"
	"github.com/exbordia/exbordia/internal/taxonomy"
)

// pingTimeout bounds the startup connectivity check.
const pingTimeout = 5 * time.Second

// Setup builds the full application from configuration: migrations, database
// pool, Genkit with the configured provider plugin, and every pipeline
// component wired together. On error, anything already opened is released.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	logger.Info("database pool ready",
		"host", cfg.PostgresHost, "database", cfg.PostgresDBName)

	g, embedder, err := initGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Embedder = embedder
	logger.Info("genkit initialized",
		"provider", cfg.Provider, "model", cfg.ModelName, "embedder", cfg.EmbedderModel)

	modelName := cfg.FullModelName()

	a.Knowledge, err = knowledge.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}
	a.Classifier = taxonomy.NewClassifier(g, modelName, logger)

	a.Retriever, err = rag.New(a.Knowledge, knowledge.NewEmbedder(embedder, logger), a.Classifier, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}

	a.Conversations, err = conversation.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating conversation store: %w", err)
	}
	a.Analyzer, err = conversation.NewAnalyzer(a.Conversations, g, modelName, logger)
	if err != nil {
		return nil, fmt.Errorf("creating analyzer: %w", err)
	}

	a.Router, err = agent.NewRouter(agent.Config{
		Genkit:      g,
		ModelName:   modelName,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	a.Orchestrator, err = orchestrator.New(a.Conversations, a.Retriever, a.Router, a.Analyzer, cfg.MaxHistoryTurns, logger)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	ok = true
	return a, nil
}

// Ingestor builds the Notion ingestion pipeline on top of the app's
// components. Requires the Notion settings, so it validates them first.
func (a *App) Ingestor() (*ingest.Ingestor, error) {
	if err := a.Config.ValidateSync(); err != nil {
		return nil, err
	}

	client, err := notion.New(a.Config.NotionToken, a.Logger,
		notion.WithVersion(a.Config.NotionVersion))
	if err != nil {
		return nil, fmt.Errorf("creating notion client: %w", err)
	}

	ing, err := ingest.New(ingest.Deps{
		Source:     client,
		Store:      a.Knowledge,
		Embedder:   knowledge.NewEmbedder(a.Embedder, a.Logger),
		Classifier: a.Classifier,
		Genkit:     a.Genkit,
		ModelName:  a.Config.FullModelName(),
		ChunkSize:  a.Config.ChunkSize,
		Workers:    a.Config.IngestWorkers,
		Logger:     a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ingestor: %w", err)
	}
	return ing, nil
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// initGenkit initializes Genkit with the plugin for the configured provider
// and resolves the embedder. Both providers truncate or pad embeddings to
// knowledge.VectorDimension downstream; see knowledge.Embedder.
func initGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, ai.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		embedder := genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
		if embedder == nil {
			return nil, nil, fmt.Errorf("%w: embedder %q not found", config.ErrInvalidEmbedderModel, cfg.EmbedderModel)
		}
		return g, embedder, nil

	case config.ProviderGoogleAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		if embedder == nil {
			return nil, nil, fmt.Errorf("%w: embedder %q not found", config.ErrInvalidEmbedderModel, cfg.EmbedderModel)
		}
		return g, embedder, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Provider)
	}
}

// Package app assembles the application: configuration in, wired components
// out. Dependency injection is manual and explicit; Setup builds everything
// in dependency order and Close tears it down in reverse.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exbordia/exbordia/internal/agent"
	"github.com/exbordia/exbordia/internal/config"
	"github.com/exbordia/exbordia/internal/conversation"
	"github.com/exbordia/exbordia/internal/knowledge"
	"github.com/exbordia/exbordia/internal/log"
	"github.com/exbordia/exbordia/internal/orchestrator"
	"github.com/exbordia/exbordia/internal/rag"
	"github.com/exbordia/exbordia/internal/taxonomy"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Pool     *pgxpool.Pool
	Embedder ai.Embedder

	Knowledge     *knowledge.Store
	Conversations *conversation.Store
	Classifier    *taxonomy.Classifier
	Retriever     *rag.Retriever
	Router        *agent.Router
	Analyzer      *conversation.Analyzer
	Orchestrator  *orchestrator.Orchestrator
}

// Close shuts down resources in reverse setup order: drain in-flight
// analysis goroutines first, then release the database pool.
func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
}

// Package orchestrator wires retrieval, routing and persistence into the
// message-processing pipeline behind the chat API.
//
// The response path is synchronous: load history, retrieve documentation,
// generate the answer, save the turn. Turn analysis runs afterwards in a
// fire-and-forget goroutine; the caller never waits for it.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exbordia/exbordia/internal/agent"
	"github.com/exbordia/exbordia/internal/conversation"
	"github.com/exbordia/exbordia/internal/log"
	"github.com/exbordia/exbordia/internal/rag"
)

// defaultHistoryTurns is how many prior turns feed the prompt when no limit
// is configured.
const defaultHistoryTurns = 5

// analyzeTimeout bounds a background analysis run.
const analyzeTimeout = 30 * time.Second

// HistoryStore is the subset of the conversation store the pipeline uses.
type HistoryStore interface {
	Context(ctx context.Context, telegramID, sessionID int64, limit int) (*conversation.Context, error)
	Save(ctx context.Context, p conversation.SaveTurn) (uuid.UUID, error)
}

// Retriever finds documentation context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, categories []string) (*rag.Retrieval, error)
}

// Responder routes a query to a specialist and generates the answer.
type Responder interface {
	Handle(ctx context.Context, telegramID int64, query, docContext string, seed []agent.Message) (*agent.Reply, error)
}

// Analyzer derives analysis for a saved turn.
type Analyzer interface {
	Analyze(ctx context.Context, turnID uuid.UUID) error
}

// Reply is the answer returned to the chat surface.
type Reply struct {
	Response  string
	SessionID int64
	Variant   agent.Variant
	Handoff   bool
}

// Orchestrator runs the message-processing pipeline.
type Orchestrator struct {
	store        HistoryStore
	retriever    Retriever
	router       Responder
	analyzer     Analyzer
	historyTurns int
	logger       log.Logger

	wg sync.WaitGroup
}

// New creates an Orchestrator. historyTurns is how many prior turns feed the
// prompt; zero or negative selects the default.
func New(store HistoryStore, retriever Retriever, router Responder, analyzer Analyzer, historyTurns int, logger log.Logger) (*Orchestrator, error) {
	switch {
	case store == nil:
		return nil, fmt.Errorf("history store is required")
	case retriever == nil:
		return nil, fmt.Errorf("retriever is required")
	case router == nil:
		return nil, fmt.Errorf("responder is required")
	case analyzer == nil:
		return nil, fmt.Errorf("analyzer is required")
	case logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if historyTurns <= 0 {
		historyTurns = defaultHistoryTurns
	}
	return &Orchestrator{
		store:        store,
		retriever:    retriever,
		router:       router,
		analyzer:     analyzer,
		historyTurns: historyTurns,
		logger:       logger,
	}, nil
}

// ProcessMessage answers one user query.
//
// A failed save is logged but does not withhold the answer the user already
// paid a generation for; analysis of the saved turn runs asynchronously on a
// background context so request cancellation cannot abort it.
func (o *Orchestrator) ProcessMessage(ctx context.Context, telegramID, sessionID int64, query string) (*Reply, error) {
	start := time.Now()

	history, err := o.store.Context(ctx, telegramID, sessionID, o.historyTurns)
	if err != nil {
		return nil, fmt.Errorf("loading conversation context: %w", err)
	}

	retrieval, err := o.retriever.Retrieve(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieving documentation: %w", err)
	}

	seed := make([]agent.Message, 0, len(history.Messages))
	for _, m := range history.Messages {
		seed = append(seed, agent.Message{Role: m.Role, Content: m.Content})
	}

	reply, err := o.router.Handle(ctx, telegramID, query, retrieval.Context, seed)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	executionTime := time.Since(start).Seconds()
	turnID, err := o.store.Save(ctx, conversation.SaveTurn{
		TelegramID:    telegramID,
		SessionID:     sessionID,
		Question:      query,
		Answer:        reply.Response,
		TotalTokens:   reply.Usage.TotalTokens,
		ExecutionTime: executionTime,
		Metadata: map[string]any{
			"agent_used":  string(reply.Variant),
			"had_handoff": reply.Handoff,
			"categories":  retrieval.Categories,
		},
	})
	if err != nil {
		o.logger.Error("saving turn failed, reply still returned",
			"telegram_id", telegramID,
			"session_id", sessionID,
			"error", err)
	} else {
		o.analyzeAsync(turnID)
	}

	o.logger.Info("message processed",
		"telegram_id", telegramID,
		"session_id", sessionID,
		"variant", reply.Variant,
		"handoff", reply.Handoff,
		"matches", retrieval.Matches,
		"duration", time.Since(start))

	return &Reply{
		Response:  reply.Response,
		SessionID: sessionID,
		Variant:   reply.Variant,
		Handoff:   reply.Handoff,
	}, nil
}

// analyzeAsync runs turn analysis in the background.
func (o *Orchestrator) analyzeAsync(turnID uuid.UUID) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), analyzeTimeout)
		defer cancel()

		if err := o.analyzer.Analyze(ctx, turnID); err != nil {
			o.logger.Warn("turn analysis failed", "turn_id", turnID, "error", err)
		}
	}()
}

// Close waits for in-flight analysis goroutines to finish.
func (o *Orchestrator) Close() {
	o.wg.Wait()
}

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/exbordia/exbordia/internal/log"
)

// analyzeTimeout bounds a single turn analysis call.
const analyzeTimeout = 30 * time.Second

// summaryTimeout bounds a session summary call.
const summaryTimeout = 30 * time.Second

// maxSummaryTurns caps how much history a session summary sees.
const maxSummaryTurns = 10

// analysisPrompt asks for per-turn insight as strict JSON.
const analysisPrompt = `Analiza este intercambio entre un vendedor de Amazon y su asistente.

Pregunta del usuario:
%s

Respuesta del asistente:
%s

Responde SOLO con un objeto JSON con este formato:
{
  "sentiment": "positive" | "neutral" | "negative",
  "summary": "resumen breve del intercambio",
  "topics": ["tema1", "tema2"],
  "entities": ["entidad1"],
  "intent": "qué busca el usuario"
}

JSON:`

// summaryPrompt asks for a short session recap.
const summaryPrompt = `Resume esta conversación entre un vendedor de Amazon y su asistente.
Menciona los temas tratados y cualquier pendiente. Sé breve.

Conversación:
%s

Resumen:`

// analysisStore is the subset of Store the analyzer needs.
type analysisStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Turn, error)
	UpdateAnalysis(ctx context.Context, id uuid.UUID, sentiment, summary string, topics []string, extra map[string]any) error
	Recent(ctx context.Context, telegramID, sessionID int64, limit int) ([]Turn, error)
}

// Analyzer derives sentiment, topics and intent for stored turns.
type Analyzer struct {
	store     analysisStore
	g         *genkit.Genkit
	modelName string
	logger    log.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(store analysisStore, g *genkit.Genkit, modelName string, logger log.Logger) (*Analyzer, error) {
	switch {
	case store == nil:
		return nil, fmt.Errorf("store is required")
	case g == nil:
		return nil, fmt.Errorf("genkit instance is required")
	case modelName == "":
		return nil, fmt.Errorf("model name is required")
	case logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	return &Analyzer{store: store, g: g, modelName: modelName, logger: logger}, nil
}

// Analyze derives analysis for one turn and merges it into the record.
// Sentiment, summary and topics land in their columns; entities, intent and
// the analysis timestamp go into metadata.
func (a *Analyzer) Analyze(ctx context.Context, turnID uuid.UUID) error {
	turn, err := a.store.Get(ctx, turnID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()

	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.modelName),
		ai.WithPrompt(fmt.Sprintf(analysisPrompt, turn.Question, turn.Answer)),
		ai.WithConfig(map[string]any{"temperature": 0.3}),
	)
	if err != nil {
		return fmt.Errorf("generating analysis: %w", err)
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Text())), &analysis); err != nil {
		return fmt.Errorf("parsing analysis response: %w", err)
	}

	switch analysis.Sentiment {
	case "positive", "neutral", "negative":
	default:
		analysis.Sentiment = "neutral"
	}

	extra := map[string]any{
		"analysis_timestamp": time.Now().UTC().Format(time.RFC3339),
		"entities":           analysis.Entities,
		"intent":             analysis.Intent,
	}
	if err := a.store.UpdateAnalysis(ctx, turnID, analysis.Sentiment, analysis.Summary, analysis.Topics, extra); err != nil {
		return err
	}

	a.logger.Info("turn analyzed",
		"turn_id", turnID,
		"sentiment", analysis.Sentiment,
		"topics", analysis.Topics)
	return nil
}

// SessionSummary produces a short recap of a session's recent history.
func (a *Analyzer) SessionSummary(ctx context.Context, telegramID, sessionID int64) (string, error) {
	turns, err := a.store.Recent(ctx, telegramID, sessionID, maxSummaryTurns)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", fmt.Errorf("session %d has no history", sessionID)
	}

	var transcript strings.Builder
	for i := len(turns) - 1; i >= 0; i-- {
		fmt.Fprintf(&transcript, "Usuario: %s\nAsistente: %s\n", turns[i].Question, turns[i].Answer)
	}

	ctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()

	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.modelName),
		ai.WithPrompt(fmt.Sprintf(summaryPrompt, transcript.String())),
		ai.WithConfig(map[string]any{"temperature": 0.5, "maxOutputTokens": 250}),
	)
	if err != nil {
		return "", fmt.Errorf("generating session summary: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// stripCodeFences removes ```json ... ``` wrapping from LLM output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/exbordia/exbordia/internal/log"
)

const (
	// selectTimeout bounds a routing classification call.
	selectTimeout = 15 * time.Second

	// generateTimeout bounds a specialist answer generation.
	generateTimeout = 60 * time.Second

	// maxHistoryMessages caps the in-memory history kept per user.
	maxHistoryMessages = 20

	// defaultTemperature is the answer sampling temperature when none is
	// configured. Routing classification always runs at 0.
	defaultTemperature = 0.4

	// defaultMaxTokens is the answer output cap when none is configured.
	defaultMaxTokens = 1000
)

// routePrompt classifies a query into a specialist variant.
const routePrompt = `Eres el agente de triage de un asistente para vendedores de Amazon.
Determina qué especialista debe responder la pregunta.

Especialistas disponibles:
- general: Especialista en ventas en Amazon USA
- logistics: Especialista en logística y envíos a Estados Unidos
- marketing: Especialista en marketing y optimización de listados en Amazon
- onboarding: Especialista en dar la bienvenida a los nuevos usuarios de Exbordia

Especialista actualmente activo: %s

Responde SOLO con un objeto JSON con este formato:
{"agent": "logistics"}

Pregunta:
%s

JSON:`

// Message is one prior exchange message used to seed a user's history.
type Message struct {
	Role    string
	Content string
}

// Usage is the token accounting of one generation.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Reply is the outcome of routing and answering one query.
type Reply struct {
	Response string
	Variant  Variant
	Handoff  bool
	Usage    Usage
}

// userState is the running conversation state for one user.
type userState struct {
	mu      sync.Mutex
	variant Variant
	history []*ai.Message
}

// Router selects a specialist for each query and generates the answer.
//
// State is per external user id and in-memory only; a restart puts every
// user back in triage. Turns of the same user are serialized, different
// users run concurrently.
type Router struct {
	g           *genkit.Genkit
	modelName   string
	temperature float64
	maxTokens   int
	logger      log.Logger

	mu     sync.Mutex
	states map[int64]*userState
}

// Config are the settings a Router needs.
type Config struct {
	Genkit    *genkit.Genkit
	ModelName string

	// Temperature and MaxTokens shape specialist answer generation.
	// Zero values select the defaults.
	Temperature float32
	MaxTokens   int

	Logger log.Logger
}

// NewRouter creates a Router.
func NewRouter(cfg Config) (*Router, error) {
	switch {
	case cfg.Genkit == nil:
		return nil, fmt.Errorf("genkit instance is required")
	case cfg.ModelName == "":
		return nil, fmt.Errorf("model name is required")
	case cfg.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}

	temperature := float64(cfg.Temperature)
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Router{
		g:           cfg.Genkit,
		modelName:   cfg.ModelName,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      cfg.Logger,
		states:      make(map[int64]*userState),
	}, nil
}

// ActiveVariant returns the variant currently active for a user.
// Users with no state yet are in Triage.
func (r *Router) ActiveVariant(telegramID int64) Variant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[telegramID]; ok {
		return s.variant
	}
	return Triage
}

// SelectNext classifies a query into the specialist that should answer it.
// Classification failure keeps the current specialist, or General when no
// specialist is active yet.
func (r *Router) SelectNext(ctx context.Context, current Variant, query string) Variant {
	fallback := General
	if current.Valid() {
		fallback = current
	}

	ctx, cancel := context.WithTimeout(ctx, selectTimeout)
	defer cancel()

	resp, err := genkit.Generate(ctx, r.g,
		ai.WithModelName(r.modelName),
		ai.WithPrompt(fmt.Sprintf(routePrompt, current, query)),
		ai.WithConfig(map[string]any{"temperature": 0.0}),
	)
	if err != nil {
		r.logger.Warn("routing classification failed, keeping fallback",
			"fallback", fallback, "error", err)
		return fallback
	}

	text := stripCodeFences(resp.Text())
	var payload struct {
		Agent string `json:"agent"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err == nil {
		if v, ok := parseVariant(payload.Agent); ok {
			return v
		}
	}
	// Tolerate a bare variant name outside JSON
	if v, ok := parseVariant(text); ok {
		return v
	}

	r.logger.Warn("unroutable classification response, keeping fallback",
		"fallback", fallback, "response", text)
	return fallback
}

// Handle routes one query and generates the specialist's answer.
// seed is the stored history used to warm up a user whose in-memory state is
// empty; it is ignored once the router has its own history for the user.
func (r *Router) Handle(ctx context.Context, telegramID int64, query, docContext string, seed []Message) (*Reply, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	state := r.state(telegramID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if len(state.history) == 0 && len(seed) > 0 {
		state.history = convertMessages(seed)
	}

	selected := r.SelectNext(ctx, state.variant, query)
	handoff := state.variant.Valid() && selected != state.variant

	system := SystemPrompt(selected)
	if docContext != "" {
		system += "\n\nDocumentación relevante:\n" + docContext
	}

	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	resp, err := genkit.Generate(genCtx, r.g,
		ai.WithModelName(r.modelName),
		ai.WithSystem(system),
		ai.WithMessages(state.history...),
		ai.WithPrompt(query),
		ai.WithConfig(map[string]any{"temperature": r.temperature, "maxOutputTokens": r.maxTokens}),
	)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	answer := resp.Text()

	state.variant = selected
	state.history = append(state.history,
		ai.NewUserTextMessage(query),
		ai.NewModelTextMessage(answer),
	)
	if len(state.history) > maxHistoryMessages {
		state.history = state.history[len(state.history)-maxHistoryMessages:]
	}

	reply := &Reply{
		Response: answer,
		Variant:  selected,
		Handoff:  handoff,
	}
	if resp.Usage != nil {
		reply.Usage = Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}

	if handoff {
		r.logger.Info("specialist handoff",
			"telegram_id", telegramID,
			"to", selected)
	}
	return reply, nil
}

// state returns (creating if needed) the state for a user.
func (r *Router) state(telegramID int64) *userState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[telegramID]
	if !ok {
		s = &userState{variant: Triage}
		r.states[telegramID] = s
	}
	return s
}

// convertMessages turns stored role/content pairs into model messages.
func convertMessages(msgs []Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "assistant", "model":
			out = append(out, ai.NewModelTextMessage(m.Content))
		default:
			out = append(out, ai.NewUserTextMessage(m.Content))
		}
	}
	return out
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

package taxonomy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/exbordia/exbordia/internal/log"
)

// classifyTimeout bounds a single classification call.
const classifyTimeout = 15 * time.Second

// maxClassifyResponseBytes limits LLM response size before JSON parsing.
const maxClassifyResponseBytes = 4 * 1024

// maxQueryCategories caps how many categories a query may be scoped to.
const maxQueryCategories = 3

// chunkPrompt asks for every category a documentation chunk belongs to.
const chunkPrompt = `Analiza el siguiente texto y determina a qué categorías pertenece.

Categorías disponibles:
%s
Reglas:
- Asigna SOLO categorías de la lista anterior
- Un texto puede pertenecer a varias categorías
- Si ninguna categoría aplica, responde con "uncategorized"

Responde SOLO con un objeto JSON con este formato:
{"categories": ["Logística", "Amazon FBA y FBM"]}

Texto:
%s

JSON:`

// queryPrompt asks for the 1-3 categories most relevant to a user question.
const queryPrompt = `Analiza la pregunta de un vendedor de Amazon y determina en qué categorías de documentación buscar la respuesta.

Categorías disponibles:
%s
Reglas:
- Elige entre 1 y 3 categorías de la lista anterior
- Ordénalas de más a menos relevante

Responde SOLO con un objeto JSON con este formato:
{"categories": ["Logística", "Amazon FBA y FBM"]}

Pregunta:
%s

JSON:`

// defaultQueryCategories is used when query classification fails outright.
// Shipping and fulfillment questions dominate the traffic, so these two give
// the retriever a reasonable scope.
var defaultQueryCategories = []string{"Logística", "Amazon FBA y FBM"}

// Classifier labels text against the fixed category set using an LLM.
// Classification failures never propagate: chunk labeling degrades to
// Uncategorized and query scoping degrades to a default category pair.
type Classifier struct {
	g         *genkit.Genkit
	modelName string
	logger    log.Logger
}

// NewClassifier creates a classifier bound to the given model.
func NewClassifier(g *genkit.Genkit, modelName string, logger log.Logger) *Classifier {
	return &Classifier{
		g:         g,
		modelName: modelName,
		logger:    logger,
	}
}

// ChunkCategories returns the taxonomy labels for a documentation chunk.
// Always returns at least one label; [Uncategorized] on any failure.
func (c *Classifier) ChunkCategories(ctx context.Context, text string) []string {
	cats, err := c.classify(ctx, fmt.Sprintf(chunkPrompt, PromptList(), text))
	if err != nil {
		c.logger.Warn("chunk classification failed, using uncategorized", "error", err)
		return []string{Uncategorized}
	}
	return cats
}

// QueryCategories returns 1 to 3 categories to scope retrieval for a query.
// Falls back to a default category pair on failure; Uncategorized is not a
// useful search scope, so it is replaced by the default pair too.
func (c *Classifier) QueryCategories(ctx context.Context, query string) []string {
	cats, err := c.classify(ctx, fmt.Sprintf(queryPrompt, PromptList(), query))
	if err != nil {
		c.logger.Warn("query classification failed, using default categories", "error", err)
		return defaultQueryCategories
	}
	if len(cats) == 1 && cats[0] == Uncategorized {
		return defaultQueryCategories
	}
	if len(cats) > maxQueryCategories {
		cats = cats[:maxQueryCategories]
	}
	return cats
}

func (c *Classifier) classify(ctx context.Context, prompt string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.modelName),
		ai.WithPrompt(prompt),
		ai.WithConfig(map[string]any{"temperature": 0.0}),
	)
	if err != nil {
		return nil, fmt.Errorf("generating classification: %w", err)
	}

	return ParseCategories(resp.Text())
}

// categoriesPayload is the JSON shape the classifier prompts request.
type categoriesPayload struct {
	Categories []string `json:"categories"`
}

// ParseCategories parses a classifier response into validated taxonomy labels.
// Markdown code fences are tolerated. Unknown labels are dropped; an empty
// survivor set collapses to [Uncategorized].
func ParseCategories(raw string) ([]string, error) {
	text := stripCodeFences(strings.TrimSpace(raw))
	if text == "" {
		return nil, fmt.Errorf("empty classification response")
	}
	if len(text) > maxClassifyResponseBytes {
		return nil, fmt.Errorf("classification response too large: %d bytes", len(text))
	}

	var payload categoriesPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("parsing classification result: %w (raw: %q)", err, truncate(text, 200))
	}

	return Sanitize(payload.Categories), nil
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

// truncate shortens s to at most n bytes for error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

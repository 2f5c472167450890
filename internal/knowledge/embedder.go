package knowledge

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"

	"github.com/exbordia/exbordia/internal/log"
)

// EmbedTimeout bounds a single embedding call.
const EmbedTimeout = 15 * time.Second

// Embedder wraps an ai.Embedder with a fixed output dimension and a
// zero-vector fallback.
//
// Embedding failures never abort ingestion or retrieval: any error yields a
// zero vector of VectorDimension entries and a warning log. A zero vector has
// no direction, so it matches nothing under cosine similarity; the chunk is
// still stored and a query still runs, just without a useful vector.
type Embedder struct {
	embedder ai.Embedder
	logger   log.Logger
}

// NewEmbedder creates an Embedder.
func NewEmbedder(embedder ai.Embedder, logger log.Logger) *Embedder {
	return &Embedder{embedder: embedder, logger: logger}
}

// Embed returns the embedding vector for text.
// The result always has exactly VectorDimension entries.
func (e *Embedder) Embed(ctx context.Context, text string) []float32 {
	ctx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	dim := int32(VectorDimension)
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		e.logger.Warn("embedding failed, using zero vector", "error", err, "text_len", len(text))
		return make([]float32, VectorDimension)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		e.logger.Warn("empty embedding response, using zero vector", "text_len", len(text))
		return make([]float32, VectorDimension)
	}

	vec := resp.Embeddings[0].Embedding
	if len(vec) != VectorDimension {
		e.logger.Warn("unexpected embedding dimension, using zero vector",
			"got", len(vec), "want", VectorDimension)
		return make([]float32, VectorDimension)
	}
	return vec
}

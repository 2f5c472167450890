package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the embedding dimension for the site_pages schema.
// text-embedding-3-small outputs 1536 dimensions natively; Gemini embedders
// are truncated to the same via OutputDimensionality.
const VectorDimension = 1536

// Defaults applied when a document declares no value.
const (
	DefaultMarketplace = "general"
	DefaultSourceName  = "notion"
)

// Chunk is one stored slice of a document.
type Chunk struct {
	ID          uuid.UUID      `json:"id"`
	URL         string         `json:"url"`
	ChunkNumber int            `json:"chunk_number"`
	Title       string         `json:"title"`
	Summary     string         `json:"summary"`
	Content     string         `json:"content"`
	Marketplace string         `json:"marketplace"`
	Category    []string       `json:"category"`
	SourceName  []string       `json:"source_name"`
	Metadata    map[string]any `json:"metadata"`
	Embedding   []float32      `json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Result is a chunk returned from similarity search with its score.
// Similarity is cosine similarity in [0, 1]; higher is more similar.
type Result struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// PageSummary describes a stored document at page granularity.
type PageSummary struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Category []string `json:"category"`
	Chunks   int      `json:"chunks"`
}

// Package ingest turns Notion documentation pages into embedded, categorized
// chunks in the knowledge store.
//
// A page is ingested with replace semantics: existing chunks for its document
// URL are deleted first, then the page content is split, described, labeled
// and embedded chunk by chunk. Chunk processing runs on a bounded worker pool;
// a failed chunk is logged and does not abort its siblings.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/sync/errgroup"

	"github.com/exbordia/exbordia/internal/knowledge"
	"github.com/exbordia/exbordia/internal/log"
	"github.com/exbordia/exbordia/internal/notion"
	"github.com/exbordia/exbordia/internal/taxonomy"
)

// ErrEmptyPage indicates a page rendered to no text content and was skipped.
var ErrEmptyPage = errors.New("page has no content")

// describeTimeout bounds a single title/summary generation call.
const describeTimeout = 30 * time.Second

// maxDescribeInput caps how much chunk text the title/summary prompt sees.
const maxDescribeInput = 1500

// fallbackSummary is stored when summary generation fails.
const fallbackSummary = "No summary available"

// describePrompt asks for a chunk title and summary as strict JSON.
const describePrompt = `You are extracting a title and a summary from a documentation chunk.

Return ONLY a JSON object with "title" and "summary" keys.
- title: if this looks like the start of a document, use its title; for a
  middle chunk, derive a short descriptive title for it.
- summary: a concise summary of the main topics in this chunk.
Keep both concise but informative.

URL: %s

Content:
%s

JSON:`

// PageSource lists pages of a database and reads their block content.
type PageSource interface {
	QueryDatabase(ctx context.Context, databaseID string) ([]notion.Page, error)
	GetBlockChildren(ctx context.Context, blockID string) ([]notion.Block, error)
}

// ChunkStore persists document chunks.
type ChunkStore interface {
	Insert(ctx context.Context, c *knowledge.Chunk) error
	DeleteByURL(ctx context.Context, url string) (int, error)
}

// Embedder produces a fixed-dimension vector for text.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Labeler assigns taxonomy categories to chunk text.
type Labeler interface {
	ChunkCategories(ctx context.Context, text string) []string
}

// Deps are the collaborators an Ingestor needs.
type Deps struct {
	Source     PageSource
	Store      ChunkStore
	Embedder   Embedder
	Classifier Labeler
	Genkit     *genkit.Genkit
	ModelName  string
	ChunkSize  int
	Workers    int
	Logger     log.Logger
}

// Ingestor converts Notion pages into stored knowledge chunks.
type Ingestor struct {
	source     PageSource
	store      ChunkStore
	embedder   Embedder
	classifier Labeler
	g          *genkit.Genkit
	modelName  string
	chunkSize  int
	workers    int
	logger     log.Logger
}

// New creates an Ingestor.
func New(d Deps) (*Ingestor, error) {
	switch {
	case d.Source == nil:
		return nil, fmt.Errorf("page source is required")
	case d.Store == nil:
		return nil, fmt.Errorf("chunk store is required")
	case d.Embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	case d.Classifier == nil:
		return nil, fmt.Errorf("classifier is required")
	case d.Genkit == nil:
		return nil, fmt.Errorf("genkit instance is required")
	case d.ModelName == "":
		return nil, fmt.Errorf("model name is required")
	case d.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}

	if d.ChunkSize <= 0 {
		d.ChunkSize = knowledge.DefaultChunkSize
	}
	if d.Workers <= 0 {
		d.Workers = 4
	}

	return &Ingestor{
		source:     d.Source,
		store:      d.Store,
		embedder:   d.Embedder,
		classifier: d.Classifier,
		g:          d.Genkit,
		modelName:  d.ModelName,
		chunkSize:  d.ChunkSize,
		workers:    d.Workers,
		logger:     d.Logger,
	}, nil
}

// IngestPage ingests one Notion page, replacing any chunks previously stored
// for its document URL. Returns ErrEmptyPage when the page has no text.
func (i *Ingestor) IngestPage(ctx context.Context, page notion.Page) error {
	meta := notion.ExtractMeta(page)
	url := notion.DocumentURL(meta.DocID)

	blocks, err := i.source.GetBlockChildren(ctx, page.ID)
	if err != nil {
		return fmt.Errorf("reading blocks of %s: %w", meta.DocID, err)
	}

	content := notion.ExtractContent(blocks)
	if strings.TrimSpace(content) == "" {
		i.logger.Info("skipping page without content", "doc_id", meta.DocID, "title", meta.Title)
		return ErrEmptyPage
	}

	deleted, err := i.store.DeleteByURL(ctx, url)
	if err != nil {
		return fmt.Errorf("deleting existing chunks for %s: %w", url, err)
	}
	if deleted > 0 {
		i.logger.Info("replaced existing document chunks", "url", url, "deleted", deleted)
	}

	texts := knowledge.SplitText(content, i.chunkSize)

	var failed atomic.Int32
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(i.workers)
	for n, text := range texts {
		grp.Go(func() error {
			if err := i.processChunk(grpCtx, meta, url, n, text); err != nil {
				failed.Add(1)
				i.logger.Error("chunk ingestion failed",
					"url", url,
					"chunk_number", n,
					"error", err)
			}
			return nil
		})
	}
	grp.Wait()

	if int(failed.Load()) == len(texts) {
		return fmt.Errorf("all %d chunks of %s failed", len(texts), url)
	}

	i.logger.Info("page ingested",
		"url", url,
		"title", meta.Title,
		"chunks", len(texts),
		"failed_chunks", failed.Load())
	return nil
}

// processChunk derives title, summary, categories and embedding for one chunk
// and stores it.
func (i *Ingestor) processChunk(ctx context.Context, meta notion.PageMeta, url string, n int, text string) error {
	title, summary := i.describe(ctx, meta.Title, url, n, text)

	categories := i.classifier.ChunkCategories(ctx, text)
	if !usableCategories(categories) {
		categories = taxonomy.Sanitize([]string{meta.Category})
	}

	chunk := &knowledge.Chunk{
		URL:         url,
		ChunkNumber: n,
		Title:       title,
		Summary:     summary,
		Content:     text,
		Marketplace: meta.Marketplace,
		Category:    categories,
		SourceName:  meta.SourceName,
		Metadata: map[string]any{
			"source":       "notion",
			"doc_id":       meta.DocID,
			"processed_at": time.Now().UTC().Format(time.RFC3339),
		},
		Embedding: i.embedder.Embed(ctx, text),
	}

	if err := i.store.Insert(ctx, chunk); err != nil {
		return fmt.Errorf("inserting chunk: %w", err)
	}
	return nil
}

// describePayload is the JSON shape the describe prompt requests.
type describePayload struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// describe returns a title and summary for a chunk. The first chunk always
// carries the document title; later chunks get an LLM-derived title with a
// "(Part N)" fallback. The summary is LLM-derived with a fixed fallback.
func (i *Ingestor) describe(ctx context.Context, docTitle, url string, n int, text string) (string, string) {
	title := docTitle
	if n > 0 {
		title = fmt.Sprintf("%s (Part %d)", docTitle, n+1)
	}
	summary := fallbackSummary

	input := text
	if len(input) > maxDescribeInput {
		// Back off to a rune boundary so a multi-byte rune is never split
		cut := maxDescribeInput
		for cut > 0 && !utf8.RuneStart(input[cut]) {
			cut--
		}
		input = input[:cut]
	}

	ctx, cancel := context.WithTimeout(ctx, describeTimeout)
	defer cancel()

	resp, err := genkit.Generate(ctx, i.g,
		ai.WithModelName(i.modelName),
		ai.WithPrompt(fmt.Sprintf(describePrompt, url, input)),
		ai.WithConfig(map[string]any{"temperature": 0.3}),
	)
	if err != nil {
		i.logger.Warn("title/summary generation failed, using fallbacks",
			"url", url, "chunk_number", n, "error", err)
		return title, summary
	}

	var payload describePayload
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Text())), &payload); err != nil {
		i.logger.Warn("unparseable title/summary response, using fallbacks",
			"url", url, "chunk_number", n, "error", err)
		return title, summary
	}

	if n > 0 && strings.TrimSpace(payload.Title) != "" {
		title = strings.TrimSpace(payload.Title)
	}
	if strings.TrimSpace(payload.Summary) != "" {
		summary = strings.TrimSpace(payload.Summary)
	}
	return title, summary
}

// usableCategories reports whether an AI labeling result should override the
// page's declared category. A bare Uncategorized carries no information.
func usableCategories(cats []string) bool {
	if len(cats) == 0 {
		return false
	}
	return len(cats) != 1 || cats[0] != taxonomy.Uncategorized
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

// Package rag retrieves documentation context for user questions.
//
// Retrieval is category-scoped: the query is classified into taxonomy
// categories (unless the caller supplies them) and matched against chunks
// sharing at least one of those categories. When the database-side category
// search is unavailable, retrieval degrades to a plain similarity search with
// client-side category filtering.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/exbordia/exbordia/internal/knowledge"
	"github.com/exbordia/exbordia/internal/log"
	"github.com/exbordia/exbordia/internal/taxonomy"
)

const (
	// defaultTopK is how many chunks a retrieval returns at most.
	defaultTopK = 5

	// fallbackTopK is the wider net cast by the similarity-only fallback,
	// which filters by category client-side afterwards.
	fallbackTopK = 10

	// minSimilarity is the cosine similarity floor for category search.
	minSimilarity = 0.5
)

// Searcher is the subset of the knowledge store retrieval depends on.
type Searcher interface {
	SearchByCategory(ctx context.Context, vec []float32, categories []string, topK int, minSimilarity float64) ([]knowledge.Result, error)
	SearchSimilar(ctx context.Context, vec []float32, topK int) ([]knowledge.Result, error)
	ListPages(ctx context.Context, category string) ([]knowledge.PageSummary, error)
}

// Embedder produces the query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Scoper infers which categories to search for a query.
type Scoper interface {
	QueryCategories(ctx context.Context, query string) []string
}

// Retrieval is the outcome of one retrieval: the formatted documentation
// context plus what was searched. Finding nothing is a valid outcome, not an
// error; Context then carries a message naming the searched categories.
type Retrieval struct {
	Context    string
	Categories []string
	Matches    int
}

// Retriever finds and formats documentation context for queries.
type Retriever struct {
	store    Searcher
	embedder Embedder
	scoper   Scoper
	logger   log.Logger
}

// New creates a Retriever.
func New(store Searcher, embedder Embedder, scoper Scoper, logger log.Logger) (*Retriever, error) {
	switch {
	case store == nil:
		return nil, fmt.Errorf("searcher is required")
	case embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	case scoper == nil:
		return nil, fmt.Errorf("scoper is required")
	case logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	return &Retriever{store: store, embedder: embedder, scoper: scoper, logger: logger}, nil
}

// Retrieve returns documentation context for a query. Explicit categories are
// sanitized and used as-is; otherwise the query is classified to infer them.
func (r *Retriever) Retrieve(ctx context.Context, query string, categories []string) (*Retrieval, error) {
	cats := taxonomy.Sanitize(categories)
	if len(categories) == 0 {
		cats = r.scoper.QueryCategories(ctx, query)
	}

	vec := r.embedder.Embed(ctx, query)

	results, err := r.store.SearchByCategory(ctx, vec, cats, defaultTopK, minSimilarity)
	if errors.Is(err, knowledge.ErrCategorySearchUnavailable) {
		r.logger.Warn("category search unavailable, falling back to similarity search",
			"categories", cats)
		results, err = r.fallbackSearch(ctx, vec, cats)
	}
	if err != nil {
		return nil, fmt.Errorf("searching documentation: %w", err)
	}

	retrieval := &Retrieval{
		Categories: cats,
		Matches:    len(results),
	}
	if len(results) == 0 {
		retrieval.Context = fmt.Sprintf(
			"No relevant documentation found. I searched in these categories: %s",
			strings.Join(cats, ", "))
		return retrieval, nil
	}

	retrieval.Context = formatResults(results)
	return retrieval, nil
}

// fallbackSearch runs a similarity-only search and filters by category
// intersection client-side.
func (r *Retriever) fallbackSearch(ctx context.Context, vec []float32, cats []string) ([]knowledge.Result, error) {
	all, err := r.store.SearchSimilar(ctx, vec, fallbackTopK)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(cats))
	for _, c := range cats {
		wanted[strings.ToLower(c)] = true
	}

	var filtered []knowledge.Result
	for _, res := range all {
		for _, c := range res.Category {
			if wanted[strings.ToLower(c)] {
				filtered = append(filtered, res)
				break
			}
		}
	}
	if len(filtered) > defaultTopK {
		filtered = filtered[:defaultTopK]
	}
	return filtered, nil
}

// Overview returns a one-line-per-document listing, optionally scoped to a
// category. Used for quick "what do we have on X" scans.
func (r *Retriever) Overview(ctx context.Context, category string) (string, error) {
	canonical := ""
	if category != "" {
		var ok bool
		canonical, ok = taxonomy.Normalize(category)
		if !ok {
			return "", fmt.Errorf("unknown category %q", category)
		}
	}

	pages, err := r.store.ListPages(ctx, canonical)
	if err != nil {
		return "", fmt.Errorf("listing documents: %w", err)
	}

	if len(pages) == 0 {
		if canonical != "" {
			return fmt.Sprintf("No documents found in category %s.", canonical), nil
		}
		return "No documents found.", nil
	}

	var b strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&b, "- %s [%s] (%s, %d chunks)\n",
			p.Title, strings.Join(p.Category, ", "), p.URL, p.Chunks)
	}
	return b.String(), nil
}

// formatResults renders retrieved chunks as a documentation context block.
func formatResults(results []knowledge.Result) string {
	parts := make([]string, 0, len(results))
	for _, res := range results {
		var b strings.Builder
		fmt.Fprintf(&b, "# %s [%s] [%s]\n",
			res.Title,
			strings.Join(res.Category, ", "),
			strings.ToUpper(res.Marketplace))
		if res.Summary != "" {
			fmt.Fprintf(&b, "**Summary**: %s\n", res.Summary)
		}
		b.WriteString("\n")
		b.WriteString(res.Content)
		b.WriteString("\n\nSource: ")
		b.WriteString(res.URL)
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n---\n\n")
}

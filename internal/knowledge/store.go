package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/exbordia/exbordia/internal/log"
)

// ErrCategorySearchUnavailable indicates the category search path is not
// usable in this database (the match_documents_by_category function is
// missing). Callers fall back to SearchSimilar with client-side filtering.
var ErrCategorySearchUnavailable = errors.New("category search unavailable")

// Postgres error codes that mean the category search function is absent.
const (
	pgUndefinedFunction = "42883"
	pgUndefinedTable    = "42P01"
)

// chunkCols is the standard SELECT column list for scanChunks.
const chunkCols = `id, url, chunk_number, title, summary, content,
	marketplace, category, source_name, metadata, created_at`

// Store persists documentation chunks in PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a chunk Store.
func NewStore(pool *pgxpool.Pool, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Insert stores one chunk. The (url, chunk_number) pair must not already
// exist; re-ingestion deletes the document's chunks first (see DeleteByURL).
func (s *Store) Insert(ctx context.Context, c *Chunk) error {
	if c.URL == "" {
		return fmt.Errorf("chunk url is required")
	}
	if len(c.Category) == 0 {
		return fmt.Errorf("chunk must carry at least one category")
	}

	marketplace := c.Marketplace
	if marketplace == "" {
		marketplace = DefaultMarketplace
	}
	sourceName := c.SourceName
	if len(sourceName) == 0 {
		sourceName = []string{DefaultSourceName}
	}
	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO site_pages
		   (url, chunk_number, title, summary, content, marketplace, category, source_name, metadata, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.URL, c.ChunkNumber, c.Title, c.Summary, c.Content,
		marketplace, c.Category, sourceName, metadata, pgvector.NewVector(c.Embedding),
	)
	if err != nil {
		return fmt.Errorf("inserting chunk %d for %s: %w", c.ChunkNumber, c.URL, err)
	}
	return nil
}

// DeleteByURL removes every chunk of a document. Returns the number of rows
// deleted; deleting an unknown url is not an error.
func (s *Store) DeleteByURL(ctx context.Context, url string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM site_pages WHERE url = $1`, url)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for %s: %w", url, err)
	}
	return int(tag.RowsAffected()), nil
}

// CountByURL returns how many chunks are stored for a document.
func (s *Store) CountByURL(ctx context.Context, url string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM site_pages WHERE url = $1`, url,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks for %s: %w", url, err)
	}
	return count, nil
}

// SearchByCategory finds the topK chunks most similar to vec whose category
// list overlaps categories, keeping only results at or above minSimilarity.
//
// Returns ErrCategorySearchUnavailable when the underlying SQL function does
// not exist, so the caller can fall back to SearchSimilar.
func (s *Store) SearchByCategory(ctx context.Context, vec []float32, categories []string, topK int, minSimilarity float64) ([]Result, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("at least one category is required")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, url, chunk_number, title, summary, content,
		        marketplace, category, source_name, metadata, similarity
		 FROM match_documents_by_category($1, $2, $3, $4)`,
		pgvector.NewVector(vec), categories, topK, minSimilarity,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == pgUndefinedFunction || pgErr.Code == pgUndefinedTable) {
			s.logger.Warn("category search function missing, caller should fall back",
				"code", pgErr.Code)
			return nil, fmt.Errorf("%w: %s", ErrCategorySearchUnavailable, pgErr.Message)
		}
		return nil, fmt.Errorf("category search: %w", err)
	}
	defer rows.Close()

	return scanResults(rows, false)
}

// SearchSimilar finds the topK chunks most similar to vec with no category
// filter. Used as the fallback retrieval path.
func (s *Store) SearchSimilar(ctx context.Context, vec []float32, topK int) ([]Result, error) {
	v := pgvector.NewVector(vec)
	rows, err := s.pool.Query(ctx,
		`SELECT `+chunkCols+`, 1 - (embedding <=> $1) AS similarity
		 FROM site_pages
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		v, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	return scanResults(rows, true)
}

// PageContent returns every chunk of a document ordered by chunk number.
func (s *Store) PageContent(ctx context.Context, url string) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+chunkCols+`
		 FROM site_pages
		 WHERE url = $1
		 ORDER BY chunk_number ASC`,
		url,
	)
	if err != nil {
		return nil, fmt.Errorf("loading page content for %s: %w", url, err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// ListPages returns one summary per stored document, optionally restricted to
// documents labeled with category. The title of chunk 0 names the page.
func (s *Store) ListPages(ctx context.Context, category string) ([]PageSummary, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if category != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT sp.url,
			        MIN(sp.title) FILTER (WHERE sp.chunk_number = 0) AS title,
			        (SELECT p0.category FROM site_pages p0
			          WHERE p0.url = sp.url ORDER BY p0.chunk_number LIMIT 1) AS category,
			        COUNT(*) AS chunks
			 FROM site_pages sp
			 WHERE sp.category && ARRAY[$1]
			 GROUP BY sp.url
			 ORDER BY sp.url`,
			category,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT sp.url,
			        MIN(sp.title) FILTER (WHERE sp.chunk_number = 0) AS title,
			        (SELECT p0.category FROM site_pages p0
			          WHERE p0.url = sp.url ORDER BY p0.chunk_number LIMIT 1) AS category,
			        COUNT(*) AS chunks
			 FROM site_pages sp
			 GROUP BY sp.url
			 ORDER BY sp.url`,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	defer rows.Close()

	var pages []PageSummary
	for rows.Next() {
		var p PageSummary
		var title *string
		if err := rows.Scan(&p.URL, &title, &p.Category, &p.Chunks); err != nil {
			return nil, fmt.Errorf("scanning page summary: %w", err)
		}
		if title != nil {
			p.Title = *title
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pages: %w", err)
	}
	return pages, nil
}

// scanChunks reads Chunk structs from pgx.Rows (standard column set).
func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(
			&c.ID, &c.URL, &c.ChunkNumber, &c.Title, &c.Summary, &c.Content,
			&c.Marketplace, &c.Category, &c.SourceName, &c.Metadata, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// scanResults reads Result structs. The category search function does not
// return created_at; withCreatedAt selects the column layout.
func scanResults(rows pgx.Rows, withCreatedAt bool) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var r Result
		var err error
		if withCreatedAt {
			err = rows.Scan(
				&r.ID, &r.URL, &r.ChunkNumber, &r.Title, &r.Summary, &r.Content,
				&r.Marketplace, &r.Category, &r.SourceName, &r.Metadata, &r.CreatedAt,
				&r.Similarity,
			)
		} else {
			err = rows.Scan(
				&r.ID, &r.URL, &r.ChunkNumber, &r.Title, &r.Summary, &r.Content,
				&r.Marketplace, &r.Category, &r.SourceName, &r.Metadata,
				&r.Similarity,
			)
		}
		if err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}

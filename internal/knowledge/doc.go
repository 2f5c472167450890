// Package knowledge stores and retrieves documentation chunks backed by
// PostgreSQL + pgvector.
//
// A document is identified by its URL and stored as an ordered sequence of
// chunks, each with its own embedding, taxonomy labels, and LLM-derived title
// and summary. Re-ingesting a document replaces its chunk set; (url,
// chunk_number) is unique.
//
// Search runs in two modes: category-scoped similarity search through the
// match_documents_by_category SQL function, and a plain similarity scan used
// as a fallback when that function is unavailable (see
// ErrCategorySearchUnavailable).
package knowledge

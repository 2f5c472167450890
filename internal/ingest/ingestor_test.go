package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/exbordia/exbordia/internal/knowledge"
	"github.com/exbordia/exbordia/internal/log"
	"github.com/exbordia/exbordia/internal/notion"
	"github.com/exbordia/exbordia/internal/testutil"
)

type fakeSource struct {
	pages    []notion.Page
	blocks   map[string][]notion.Block
	queryErr error
	blockErr map[string]error
}

func (f *fakeSource) QueryDatabase(_ context.Context, _ string) ([]notion.Page, error) {
	return f.pages, f.queryErr
}

func (f *fakeSource) GetBlockChildren(_ context.Context, blockID string) ([]notion.Block, error) {
	if err := f.blockErr[blockID]; err != nil {
		return nil, err
	}
	return f.blocks[blockID], nil
}

type fakeStore struct {
	mu        sync.Mutex
	inserts   []knowledge.Chunk
	deleted   []string
	existing  map[string]int
	insertErr error
}

func (f *fakeStore) Insert(_ context.Context, c *knowledge.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserts = append(f.inserts, *c)
	return nil
}

func (f *fakeStore) DeleteByURL(_ context.Context, url string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return f.existing[url], nil
}

func (f *fakeStore) chunks() []knowledge.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]knowledge.Chunk, len(f.inserts))
	copy(out, f.inserts)
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkNumber < out[j].ChunkNumber })
	return out
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) []float32 {
	v := make([]float32, knowledge.VectorDimension)
	v[0] = 1
	return v
}

type fakeLabeler struct {
	cats []string
}

func (f *fakeLabeler) ChunkCategories(_ context.Context, _ string) []string {
	return f.cats
}

func paragraphBlock(text string) notion.Block {
	return notion.Block{
		Type:      "paragraph",
		Paragraph: &notion.TextBlock{RichText: []notion.RichText{{Type: "text", PlainText: text}}},
	}
}

func docPage(id string, customID float64, declaredCategory string) notion.Page {
	props := map[string]notion.Property{
		"Name": {Type: "title", Title: []notion.RichText{{Type: "text", PlainText: "Guía de envíos"}}},
		"ID":   {Type: "number", Number: &customID},
	}
	if declaredCategory != "" {
		props["Category"] = notion.Property{Type: "select", Select: &notion.SelectOption{Name: declaredCategory}}
	}
	return notion.Page{ID: id, Properties: props}
}

func newTestIngestor(t *testing.T, src *fakeSource, store *fakeStore, labeler *fakeLabeler, mock *testutil.MockLLM, chunkSize int) *Ingestor {
	t.Helper()
	g := testutil.NewGenkit(t)
	mock.RegisterModel(g)

	ing, err := New(Deps{
		Source:     src,
		Store:      store,
		Embedder:   fakeEmbedder{},
		Classifier: labeler,
		Genkit:     g,
		ModelName:  "mock/test-model",
		ChunkSize:  chunkSize,
		Workers:    2,
		Logger:     log.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ing
}

func TestIngestPage(t *testing.T) {
	src := &fakeSource{blocks: map[string][]notion.Block{
		"p1": {paragraphBlock("Cómo enviar productos a México desde China.")},
	}}
	store := &fakeStore{}
	labeler := &fakeLabeler{cats: []string{"Logística"}}
	mock := testutil.NewMockLLM(`{"title": "Título derivado", "summary": "Resumen del contenido"}`)

	ing := newTestIngestor(t, src, store, labeler, mock, 0)
	if err := ing.IngestPage(context.Background(), docPage("p1", 7, "")); err != nil {
		t.Fatalf("IngestPage: %v", err)
	}

	chunks := store.chunks()
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	c := chunks[0]
	if c.URL != "notion://custom-7" {
		t.Errorf("url = %q, want notion://custom-7", c.URL)
	}
	// First chunk always carries the document title
	if c.Title != "Guía de envíos" {
		t.Errorf("title = %q, want document title", c.Title)
	}
	if c.Summary != "Resumen del contenido" {
		t.Errorf("summary = %q", c.Summary)
	}
	if len(c.Category) != 1 || c.Category[0] != "Logística" {
		t.Errorf("categories = %v", c.Category)
	}
	if c.Metadata["source"] != "notion" || c.Metadata["doc_id"] != "custom-7" {
		t.Errorf("metadata = %v", c.Metadata)
	}
	if _, ok := c.Metadata["processed_at"]; !ok {
		t.Error("metadata missing processed_at")
	}
	if len(c.Embedding) != knowledge.VectorDimension {
		t.Errorf("embedding dimension = %d", len(c.Embedding))
	}
}

func TestIngestPage_MultiChunkTitles(t *testing.T) {
	long := strings.Repeat("Texto sobre logística y envíos internacionales. ", 10)
	src := &fakeSource{blocks: map[string][]notion.Block{
		"p1": {paragraphBlock(long)},
	}}
	store := &fakeStore{}
	mock := testutil.NewMockLLM(`{"title": "Sección intermedia", "summary": "Resumen"}`)

	ing := newTestIngestor(t, src, store, &fakeLabeler{cats: []string{"Logística"}}, mock, 200)
	if err := ing.IngestPage(context.Background(), docPage("p1", 1, "")); err != nil {
		t.Fatalf("IngestPage: %v", err)
	}

	chunks := store.chunks()
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	if chunks[0].Title != "Guía de envíos" {
		t.Errorf("chunk 0 title = %q, want document title", chunks[0].Title)
	}
	if chunks[1].Title != "Sección intermedia" {
		t.Errorf("chunk 1 title = %q, want model-derived title", chunks[1].Title)
	}
	for i, c := range chunks {
		if c.ChunkNumber != i {
			t.Errorf("chunk %d stored with number %d", i, c.ChunkNumber)
		}
	}
}

func TestIngestPage_DescribeFailureFallbacks(t *testing.T) {
	long := strings.Repeat("Texto sobre aduanas y regulaciones de importación. ", 10)
	src := &fakeSource{blocks: map[string][]notion.Block{
		"p1": {paragraphBlock(long)},
	}}
	store := &fakeStore{}
	mock := testutil.NewMockLLM("")
	mock.FailWith(errors.New("model unavailable"))

	ing := newTestIngestor(t, src, store, &fakeLabeler{cats: []string{"Logística"}}, mock, 200)
	if err := ing.IngestPage(context.Background(), docPage("p1", 2, "")); err != nil {
		t.Fatalf("IngestPage: %v", err)
	}

	chunks := store.chunks()
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	if chunks[0].Title != "Guía de envíos" {
		t.Errorf("chunk 0 title = %q", chunks[0].Title)
	}
	if chunks[1].Title != "Guía de envíos (Part 2)" {
		t.Errorf("chunk 1 title = %q, want part-numbered fallback", chunks[1].Title)
	}
	for _, c := range chunks {
		if c.Summary != "No summary available" {
			t.Errorf("summary = %q, want fallback", c.Summary)
		}
	}
}

func TestIngestPage_DescribeInputKeepsRunesWhole(t *testing.T) {
	// Place a two-byte rune straddling the describe input cap
	content := strings.Repeat("a", maxDescribeInput-1) + "ácentos y más texto sobre envíos."
	src := &fakeSource{blocks: map[string][]notion.Block{
		"p1": {paragraphBlock(content)},
	}}
	store := &fakeStore{}
	mock := testutil.NewMockLLM(`{"title": "T", "summary": "S"}`)

	ing := newTestIngestor(t, src, store, &fakeLabeler{cats: []string{"Logística"}}, mock, 0)
	if err := ing.IngestPage(context.Background(), docPage("p1", 8, "")); err != nil {
		t.Fatalf("IngestPage: %v", err)
	}

	calls := mock.Calls()
	if len(calls) == 0 {
		t.Fatal("no describe call recorded")
	}
	for _, call := range calls {
		if !utf8.ValidString(call.UserMessage) {
			t.Error("describe prompt carries a split rune")
		}
	}
}

func TestIngestPage_DeclaredCategoryFallback(t *testing.T) {
	src := &fakeSource{blocks: map[string][]notion.Block{
		"p1": {paragraphBlock("Contenido sin categoría clara.")},
	}}
	store := &fakeStore{}
	mock := testutil.NewMockLLM(`{"title": "T", "summary": "S"}`)

	// AI labeling yields nothing usable, so the page's declared category wins
	ing := newTestIngestor(t, src, store, &fakeLabeler{cats: []string{"uncategorized"}}, mock, 0)
	if err := ing.IngestPage(context.Background(), docPage("p1", 3, "logística")); err != nil {
		t.Fatalf("IngestPage: %v", err)
	}

	chunks := store.chunks()
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if len(chunks[0].Category) != 1 || chunks[0].Category[0] != "Logística" {
		t.Errorf("categories = %v, want canonicalized declared category", chunks[0].Category)
	}
}

func TestIngestPage_EmptyPage(t *testing.T) {
	src := &fakeSource{blocks: map[string][]notion.Block{"p1": nil}}
	store := &fakeStore{}
	mock := testutil.NewMockLLM("")

	ing := newTestIngestor(t, src, store, &fakeLabeler{cats: []string{"Logística"}}, mock, 0)
	err := ing.IngestPage(context.Background(), docPage("p1", 4, ""))
	if !errors.Is(err, ErrEmptyPage) {
		t.Fatalf("IngestPage = %v, want ErrEmptyPage", err)
	}

	if len(store.deleted) != 0 {
		t.Error("empty page must not touch existing chunks")
	}
	if len(store.chunks()) != 0 {
		t.Error("empty page must not insert chunks")
	}
}

func TestIngestPage_ReplacesExistingChunks(t *testing.T) {
	src := &fakeSource{blocks: map[string][]notion.Block{
		"p1": {paragraphBlock("Contenido nuevo.")},
	}}
	store := &fakeStore{existing: map[string]int{"notion://custom-5": 3}}
	mock := testutil.NewMockLLM(`{"title": "T", "summary": "S"}`)

	ing := newTestIngestor(t, src, store, &fakeLabeler{cats: []string{"Logística"}}, mock, 0)
	if err := ing.IngestPage(context.Background(), docPage("p1", 5, "")); err != nil {
		t.Fatalf("IngestPage: %v", err)
	}

	if len(store.deleted) != 1 || store.deleted[0] != "notion://custom-5" {
		t.Errorf("deleted = %v, want the document url", store.deleted)
	}
}

func TestIngestPage_AllChunksFailed(t *testing.T) {
	src := &fakeSource{blocks: map[string][]notion.Block{
		"p1": {paragraphBlock("Contenido.")},
	}}
	store := &fakeStore{insertErr: errors.New("connection refused")}
	mock := testutil.NewMockLLM(`{"title": "T", "summary": "S"}`)

	ing := newTestIngestor(t, src, store, &fakeLabeler{cats: []string{"Logística"}}, mock, 0)
	if err := ing.IngestPage(context.Background(), docPage("p1", 6, "")); err == nil {
		t.Error("IngestPage succeeded, want error when every chunk fails")
	}
}

func TestSyncDatabase(t *testing.T) {
	src := &fakeSource{
		pages: []notion.Page{
			docPage("ok", 10, ""),
			docPage("empty", 11, ""),
			docPage("broken", 12, ""),
		},
		blocks: map[string][]notion.Block{
			"ok":    {paragraphBlock("Contenido válido.")},
			"empty": nil,
		},
		blockErr: map[string]error{"broken": errors.New("notion API error (status 500)")},
	}
	store := &fakeStore{}
	mock := testutil.NewMockLLM(`{"title": "T", "summary": "S"}`)

	ing := newTestIngestor(t, src, store, &fakeLabeler{cats: []string{"Logística"}}, mock, 0)
	result, err := ing.SyncDatabase(context.Background(), "db-1")
	if err != nil {
		t.Fatalf("SyncDatabase: %v", err)
	}

	if result.Synced != 1 || result.Skipped != 1 || result.Failed != 1 {
		t.Errorf("result = %+v, want 1 synced, 1 skipped, 1 failed", result)
	}
	if result.Duration <= 0 {
		t.Error("duration not recorded")
	}
}

func TestSyncDatabase_QueryError(t *testing.T) {
	src := &fakeSource{queryErr: fmt.Errorf("notion API error (status 401)")}
	store := &fakeStore{}
	mock := testutil.NewMockLLM("")

	ing := newTestIngestor(t, src, store, &fakeLabeler{cats: []string{"Logística"}}, mock, 0)
	if _, err := ing.SyncDatabase(context.Background(), "db-1"); err == nil {
		t.Error("SyncDatabase succeeded, want error when listing fails")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New with empty deps succeeded, want error")
	}
}

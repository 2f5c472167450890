package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/exbordia/exbordia/internal/knowledge"
	"github.com/exbordia/exbordia/internal/log"
)

type fakeSearcher struct {
	categoryResults []knowledge.Result
	categoryErr     error
	similarResults  []knowledge.Result
	similarErr      error
	pages           []knowledge.PageSummary

	gotCategories []string
	gotTopK       int
	gotSimilarK   int
	gotListFilter string
}

func (f *fakeSearcher) SearchByCategory(_ context.Context, _ []float32, categories []string, topK int, _ float64) ([]knowledge.Result, error) {
	f.gotCategories = categories
	f.gotTopK = topK
	return f.categoryResults, f.categoryErr
}

func (f *fakeSearcher) SearchSimilar(_ context.Context, _ []float32, topK int) ([]knowledge.Result, error) {
	f.gotSimilarK = topK
	return f.similarResults, f.similarErr
}

func (f *fakeSearcher) ListPages(_ context.Context, category string) ([]knowledge.PageSummary, error) {
	f.gotListFilter = category
	return f.pages, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) []float32 {
	return make([]float32, knowledge.VectorDimension)
}

type fakeScoper struct {
	cats   []string
	called bool
}

func (f *fakeScoper) QueryCategories(_ context.Context, _ string) []string {
	f.called = true
	return f.cats
}

func result(url, title string, categories []string) knowledge.Result {
	return knowledge.Result{
		Chunk: knowledge.Chunk{
			URL:         url,
			Title:       title,
			Summary:     "Resumen breve",
			Content:     "Contenido del documento.",
			Marketplace: "mx",
			Category:    categories,
		},
		Similarity: 0.9,
	}
}

func newRetriever(t *testing.T, store *fakeSearcher, scoper *fakeScoper) *Retriever {
	t.Helper()
	r, err := New(store, fakeEmbedder{}, scoper, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRetrieve_InferredCategories(t *testing.T) {
	store := &fakeSearcher{
		categoryResults: []knowledge.Result{result("notion://1", "Guía de envíos", []string{"Logística"})},
	}
	scoper := &fakeScoper{cats: []string{"Logística", "Amazon FBA y FBM"}}

	r := newRetriever(t, store, scoper)
	ret, err := r.Retrieve(context.Background(), "¿Cómo envío a México?", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if !scoper.called {
		t.Error("query classification not invoked for implicit categories")
	}
	if len(store.gotCategories) != 2 || store.gotCategories[0] != "Logística" {
		t.Errorf("searched categories = %v", store.gotCategories)
	}
	if store.gotTopK != 5 {
		t.Errorf("topK = %d, want 5", store.gotTopK)
	}
	if ret.Matches != 1 {
		t.Errorf("matches = %d, want 1", ret.Matches)
	}
}

func TestRetrieve_ExplicitCategoriesSkipClassification(t *testing.T) {
	store := &fakeSearcher{}
	scoper := &fakeScoper{cats: []string{"Marketing y Publicidad"}}

	r := newRetriever(t, store, scoper)
	ret, err := r.Retrieve(context.Background(), "pregunta", []string{"logística", "Inventada", "Logística"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if scoper.called {
		t.Error("explicit categories must not trigger classification")
	}
	// Sanitized: canonicalized, unknown dropped, deduplicated
	if len(store.gotCategories) != 1 || store.gotCategories[0] != "Logística" {
		t.Errorf("searched categories = %v, want [Logística]", store.gotCategories)
	}
	if len(ret.Categories) != 1 {
		t.Errorf("retrieval categories = %v", ret.Categories)
	}
}

func TestRetrieve_Formatting(t *testing.T) {
	store := &fakeSearcher{
		categoryResults: []knowledge.Result{
			result("notion://1", "Guía de envíos", []string{"Logística", "Amazon FBA y FBM"}),
			result("notion://2", "Aduanas", []string{"Regulaciones y Aduanas"}),
		},
	}

	r := newRetriever(t, store, &fakeScoper{cats: []string{"Logística"}})
	ret, err := r.Retrieve(context.Background(), "pregunta", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	wants := []string{
		"# Guía de envíos [Logística, Amazon FBA y FBM] [MX]",
		"**Summary**: Resumen breve",
		"Contenido del documento.",
		"Source: notion://1",
		"\n\n---\n\n",
		"# Aduanas [Regulaciones y Aduanas] [MX]",
	}
	for _, w := range wants {
		if !strings.Contains(ret.Context, w) {
			t.Errorf("context missing %q in:\n%s", w, ret.Context)
		}
	}
}

func TestRetrieve_NoMatches(t *testing.T) {
	store := &fakeSearcher{}

	r := newRetriever(t, store, &fakeScoper{cats: []string{"Logística", "Finanzas y Costos"}})
	ret, err := r.Retrieve(context.Background(), "pregunta", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	want := "No relevant documentation found. I searched in these categories: Logística, Finanzas y Costos"
	if ret.Context != want {
		t.Errorf("context = %q, want %q", ret.Context, want)
	}
	if ret.Matches != 0 {
		t.Errorf("matches = %d, want 0", ret.Matches)
	}
}

func TestRetrieve_FallbackFiltersAndTruncates(t *testing.T) {
	// Category search is unavailable; the wider similarity search returns a mix
	// of matching and non-matching categories, more than the result cap.
	similar := make([]knowledge.Result, 0, 8)
	for i := 0; i < 7; i++ {
		similar = append(similar, result("notion://match", "Doc", []string{"Logística"}))
	}
	similar = append(similar, result("notion://other", "Doc", []string{"Marketing y Publicidad"}))

	store := &fakeSearcher{
		categoryErr:    knowledge.ErrCategorySearchUnavailable,
		similarResults: similar,
	}

	r := newRetriever(t, store, &fakeScoper{cats: []string{"Logística"}})
	ret, err := r.Retrieve(context.Background(), "pregunta", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if store.gotSimilarK != 10 {
		t.Errorf("fallback topK = %d, want 10", store.gotSimilarK)
	}
	if ret.Matches != 5 {
		t.Errorf("matches = %d, want filtered set truncated to 5", ret.Matches)
	}
	if strings.Contains(ret.Context, "notion://other") {
		t.Error("fallback kept a chunk outside the searched categories")
	}
}

func TestRetrieve_SearchErrorPropagates(t *testing.T) {
	store := &fakeSearcher{categoryErr: errors.New("connection reset")}

	r := newRetriever(t, store, &fakeScoper{cats: []string{"Logística"}})
	if _, err := r.Retrieve(context.Background(), "pregunta", nil); err == nil {
		t.Error("Retrieve succeeded, want error on non-fallback search failure")
	}
}

func TestOverview(t *testing.T) {
	store := &fakeSearcher{
		pages: []knowledge.PageSummary{
			{URL: "notion://1", Title: "Guía de envíos", Category: []string{"Logística"}, Chunks: 3},
		},
	}

	r := newRetriever(t, store, &fakeScoper{})
	out, err := r.Overview(context.Background(), "logística")
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}

	if store.gotListFilter != "Logística" {
		t.Errorf("list filter = %q, want canonical category", store.gotListFilter)
	}
	if !strings.Contains(out, "- Guía de envíos [Logística] (notion://1, 3 chunks)") {
		t.Errorf("overview = %q", out)
	}
}

func TestOverview_UnknownCategory(t *testing.T) {
	r := newRetriever(t, &fakeSearcher{}, &fakeScoper{})
	if _, err := r.Overview(context.Background(), "No Existe"); err == nil {
		t.Error("Overview with unknown category succeeded, want error")
	}
}

func TestOverview_Empty(t *testing.T) {
	r := newRetriever(t, &fakeSearcher{}, &fakeScoper{})
	out, err := r.Overview(context.Background(), "")
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if out != "No documents found." {
		t.Errorf("overview = %q", out)
	}
}

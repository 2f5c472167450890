package knowledge

import (
	"context"
	"testing"

	"github.com/exbordia/exbordia/internal/log"
	"github.com/exbordia/exbordia/internal/testutil"
)

func TestEmbedder_ReturnsVector(t *testing.T) {
	g := testutil.NewGenkit(t)
	mock := testutil.NewMockEmbedder(VectorDimension)
	e := NewEmbedder(mock.RegisterEmbedder(g), log.NewNop())

	vec := e.Embed(context.Background(), "cómo funciona FBA")

	if len(vec) != VectorDimension {
		t.Fatalf("got %d dimensions, want %d", len(vec), VectorDimension)
	}
	var nonZero bool
	for _, v := range vec {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("successful embedding must not be the zero vector")
	}
}

func TestEmbedder_Deterministic(t *testing.T) {
	g := testutil.NewGenkit(t)
	mock := testutil.NewMockEmbedder(VectorDimension)
	e := NewEmbedder(mock.RegisterEmbedder(g), log.NewNop())

	a := e.Embed(context.Background(), "same text")
	b := e.Embed(context.Background(), "same text")

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at index %d", i)
		}
	}
}

func TestEmbedder_ZeroVectorOnFailure(t *testing.T) {
	g := testutil.NewGenkit(t)
	mock := testutil.NewMockEmbedder(VectorDimension)
	mock.SetFail(true)
	e := NewEmbedder(mock.RegisterEmbedder(g), log.NewNop())

	vec := e.Embed(context.Background(), "anything")

	if len(vec) != VectorDimension {
		t.Fatalf("got %d dimensions, want %d", len(vec), VectorDimension)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("index %d = %f, want 0 (zero-vector fallback)", i, v)
		}
	}
}

func TestEmbedder_ZeroVectorOnWrongDimension(t *testing.T) {
	g := testutil.NewGenkit(t)
	mock := testutil.NewMockEmbedder(8) // wrong dimension on purpose
	e := NewEmbedder(mock.RegisterEmbedder(g), log.NewNop())

	vec := e.Embed(context.Background(), "anything")

	if len(vec) != VectorDimension {
		t.Fatalf("got %d dimensions, want %d", len(vec), VectorDimension)
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("dimension mismatch must fall back to the zero vector")
		}
	}
}

package embedding

import (
	"context"
	"testing"

	"github.com/hyperjump/sensei/internal/analysis"
	"github.com/hyperjump/sensei/internal/vector"
)

func newHashing(t *testing.T, dims int) *HashingEmbedder {
	t.Helper()
	a, err := analysis.New()
	if err != nil {
		t.Fatal(err)
	}
	return NewHashingEmbedder(dims, a)
}

func TestHashingEmbedder_deterministic(t *testing.T) {
	e := newHashing(t, 64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "binary search trees")
	b, _ := e.Embed(ctx, "binary search trees")
	if len(a) != 64 {
		t.Fatalf("dims = %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at %d", i)
		}
	}
}

func TestHashingEmbedder_similarityTracksOverlap(t *testing.T) {
	e := newHashing(t, 256)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "how do recursion base cases work")
	near, _ := e.Embed(ctx, "recursion base case example")
	far, _ := e.Embed(ctx, "lecture venue changed to hall B")
	if vector.CosineSimilarity(q, near) <= vector.CosineSimilarity(q, far) {
		t.Errorf("overlapping text should be more similar: near=%f far=%f",
			vector.CosineSimilarity(q, near), vector.CosineSimilarity(q, far))
	}
}

func TestHashingEmbedder_emptyText(t *testing.T) {
	e := newHashing(t, 8)
	v, err := e.Embed(context.Background(), "the and of")
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("stop-word-only text should embed to zero vector, got %v", v)
		}
	}
}

func TestHashingEmbedder_cancelledContext(t *testing.T) {
	e := newHashing(t, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Embed(ctx, "x"); err == nil {
		t.Error("expected error on cancelled context")
	}
}

package index

import (
	"context"
	"testing"

	"github.com/54b3r/flarerag-go/internal/rag"
)

func point(id string, vec ...float32) Point {
	return Point{
		Chunk: rag.Chunk{
			ID:       id,
			Text:     "text " + id,
			Origin:   "doc.md",
			Position: 1,
			Span:     rag.Span{Start: 10, End: 20},
			Metadata: map[string]string{"lang": "en"},
		},
		Vector: vec,
	}
}

func TestMemoryIndex_UpsertSearchRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := NewMemoryIndex(3)
	if err := idx.Upsert(ctx, []Point{point("a", 1, 0, 0), point("b", 0, 1, 0)}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("len(hits) = %d, want 1", len(hits))
	}
	got := hits[0]
	if got.Chunk.ID != "a" {
		t.Errorf("top hit = %q, want a", got.Chunk.ID)
	}
	if got.Score < 0.999 {
		t.Errorf("score = %v, want ~1", got.Score)
	}
	if got.Chunk.Text != "text a" || got.Chunk.Origin != "doc.md" || got.Chunk.Span.End != 20 || got.Chunk.Metadata["lang"] != "en" {
		t.Errorf("payload not preserved: %+v", got.Chunk)
	}
}

func TestMemoryIndex_UpsertIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := NewMemoryIndex(0)
	p := point("a", 0.5, 0.5)
	for i := 0; i < 3; i++ {
		if err := idx.Upsert(ctx, []Point{p}); err != nil {
			t.Fatalf("Upsert() #%d error = %v", i, err)
		}
	}
	if idx.Len() != 1 {
		t.Errorf("Len() = %d, want 1", idx.Len())
	}
}

func TestMemoryIndex_EmptySearch(t *testing.T) {
	t.Parallel()

	hits, err := NewMemoryIndex(3).Search(context.Background(), []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("len(hits) = %d, want 0", len(hits))
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := NewMemoryIndex(3)
	hits, err := idx.Search(ctx, []float32{1}, 1)
	if err != nil || hits == nil || len(hits) != 0 {
		t.Errorf("Search() on empty index = %v, %v; want empty, nil", hits, err)
	}

	if err := idx.Upsert(ctx, []Point{point("a", 1, 0)}); err == nil {
		t.Error("Upsert() with wrong dims: expected error")
	}
	if err := idx.Upsert(ctx, []Point{point("b", 1, 0, 0)}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, err := idx.Search(ctx, []float32{1}, 1); err == nil {
		t.Error("Search() with wrong dims: expected error")
	}
}

func TestMemoryIndex_OrdersByScoreThenID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := NewMemoryIndex(2)
	_ = idx.Upsert(ctx, []Point{point("c", 1, 0), point("b", 1, 0), point("a", 0, 1)})
	hits, err := idx.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	want := []string{"b", "c", "a"}
	for i, h := range hits {
		if h.Chunk.ID != want[i] {
			t.Errorf("hits[%d] = %q, want %q", i, h.Chunk.ID, want[i])
		}
	}
}

func TestMemoryIndex_Reset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := NewMemoryIndex(2)
	_ = idx.Upsert(ctx, []Point{point("a", 1, 0)})
	if err := idx.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", idx.Len())
	}
}

func TestFlatPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	c := rag.Chunk{
		ID:       "id-1",
		Text:     "body",
		Origin:   "a.md",
		Position: 4,
		Span:     rag.Span{Start: 100, End: 250},
		Metadata: map[string]string{"section": "ftso"},
	}
	got := chunkFromFlat("", flatPayload(c))
	if got.ID != c.ID || got.Text != c.Text || got.Origin != c.Origin || got.Position != c.Position || got.Span != c.Span {
		t.Errorf("chunkFromFlat() = %+v, want %+v", got, c)
	}
	if got.Metadata["section"] != "ftso" {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), &Config{Backend: "redis", Dimensions: 3})
	if err == nil {
		t.Fatal("New() expected error for unknown backend")
	}
}

func TestNew_Memory(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), &Config{Backend: BackendMemory, Dimensions: 3})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Name() != "memory" {
		t.Errorf("Name() = %q, want memory", c.Name())
	}
}

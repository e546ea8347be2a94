package retriever

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/54b3r/flarerag-go/internal/index"
	"github.com/54b3r/flarerag-go/internal/rag"
	"github.com/54b3r/flarerag-go/internal/retry"
)

// stubEmbedder maps known texts to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   atomic.Int32
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

// failingIndex refuses every search.
type failingIndex struct {
	*index.MemoryIndex
	searches atomic.Int32
}

func (f *failingIndex) Search(context.Context, []float32, int) ([]index.Hit, error) {
	f.searches.Add(1)
	return nil, errors.New("connection refused")
}

func policy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func chunk(id, origin string) rag.Chunk {
	return rag.Chunk{ID: id, Text: "text " + id, Origin: origin}
}

func TestRetrieve_RanksAndFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := index.NewMemoryIndex(3)
	points := []index.Point{
		{Chunk: chunk("exact", "a.md"), Vector: []float32{1, 0, 0}},
		{Chunk: chunk("close", "b.md"), Vector: []float32{0.9, 0.1, 0}},
		{Chunk: chunk("far", "c.md"), Vector: []float32{0, 1, 0}},
	}
	if err := idx.Upsert(ctx, points); err != nil {
		t.Fatal(err)
	}

	emb := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	r, err := New(emb, idx, 0.5, policy())
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.Retrieve(ctx, "q", 5)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got.Hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2 (far is below threshold)", len(got.Hits))
	}
	if got.Hits[0].Chunk.ID != "exact" || got.Hits[1].Chunk.ID != "close" {
		t.Errorf("order = %s, %s", got.Hits[0].Chunk.ID, got.Hits[1].Chunk.ID)
	}
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	t.Parallel()

	r, _ := New(&stubEmbedder{}, index.NewMemoryIndex(3), 0, policy())
	got, err := r.Retrieve(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("Retrieve() error = %v, want nil for empty index", err)
	}
	if !got.Empty() {
		t.Errorf("hits = %v, want none", got.Hits)
	}
}

func TestRetrieve_SearchFailureExhaustsRetries(t *testing.T) {
	t.Parallel()

	idx := &failingIndex{MemoryIndex: index.NewMemoryIndex(3)}
	r, _ := New(&stubEmbedder{}, idx, 0, policy())

	got, err := r.Retrieve(context.Background(), "q", 3)
	if !errors.Is(err, rag.ErrRetrieval) {
		t.Fatalf("error = %v, want ErrRetrieval", err)
	}
	var re *rag.RetrievalError
	if !errors.As(err, &re) || re.Stage != "search" || re.Attempts != 3 {
		t.Errorf("RetrievalError = %+v", re)
	}
	if !got.Empty() {
		t.Error("failed retrieval returned hits")
	}
	if n := idx.searches.Load(); n != 3 {
		t.Errorf("searches = %d, want 3", n)
	}
}

func TestRetrieve_EmbedFailure(t *testing.T) {
	t.Parallel()

	emb := &stubEmbedder{err: errors.New("quota")}
	r, _ := New(emb, index.NewMemoryIndex(3), 0, policy())

	_, err := r.Retrieve(context.Background(), "q", 3)
	var re *rag.RetrievalError
	if !errors.As(err, &re) || re.Stage != "embed" {
		t.Fatalf("error = %v, want embed RetrievalError", err)
	}
	if n := emb.calls.Load(); n != 3 {
		t.Errorf("embed calls = %d, want 3", n)
	}
}

func TestRank(t *testing.T) {
	t.Parallel()

	hits := []index.Hit{
		{Chunk: chunk("b", "x"), Score: 0.7},
		{Chunk: chunk("a", "x"), Score: 0.9},
		{Chunk: chunk("b", "x"), Score: 0.8},
		{Chunk: chunk("c", "x"), Score: 0.7},
		{Chunk: chunk("low", "x"), Score: 0.1},
		{Chunk: chunk("d", "x"), Score: 0.7},
	}
	got := Rank(hits, 0.5, 3)

	want := []struct {
		id    string
		score float32
	}{{"a", 0.9}, {"b", 0.8}, {"c", 0.7}}
	if len(got.Hits) != len(want) {
		t.Fatalf("len = %d, want %d", len(got.Hits), len(want))
	}
	seen := map[string]bool{}
	for i, w := range want {
		h := got.Hits[i]
		if h.Chunk.ID != w.id || h.Score != w.score {
			t.Errorf("hit[%d] = %s/%v, want %s/%v", i, h.Chunk.ID, h.Score, w.id, w.score)
		}
		if seen[h.Chunk.ID] {
			t.Errorf("duplicate id %s", h.Chunk.ID)
		}
		seen[h.Chunk.ID] = true
		if i > 0 && h.Score > got.Hits[i-1].Score {
			t.Errorf("scores increase at %d", i)
		}
	}
}

func TestNew_RejectsNil(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, index.NewMemoryIndex(1), 0, policy()); err == nil {
		t.Error("New(nil embedder) expected error")
	}
	if _, err := New(&stubEmbedder{}, nil, 0, policy()); err == nil {
		t.Error("New(nil index) expected error")
	}
}

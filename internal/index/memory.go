package index

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
)

// MemoryIndex is an in-process Client using brute-force cosine similarity.
// It backs local development (INDEX_BACKEND=memory) and tests.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[string]Point
	dims   int
}

// NewMemoryIndex returns an empty index. dims fixes the vector size; zero
// accepts whatever size the first upsert uses.
func NewMemoryIndex(dims int) *MemoryIndex {
	return &MemoryIndex{points: make(map[string]Point), dims: dims}
}

// Upsert stores copies of the points keyed by chunk ID.
func (m *MemoryIndex) Upsert(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range points {
		if p.Chunk.ID == "" {
			return fmt.Errorf("memory index: point has empty chunk id")
		}
		if m.dims == 0 {
			m.dims = len(p.Vector)
		}
		if len(p.Vector) != m.dims {
			return fmt.Errorf("memory index: vector for %s has %d dims, want %d", p.Chunk.ID, len(p.Vector), m.dims)
		}
		p.Vector = slices.Clone(p.Vector)
		m.points[p.Chunk.ID] = p
	}
	return nil
}

// Search scores every stored point against vector and returns the best k.
func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if k <= 0 || len(m.points) == 0 {
		return []Hit{}, nil
	}
	if m.dims != 0 && len(vector) != m.dims {
		return nil, fmt.Errorf("memory index: query has %d dims, want %d", len(vector), m.dims)
	}

	hits := make([]Hit, 0, len(m.points))
	for _, p := range m.points {
		hits = append(hits, Hit{Chunk: p.Chunk, Score: cosine(vector, p.Vector)})
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		if a.Chunk.ID < b.Chunk.ID {
			return -1
		}
		if a.Chunk.ID > b.Chunk.ID {
			return 1
		}
		return 0
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of stored points.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// Reset removes every point.
func (m *MemoryIndex) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = make(map[string]Point)
	return nil
}

// Ping always succeeds.
func (m *MemoryIndex) Ping(context.Context) error { return nil }

// Name returns the dependency label used in readiness responses.
func (m *MemoryIndex) Name() string { return "memory" }

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Package retriever embeds a query and fetches the most similar chunks from
// the vector index.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/54b3r/flarerag-go/internal/index"
	"github.com/54b3r/flarerag-go/internal/logging"
	"github.com/54b3r/flarerag-go/internal/rag"
	"github.com/54b3r/flarerag-go/internal/retry"
)

// Retriever is safe for concurrent use. It never writes to the index.
type Retriever struct {
	embedder  rag.Embedder
	index     index.Client
	threshold float32
	policy    retry.Policy
}

// New constructs a Retriever. embedder must be configured for query-purpose
// embeddings; hits scoring below threshold are discarded.
func New(embedder rag.Embedder, idx index.Client, threshold float32, policy retry.Policy) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retriever: embedder must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("retriever: index must not be nil")
	}
	return &Retriever{embedder: embedder, index: idx, threshold: threshold, policy: policy}, nil
}

// Retrieve returns at most k chunks for query, ordered by descending score.
// An empty index yields an empty result and a nil error. When the embedding
// or search call keeps failing, Retrieve returns an empty result together
// with a *rag.RetrievalError.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (rag.RetrievalResult, error) {
	log := logging.FromContext(ctx)
	if k <= 0 {
		return rag.RetrievalResult{}, nil
	}

	vecs, attempts, err := retry.Do(ctx, r.policy, "embed", func(ctx context.Context) ([][]float32, error) {
		v, err := r.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, err
		}
		if len(v) != 1 || len(v[0]) == 0 {
			return nil, fmt.Errorf("embedder returned %d vectors for 1 input", len(v))
		}
		return v, nil
	})
	if err != nil {
		return rag.RetrievalResult{}, &rag.RetrievalError{Stage: "embed", Attempts: attempts, Err: err}
	}

	hits, attempts, err := retry.Do(ctx, r.policy, "search", func(ctx context.Context) ([]index.Hit, error) {
		return r.index.Search(ctx, vecs[0], k)
	})
	if err != nil {
		return rag.RetrievalResult{}, &rag.RetrievalError{Stage: "search", Attempts: attempts, Err: err}
	}

	result := Rank(hits, r.threshold, k)
	log.Debug("retriever: search complete",
		slog.String("index", r.index.Name()),
		slog.Int("raw_hits", len(hits)),
		slog.Int("kept", len(result.Hits)),
	)
	return result, nil
}

// Rank applies the result invariants to raw hits: scores below threshold are
// dropped, duplicate chunk IDs keep their best score, and the remainder is
// sorted by descending score (ties by chunk ID) and cut to k.
func Rank(hits []index.Hit, threshold float32, k int) rag.RetrievalResult {
	best := make(map[string]int, len(hits))
	out := make([]rag.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		if h.Score < threshold || h.Chunk.ID == "" {
			continue
		}
		if i, ok := best[h.Chunk.ID]; ok {
			if h.Score > out[i].Score {
				out[i] = rag.ScoredChunk{Chunk: h.Chunk, Score: h.Score}
			}
			continue
		}
		best[h.Chunk.ID] = len(out)
		out = append(out, rag.ScoredChunk{Chunk: h.Chunk, Score: h.Score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return rag.RetrievalResult{Hits: out}
}

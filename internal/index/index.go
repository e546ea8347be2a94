// Package index provides the vector index clients the pipeline searches and
// the ingester writes to. Every backend satisfies Client so the retriever
// never depends on a specific vendor.
//
// Supported backends: Qdrant (default), Milvus, and an in-process memory
// index for local development and tests.
package index

import (
	"context"
	"strconv"

	"github.com/54b3r/flarerag-go/internal/rag"
)

// Payload field names shared by every backend.
const (
	fieldText      = "text"
	fieldOrigin    = "origin"
	fieldPosition  = "position"
	fieldSpanStart = "span_start"
	fieldSpanEnd   = "span_end"
	fieldChunkID   = "chunk_id"

	// metaPrefix namespaces free-form metadata keys in flat payloads.
	metaPrefix = "meta_"
)

// Point is a chunk with its embedding, ready to be written.
type Point struct {
	Chunk  rag.Chunk
	Vector []float32
}

// Hit is one search result.
type Hit struct {
	Chunk rag.Chunk
	// Score is the cosine similarity between the query and the chunk.
	Score float32
}

// Client is the vector index capability. Implementations must be safe to
// call from multiple goroutines.
type Client interface {
	// Search returns up to k nearest chunks for vector, most similar first.
	// An empty index yields an empty slice and a nil error.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// Upsert inserts or replaces points by chunk ID. Re-upserting an
	// identical point leaves the index unchanged.
	Upsert(ctx context.Context, points []Point) error

	// Reset drops every point and recreates an empty collection.
	Reset(ctx context.Context) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Name returns the backend label used in readiness responses.
	Name() string

	// Close releases any resources held by the client.
	Close() error
}

// flatPayload renders a chunk as a flat string-keyed map. Integers are
// int64 so every backend can store them natively.
func flatPayload(c rag.Chunk) map[string]any {
	p := map[string]any{
		fieldChunkID:   c.ID,
		fieldText:      c.Text,
		fieldOrigin:    c.Origin,
		fieldPosition:  int64(c.Position),
		fieldSpanStart: int64(c.Span.Start),
		fieldSpanEnd:   int64(c.Span.End),
	}
	for k, v := range c.Metadata {
		p[metaPrefix+k] = v
	}
	return p
}

// chunkFromFlat is the inverse of flatPayload. Unknown keys are ignored.
func chunkFromFlat(id string, p map[string]any) rag.Chunk {
	c := rag.Chunk{ID: id}
	for k, v := range p {
		switch k {
		case fieldChunkID:
			if c.ID == "" {
				c.ID = asString(v)
			}
		case fieldText:
			c.Text = asString(v)
		case fieldOrigin:
			c.Origin = asString(v)
		case fieldPosition:
			c.Position = asInt(v)
		case fieldSpanStart:
			c.Span.Start = asInt(v)
		case fieldSpanEnd:
			c.Span.End = asInt(v)
		default:
			if len(k) > len(metaPrefix) && k[:len(metaPrefix)] == metaPrefix {
				if c.Metadata == nil {
					c.Metadata = make(map[string]string)
				}
				c.Metadata[k[len(metaPrefix):]] = asString(v)
			}
		}
	}
	return c
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case int:
		return t
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

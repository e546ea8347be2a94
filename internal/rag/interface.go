// Package rag defines the shared vocabulary of the query pipeline: the
// request/response types that flow between stages, the typed errors each
// stage may raise, and the narrow capability interfaces (LLM, Embedder)
// that provider backends implement. Concrete backends live in sibling
// packages so pipeline stages never depend on a specific vendor.
package rag

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// GenerateOptions tunes a single model call. Zero values mean "use the
// provider's configured default".
type GenerateOptions struct {
	// Temperature overrides the sampling temperature when non-nil.
	Temperature *float32

	// MaxTokens caps the generated length when > 0.
	MaxTokens int
}

// LLM is the text-generation capability the router and responder depend on.
// Implementations must be safe to call from multiple goroutines.
type LLM interface {
	// Generate produces free-form answer text for the given prompt messages.
	Generate(ctx context.Context, prompt []*schema.Message, opts GenerateOptions) (string, error)

	// Classify produces a short label payload for the given prompt messages.
	// The caller is responsible for interpreting the label.
	Classify(ctx context.Context, prompt []*schema.Message, opts GenerateOptions) (string, error)
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

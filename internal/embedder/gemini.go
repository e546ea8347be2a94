package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini embedding task types.
const (
	geminiTaskQuery    = "RETRIEVAL_QUERY"
	geminiTaskDocument = "RETRIEVAL_DOCUMENT"
)

// geminiMaxBatch is the per-request content limit of EmbedContent.
const geminiMaxBatch = 100

// GeminiEmbedder implements rag.Embedder through the Gemini API. The task
// type tells the model whether it is embedding a search query or a corpus
// passage; queries and passages must use matching models but different
// task types.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	taskType   string
	dimensions int
}

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Google API key.
	APIKey string
	// Model is the embedding model (e.g. "text-embedding-004").
	Model string
	// Purpose selects the RETRIEVAL_QUERY or RETRIEVAL_DOCUMENT task type.
	Purpose Purpose
	// Dimensions truncates output vectors when > 0.
	Dimensions int
}

// NewGeminiEmbedder creates a genai client and returns an embedder bound to
// one task type.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedder: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: create client: %w", err)
	}

	task := geminiTaskQuery
	if cfg.Purpose == PurposeDocument {
		task = geminiTaskDocument
	}
	return &GeminiEmbedder{
		client:     client,
		model:      cfg.Model,
		taskType:   task,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed converts a batch of texts into their corresponding embeddings.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiMaxBatch {
		end := min(start+geminiMaxBatch, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}

		cfg := &genai.EmbedContentConfig{TaskType: e.taskType}
		if e.dimensions > 0 {
			d := int32(e.dimensions) //nolint:gosec // dimensions are bounded
			cfg.OutputDimensionality = &d
		}

		resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
		if err != nil {
			return nil, fmt.Errorf("gemini embedder: embed content: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini embedder: expected %d embeddings, got %d", end-start, len(resp.Embeddings))
		}
		for _, emb := range resp.Embeddings {
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

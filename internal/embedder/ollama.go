package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaEmbedder implements rag.Embedder using the Ollama /api/embed endpoint.
// It is safe for concurrent use. No API key is required; Ollama runs locally.
type OllamaEmbedder struct {
	// host is the Ollama server base URL (e.g. "http://localhost:11434").
	host string
	// model is the embedding model name (e.g. "nomic-embed-text").
	model string
	// prefix is prepended to every input. nomic-embed-text expects
	// "search_query: " for queries and "search_document: " for passages.
	prefix string
	// client is the shared HTTP client.
	client *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "nomic-embed-text").
	Model string
	// Prefix is prepended to every input text. Empty disables it.
	Prefix string
	// Timeout bounds a single request (default: 60s).
	Timeout time.Duration
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OllamaEmbedder{
		host:   strings.TrimRight(cfg.Host, "/"),
		model:  cfg.Model,
		prefix: cfg.Prefix,
		client: &http.Client{Timeout: timeout},
	}
}

// nomicPrefix returns the task prefix nomic-embed-text models were trained
// with, or "" for other models.
func nomicPrefix(model string, p Purpose) string {
	if !strings.Contains(strings.ToLower(model), "nomic-embed") {
		return ""
	}
	if p == PurposeDocument {
		return "search_document: "
	}
	return "search_query: "
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (r *ollamaEmbedResponse) message() string { return r.Error }

// Embed embeds texts in one /api/embed call, applying the purpose prefix.
// The result is parallel to texts.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	input := texts
	if e.prefix != "" {
		input = make([]string, len(texts))
		for i, t := range texts {
			input[i] = e.prefix + t
		}
	}

	var out ollamaEmbedResponse
	if err := postJSON(ctx, e.client, e.host+"/api/embed", nil, ollamaEmbedRequest{Model: e.model, Input: input}, &out); err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), len(out.Embeddings))
	}
	return out.Embeddings, nil
}

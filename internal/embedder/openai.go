// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. OpenAI, Azure OpenAI, and
// Ollama are spoken to over their REST APIs; Gemini goes through the genai SDK.
package embedder

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"
)

// openAIMaxBatch is the per-request input limit of the embeddings endpoint.
const openAIMaxBatch = 2048

// OpenAIEmbedder implements rag.Embedder using the OpenAI (or Azure OpenAI)
// embeddings REST API. It is safe for concurrent use.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	// azure selects api-key header auth and deployment-scoped URLs.
	azure      bool
	apiVersion string
	client     *http.Client
	// maxBatch splits large inputs into several requests.
	maxBatch int
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com/openai".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model (or Azure deployment) name.
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored when Azure is false.
	APIVersion string
	// MaxBatch overrides the per-request input cap (default: 2048).
	MaxBatch int
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 || maxBatch > openAIMaxBatch {
		maxBatch = openAIMaxBatch
	}
	return &OpenAIEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		azure:      cfg.Azure,
		apiVersion: cfg.APIVersion,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxBatch:   maxBatch,
	}
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (r *openaiEmbedResponse) message() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Message
}

// Embed embeds texts, issuing one request per maxBatch inputs. The result is
// parallel to texts.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for batch := range slices.Chunk(texts, e.maxBatch) {
		vecs, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// endpoint returns the embeddings URL and auth header for the configured
// flavour. Azure scopes the URL by deployment and authenticates with api-key.
func (e *OpenAIEmbedder) endpoint() (string, http.Header) {
	if e.azure {
		return e.baseURL + "/deployments/" + e.model + "/embeddings?api-version=" + e.apiVersion,
			http.Header{"Api-Key": {e.apiKey}}
	}
	return e.baseURL + "/embeddings", http.Header{"Authorization": {"Bearer " + e.apiKey}}
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	url, header := e.endpoint()
	var out openaiEmbedResponse
	req := openaiEmbedRequest{Input: texts, Model: e.model, Dimensions: e.dimensions}
	if err := postJSON(ctx, e.client, url, header, req, &out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out.Data))
	}

	// Data may arrive out of order; place by index.
	vecs := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("index %d out of range [0, %d)", d.Index, len(texts))
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/flarerag-go/internal/logging"
	"github.com/54b3r/flarerag-go/internal/rag"
)

// Pinger probes an LLM backend for GET /api/ready. Ollama is probed through
// its free /api/tags endpoint; other backends fall back to a one-token
// generate call.
type Pinger struct {
	// llm is used for the generate fallback.
	llm rag.LLM

	// tagsURL is set for backends with a zero-cost probe.
	tagsURL string

	// client performs the zero-cost probe.
	client *http.Client

	// name identifies the backend in readiness responses.
	name string
}

// NewPinger constructs a Pinger for the configured backend.
func NewPinger(llm rag.LLM, cfg *Config) *Pinger {
	p := &Pinger{llm: llm, name: string(cfg.Backend), client: &http.Client{Timeout: 5 * time.Second}}
	if cfg.Backend == BackendOllama {
		p.tagsURL = cfg.Ollama.Host + "/api/tags"
	}
	return p
}

// Name returns the backend label used in readiness responses.
func (p *Pinger) Name() string { return p.name }

// Ping returns nil when the backend is reachable.
func (p *Pinger) Ping(ctx context.Context) error {
	if p.tagsURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.tagsURL, nil)
		if err != nil {
			return fmt.Errorf("%s health check: %w", p.name, err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("%s health check: %w", p.name, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s health check: HTTP %d", p.name, resp.StatusCode)
		}
		return nil
	}

	logging.FromContext(ctx).Debug("pinger: using generate-based health check",
		slog.String("backend", p.name),
	)
	if _, err := p.llm.Generate(ctx, []*schema.Message{schema.UserMessage("ping")}, rag.GenerateOptions{MaxTokens: 1}); err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	return nil
}

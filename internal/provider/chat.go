package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/flarerag-go/internal/rag"
)

// classifyMaxTokens caps classification replies; a label plus a short
// rationale never needs more.
const classifyMaxTokens = 256

// Chat adapts an eino chat model to rag.LLM. It is safe for concurrent use
// when the underlying model is, which holds for every eino-ext backend.
type Chat struct {
	// model is the underlying eino chat model.
	model model.BaseChatModel

	// tuning holds the default sampling parameters.
	tuning SharedTuning

	// noTemperature suppresses the temperature option for models that
	// reject it (Azure reasoning deployments).
	noTemperature bool

	// name identifies the backend in logs and readiness responses.
	name string
}

// NewChat wraps m. cfg supplies default tuning and the backend label.
func NewChat(m model.BaseChatModel, cfg *Config) *Chat {
	return &Chat{
		model:         m,
		tuning:        cfg.Tuning,
		noTemperature: cfg.Backend == BackendAzure && isAzureReasoningModel(cfg.AzureOpenAI.Deployment),
		name:          string(cfg.Backend),
	}
}

// Name returns the backend label.
func (c *Chat) Name() string { return c.name }

// Generate sends prompt to the model and returns the trimmed reply text.
// An empty reply is reported as an error so callers can retry it.
func (c *Chat) Generate(ctx context.Context, prompt []*schema.Message, opts rag.GenerateOptions) (string, error) {
	return c.call(ctx, "generate", prompt, opts)
}

// Classify sends prompt with deterministic sampling and a small token cap
// unless opts overrides them. The raw reply is returned for the caller to
// interpret.
func (c *Chat) Classify(ctx context.Context, prompt []*schema.Message, opts rag.GenerateOptions) (string, error) {
	if opts.Temperature == nil {
		zero := float32(0)
		opts.Temperature = &zero
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = classifyMaxTokens
	}
	return c.call(ctx, "classify", prompt, opts)
}

func (c *Chat) call(ctx context.Context, op string, prompt []*schema.Message, opts rag.GenerateOptions) (string, error) {
	msg, err := c.model.Generate(ctx, prompt, c.options(opts)...)
	if err != nil {
		return "", fmt.Errorf("provider: %s: %w", op, err)
	}
	if msg == nil {
		return "", fmt.Errorf("provider: %s: nil response", op)
	}
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return "", fmt.Errorf("provider: %s: empty response", op)
	}
	return text, nil
}

// options converts per-call overrides and defaults into eino model options.
func (c *Chat) options(opts rag.GenerateOptions) []model.Option {
	var out []model.Option

	maxTokens := c.tuning.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	if maxTokens > 0 {
		out = append(out, model.WithMaxTokens(maxTokens))
	}

	if !c.noTemperature {
		temp := c.tuning.Temperature
		if opts.Temperature != nil {
			temp = *opts.Temperature
		}
		out = append(out, model.WithTemperature(temp))
	}
	return out
}

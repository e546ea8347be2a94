package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/flarerag-go/internal/assembler"
	"github.com/54b3r/flarerag-go/internal/prompts"
	"github.com/54b3r/flarerag-go/internal/responder"
	"github.com/54b3r/flarerag-go/internal/retry"
)

// Defaults applied by ConfigFromEnv when a variable is unset.
const (
	DefaultTopK           = 5
	DefaultScoreThreshold = 0.5
	DefaultContextBudget  = 8000
)

// Config is the single configuration value shared by every pipeline stage.
// It is built once at startup and passed by pointer.
type Config struct {
	// TopK is the retrieval depth.
	TopK int

	// ScoreThreshold discards hits scoring below it.
	ScoreThreshold float32

	// ContextBudget is the maximum assembled context size in BudgetUnit.
	ContextBudget int

	// BudgetUnit selects characters or estimated tokens.
	BudgetUnit assembler.Unit

	// HistoryTokens bounds the responder prompt when trimming history.
	HistoryTokens int

	// Templates holds the router and per-intent prompts.
	Templates prompts.Templates

	// Retry applies to embedding, search, classification and generation.
	Retry retry.Policy
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		TopK:           DefaultTopK,
		ScoreThreshold: DefaultScoreThreshold,
		ContextBudget:  DefaultContextBudget,
		BudgetUnit:     assembler.UnitChars,
		HistoryTokens:  responder.DefaultHistoryTokens,
		Templates:      prompts.Defaults(),
		Retry:          retry.DefaultPolicy(),
	}
}

// ConfigFromEnv builds a Config from environment variables:
//
//	PIPELINE_TOP_K              retrieval depth (default 5)
//	PIPELINE_SCORE_THRESHOLD    minimum similarity (default 0.5)
//	PIPELINE_CONTEXT_BUDGET     context size budget (default 8000)
//	PIPELINE_BUDGET_UNIT        chars | tokens (default chars)
//	PIPELINE_HISTORY_TOKENS     responder prompt cap for history trimming
//	PIPELINE_RETRY_ATTEMPTS     attempts per external call (default 3)
//	PIPELINE_RETRY_BACKOFF      initial backoff (default 250ms)
//	PIPELINE_RETRY_MAX_BACKOFF  backoff cap (default 2s)
//	PIPELINE_CALL_TIMEOUT       per-call timeout (default 30s)
//	PROMPTS_FILE                optional YAML prompt overrides
func ConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	var err error

	if cfg.TopK, err = envInt("PIPELINE_TOP_K", cfg.TopK); err != nil {
		return nil, err
	}
	if cfg.ContextBudget, err = envInt("PIPELINE_CONTEXT_BUDGET", cfg.ContextBudget); err != nil {
		return nil, err
	}
	if cfg.HistoryTokens, err = envInt("PIPELINE_HISTORY_TOKENS", cfg.HistoryTokens); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxAttempts, err = envInt("PIPELINE_RETRY_ATTEMPTS", cfg.Retry.MaxAttempts); err != nil {
		return nil, err
	}
	if v := os.Getenv("PIPELINE_SCORE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return nil, fmt.Errorf("pipeline: PIPELINE_SCORE_THRESHOLD: %w", err)
		}
		cfg.ScoreThreshold = float32(f)
	}
	if v := os.Getenv("PIPELINE_BUDGET_UNIT"); v != "" {
		cfg.BudgetUnit = assembler.Unit(v)
	}
	if cfg.Retry.InitialBackoff, err = envDuration("PIPELINE_RETRY_BACKOFF", cfg.Retry.InitialBackoff); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxBackoff, err = envDuration("PIPELINE_RETRY_MAX_BACKOFF", cfg.Retry.MaxBackoff); err != nil {
		return nil, err
	}
	if cfg.Retry.CallTimeout, err = envDuration("PIPELINE_CALL_TIMEOUT", cfg.Retry.CallTimeout); err != nil {
		return nil, err
	}

	if cfg.Templates, err = prompts.Load(os.Getenv("PROMPTS_FILE")); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise fail on the first request.
func (c *Config) Validate() error {
	switch {
	case c.TopK <= 0:
		return fmt.Errorf("pipeline: top k must be positive, got %d", c.TopK)
	case c.ScoreThreshold < -1 || c.ScoreThreshold > 1:
		return fmt.Errorf("pipeline: score threshold must be in [-1, 1], got %v", c.ScoreThreshold)
	case c.ContextBudget <= 0:
		return fmt.Errorf("pipeline: context budget must be positive, got %d", c.ContextBudget)
	case c.BudgetUnit != assembler.UnitChars && c.BudgetUnit != assembler.UnitTokens:
		return fmt.Errorf("pipeline: budget unit must be chars or tokens, got %q", c.BudgetUnit)
	case c.Retry.MaxAttempts <= 0:
		return fmt.Errorf("pipeline: retry attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("pipeline: %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("pipeline: %s: %w", key, err)
	}
	return d, nil
}

package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/54b3r/flarerag-go/internal/assembler"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PIPELINE_TOP_K", "PIPELINE_SCORE_THRESHOLD", "PIPELINE_BUDGET_UNIT", "PROMPTS_FILE"} {
		t.Setenv(k, "")
	}
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() error = %v", err)
	}
	if cfg.TopK != DefaultTopK || cfg.ScoreThreshold != DefaultScoreThreshold || cfg.BudgetUnit != assembler.UnitChars {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	if err := os.WriteFile(path, []byte("failure_answer: \"down for maintenance\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PIPELINE_TOP_K", "8")
	t.Setenv("PIPELINE_SCORE_THRESHOLD", "0.72")
	t.Setenv("PIPELINE_BUDGET_UNIT", "tokens")
	t.Setenv("PIPELINE_CONTEXT_BUDGET", "1500")
	t.Setenv("PIPELINE_RETRY_ATTEMPTS", "5")
	t.Setenv("PIPELINE_CALL_TIMEOUT", "12s")
	t.Setenv("PROMPTS_FILE", path)

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() error = %v", err)
	}
	if cfg.TopK != 8 || cfg.ContextBudget != 1500 || cfg.BudgetUnit != assembler.UnitTokens {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ScoreThreshold < 0.719 || cfg.ScoreThreshold > 0.721 {
		t.Errorf("ScoreThreshold = %v", cfg.ScoreThreshold)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.CallTimeout != 12*time.Second {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Templates.FailureAnswer != "down for maintenance" {
		t.Errorf("FailureAnswer = %q", cfg.Templates.FailureAnswer)
	}
}

func TestConfigFromEnv_Invalid(t *testing.T) {
	tests := map[string]string{
		"PIPELINE_TOP_K":           "zero",
		"PIPELINE_SCORE_THRESHOLD": "2",
		"PIPELINE_BUDGET_UNIT":     "pages",
		"PIPELINE_CALL_TIMEOUT":    "soon",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := ConfigFromEnv(); err == nil {
				t.Errorf("%s=%s: expected error", key, val)
			}
		})
	}
}

// Package config provides YAML-based configuration for flarerag.
// Configuration is layered: defaults → YAML file → env vars. Environment
// variables always win; the YAML file only fills variables that are unset,
// so every component keeps reading its settings from the environment.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. FLARERAG_CONFIG environment variable
//  3. ~/.flarerag/config.yaml
//  4. ./flarerag.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
type Config struct {
	// Model configures the chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Index configures the vector index backend.
	Index IndexConfig `yaml:"index"`

	// Pipeline tunes retrieval, context assembly and retries.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Ingest tunes chunking and batch embedding for `flarerag ingest`.
	Ingest IngestConfig `yaml:"ingest"`

	// Prompts points at an optional prompt override file.
	Prompts PromptsConfig `yaml:"prompts"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures chat session persistence.
	History HistoryConfig `yaml:"history"`

	// Tracing configures Langfuse tracing.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini.
	Provider string `yaml:"provider"`
	// MaxTokens caps the responder's reply length.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls responder randomness (0.0–1.0). The router
	// always runs at 0.
	Temperature float32 `yaml:"temperature"`

	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Ark    ArkConfig    `yaml:"ark"`
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI (or OpenAI-compatible) provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	// BaseURL points at an OpenAI-compatible gateway such as OpenRouter.
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, gemini).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// IndexConfig selects and configures the vector index.
type IndexConfig struct {
	// Backend is qdrant, milvus or memory.
	Backend string       `yaml:"backend"`
	Qdrant  QdrantConfig `yaml:"qdrant"`
	Milvus  MilvusConfig `yaml:"milvus"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// MilvusConfig holds Milvus connection settings.
type MilvusConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	// Password is the Milvus password. Prefer env var MILVUS_PASSWORD.
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// PipelineConfig tunes the query pipeline.
type PipelineConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float32 `yaml:"score_threshold"`
	ContextBudget  int     `yaml:"context_budget"`
	// BudgetUnit is chars or tokens.
	BudgetUnit    string `yaml:"budget_unit"`
	HistoryTokens int    `yaml:"history_tokens"`
	// RetryAttempts counts the first attempt.
	RetryAttempts   int    `yaml:"retry_attempts"`
	RetryBackoff    string `yaml:"retry_backoff"`
	RetryMaxBackoff string `yaml:"retry_max_backoff"`
	// CallTimeout bounds each external call, e.g. "30s".
	CallTimeout string `yaml:"call_timeout"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	BatchSize    int `yaml:"batch_size"`
	Workers      int `yaml:"workers"`
}

// PromptsConfig points at a YAML file overriding the built-in prompts.
type PromptsConfig struct {
	File string `yaml:"file"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var
	// FLARERAG_API_KEY.
	APIKey string `yaml:"api_key"`
	// ChatTimeout bounds one /api/chat request, e.g. "2m".
	ChatTimeout string `yaml:"chat_timeout"`
	// RateLimit is the sustained /api/chat requests per second per client.
	RateLimit float32 `yaml:"rate_limit"`
	// RateBurst is the /api/chat burst size per client.
	RateBurst int `yaml:"rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// HistoryConfig holds chat session settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML config fields to their env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"QDRANT_HOST", func(c *Config) string { return c.Index.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Index.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Index.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Index.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Index.Qdrant.TLS) }},
	{"MILVUS_ADDRESS", func(c *Config) string { return c.Index.Milvus.Address }},
	{"MILVUS_USERNAME", func(c *Config) string { return c.Index.Milvus.Username }},
	{"MILVUS_PASSWORD", func(c *Config) string { return c.Index.Milvus.Password }},
	{"MILVUS_DATABASE", func(c *Config) string { return c.Index.Milvus.Database }},
	{"MILVUS_COLLECTION", func(c *Config) string { return c.Index.Milvus.Collection }},
	{"PIPELINE_TOP_K", func(c *Config) string { return intStr(c.Pipeline.TopK) }},
	{"PIPELINE_SCORE_THRESHOLD", func(c *Config) string { return float32Str(c.Pipeline.ScoreThreshold) }},
	{"PIPELINE_CONTEXT_BUDGET", func(c *Config) string { return intStr(c.Pipeline.ContextBudget) }},
	{"PIPELINE_BUDGET_UNIT", func(c *Config) string { return c.Pipeline.BudgetUnit }},
	{"PIPELINE_HISTORY_TOKENS", func(c *Config) string { return intStr(c.Pipeline.HistoryTokens) }},
	{"PIPELINE_RETRY_ATTEMPTS", func(c *Config) string { return intStr(c.Pipeline.RetryAttempts) }},
	{"PIPELINE_RETRY_BACKOFF", func(c *Config) string { return c.Pipeline.RetryBackoff }},
	{"PIPELINE_RETRY_MAX_BACKOFF", func(c *Config) string { return c.Pipeline.RetryMaxBackoff }},
	{"PIPELINE_CALL_TIMEOUT", func(c *Config) string { return c.Pipeline.CallTimeout }},
	{"INGEST_CHUNK_SIZE", func(c *Config) string { return intStr(c.Ingest.ChunkSize) }},
	{"INGEST_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Ingest.ChunkOverlap) }},
	{"INGEST_BATCH_SIZE", func(c *Config) string { return intStr(c.Ingest.BatchSize) }},
	{"INGEST_WORKERS", func(c *Config) string { return intStr(c.Ingest.Workers) }},
	{"PROMPTS_FILE", func(c *Config) string { return c.Prompts.File }},
	{"FLARERAG_HOST", func(c *Config) string { return c.Server.Host }},
	{"FLARERAG_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"FLARERAG_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"FLARERAG_CHAT_TIMEOUT", func(c *Config) string { return c.Server.ChatTimeout }},
	{"FLARERAG_RATE_LIMIT", func(c *Config) string { return float32Str(c.Server.RateLimit) }},
	{"FLARERAG_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"FLARERAG_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten.
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: failed to set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("FLARERAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".flarerag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("flarerag.yaml"); err == nil {
		return "flarerag.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

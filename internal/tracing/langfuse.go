// Package tracing wires Langfuse into eino's global callback chain, so every
// pipeline graph run and every chat model call is traced without the stages
// knowing about it.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/flarerag-go/internal/version"
)

// DefaultHost is used when LANGFUSE_HOST is unset.
const DefaultHost = "http://localhost:3000"

// Config holds the Langfuse credentials.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY.
func ConfigFromEnv() Config {
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = DefaultHost
	}
	return Config{
		Host:      host,
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup registers the Langfuse handler globally when cfg is enabled and
// returns the flush function to call before exit. When tracing is disabled
// it returns a no-op flush and false.
func Setup(cfg Config) (func(), bool) {
	if !cfg.Enabled() {
		return func() {}, false
	}

	handler, flush := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      "flarerag",
		Release:   version.Version,
	})
	callbacks.AppendGlobalHandlers(handler)
	return flush, true
}

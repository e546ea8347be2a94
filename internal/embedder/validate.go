package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If EMBEDDING_MODEL matches any
// of these, a warning is emitted so the operator knows they may have
// misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate checks that the embedding configuration can produce vectors
// before any index or pipeline is built. It returns an error if the
// configuration is clearly broken (e.g. azure with no API key), and logs a
// warning if EMBEDDING_MODEL looks like a chat model rather than an
// embedding model.
func Validate(log *slog.Logger) error {
	backend := Backend()

	// An inherited backend is usually an oversight when the chat provider
	// has no embedding models of its own.
	if backend != "ollama" && os.Getenv("EMBEDDING_PROVIDER") == "" {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set, inheriting MODEL_PROVIDER as embedding backend",
			slog.String("backend", backend),
			slog.String("hint", "set EMBEDDING_PROVIDER=ollama (or openai/azure/gemini) to be explicit"),
		)
	}

	switch backend {
	case "ollama":
	case "openai":
		if firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("OPENAI_API_KEY")) == "" {
			return fmt.Errorf("embedder: no OpenAI API key found, set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("AZURE_OPENAI_API_KEY")) == "" {
			return fmt.Errorf("embedder: no Azure API key found, set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if firstNonEmpty(os.Getenv("EMBEDDING_ENDPOINT"), os.Getenv("AZURE_OPENAI_ENDPOINT")) == "" {
			return fmt.Errorf("embedder: no Azure endpoint found, set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "gemini":
		if firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("GOOGLE_API_KEY")) == "" {
			return fmt.Errorf("embedder: no Google API key found, set GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
	default:
		return fmt.Errorf("embedder: unsupported embedding backend %q, set EMBEDDING_PROVIDER to ollama, openai, azure, or gemini", backend)
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-004"),
		)
	}
	return nil
}

// Package provider constructs LLM chat models for the pipeline and adapts
// them to the rag.LLM capability. Backends are eino-ext chat models selected
// at runtime.
// Supported backends: Ollama, OpenAI, Azure OpenAI, Volcengine Ark, Google Gemini.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects the Volcengine Ark model runtime.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Config holds all provider-level configuration resolved from environment
// variables. Only the block matching Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Ollama holds Ollama settings.
	Ollama ProviderOllama

	// OpenAI holds OpenAI settings.
	OpenAI ProviderOpenAI

	// AzureOpenAI holds Azure OpenAI settings.
	AzureOpenAI ProviderAzureOpenAI

	// Ark holds Volcengine Ark settings.
	Ark ProviderArk

	// Gemini holds Google Gemini settings.
	Gemini ProviderGemini

	// Tuning holds sampling settings shared by every backend.
	Tuning SharedTuning
}

// ProviderOllama configures a local Ollama server.
type ProviderOllama struct {
	// Host is the Ollama base URL (e.g. http://localhost:11434).
	Host string
	// Model is the Ollama model tag (e.g. llama3).
	Model string
}

// ProviderOpenAI configures the public OpenAI API.
type ProviderOpenAI struct {
	// APIKey is the OpenAI secret key.
	APIKey string
	// Model is the model name (e.g. gpt-4o).
	Model string
	// BaseURL overrides the API endpoint for OpenAI-compatible gateways.
	BaseURL string
}

// ProviderAzureOpenAI configures an Azure OpenAI deployment.
type ProviderAzureOpenAI struct {
	// APIKey is the Azure resource key.
	APIKey string
	// Endpoint is the resource endpoint (https://<name>.openai.azure.com).
	Endpoint string
	// Deployment is the deployment name, used verbatim as the model.
	Deployment string
	// APIVersion is the Azure REST API version.
	APIVersion string
}

// ProviderArk configures the Volcengine Ark runtime.
type ProviderArk struct {
	// APIKey is the Ark API key.
	APIKey string
	// Model is the Ark endpoint or model ID.
	Model string
	// BaseURL overrides the regional endpoint.
	BaseURL string
}

// ProviderGemini configures Google Gemini via AI Studio.
type ProviderGemini struct {
	// APIKey is the Google API key.
	APIKey string
	// Model is the Gemini model name (e.g. gemini-2.0-flash).
	Model string
}

// SharedTuning holds sampling parameters applied to every generate call
// unless the caller overrides them.
type SharedTuning struct {
	// MaxTokens caps the number of tokens per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Validate returns a descriptive error naming the missing env var when the
// selected backend is not fully configured.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Host == "" {
			return fmt.Errorf("provider: OLLAMA_HOST is required for ollama backend")
		}
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q: valid values: ollama, openai, azure, ark, gemini", c.Backend)
	}
	return nil
}

// ModelName returns the model identifier of the selected backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	case BackendGemini:
		return c.Gemini.Model
	}
	return ""
}

// isAzureReasoningModel reports whether an Azure deployment name refers to an
// o-series or codex reasoning model. Those reject the temperature parameter.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}

package index

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// Backend enumerates the supported vector index backends.
type Backend string

const (
	// BackendQdrant selects a Qdrant instance over gRPC.
	BackendQdrant Backend = "qdrant"
	// BackendMilvus selects a Milvus instance over gRPC.
	BackendMilvus Backend = "milvus"
	// BackendMemory selects the in-process index. Contents do not survive
	// a restart.
	BackendMemory Backend = "memory"
)

// DefaultCollection is used when no collection name is configured.
const DefaultCollection = "flare-docs"

// Config selects and configures one backend.
type Config struct {
	// Backend identifies which index to connect to.
	Backend Backend

	// Dimensions is the embedding size the collection is created with.
	Dimensions int

	// Qdrant holds Qdrant connection settings.
	Qdrant QdrantConfig

	// Milvus holds Milvus connection settings.
	Milvus MilvusConfig
}

// ConfigFromEnv reads index configuration from environment variables.
//
//	INDEX_BACKEND      = qdrant | milvus | memory (default: qdrant)
//	Qdrant:  QDRANT_HOST, QDRANT_PORT (6334), QDRANT_COLLECTION, QDRANT_API_KEY, QDRANT_TLS
//	Milvus:  MILVUS_ADDRESS (localhost:19530), MILVUS_USERNAME, MILVUS_PASSWORD,
//	         MILVUS_DATABASE, MILVUS_COLLECTION
//
// dims is the embedding size reported by the embedder configuration.
func ConfigFromEnv(dims int) *Config {
	return &Config{
		Backend:    Backend(getEnvOrDefault("INDEX_BACKEND", string(BackendQdrant))),
		Dimensions: dims,
		Qdrant: QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", DefaultCollection),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		},
		Milvus: MilvusConfig{
			Address:    getEnvOrDefault("MILVUS_ADDRESS", "localhost:19530"),
			Username:   os.Getenv("MILVUS_USERNAME"),
			Password:   os.Getenv("MILVUS_PASSWORD"),
			Database:   os.Getenv("MILVUS_DATABASE"),
			Collection: getEnvOrDefault("MILVUS_COLLECTION", DefaultCollection),
		},
	}
}

// New connects to the configured backend.
func New(ctx context.Context, cfg *Config) (Client, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("index: embedding dimensions must be positive, got %d", cfg.Dimensions)
	}
	switch cfg.Backend {
	case BackendQdrant:
		qc := cfg.Qdrant
		qc.VectorSize = uint64(cfg.Dimensions) //nolint:gosec // dimensions are bounded
		return NewQdrantIndex(ctx, &qc)
	case BackendMilvus:
		mc := cfg.Milvus
		mc.VectorSize = cfg.Dimensions
		return NewMilvusIndex(ctx, &mc)
	case BackendMemory:
		return NewMemoryIndex(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("index: unknown backend %q: valid values: qdrant, milvus, memory", cfg.Backend)
	}
}

// Describe returns a short human-readable location for logs.
func (c *Config) Describe() string {
	switch c.Backend {
	case BackendQdrant:
		return fmt.Sprintf("qdrant %s:%d/%s", c.Qdrant.Host, c.Qdrant.Port, c.Qdrant.Collection)
	case BackendMilvus:
		return fmt.Sprintf("milvus %s/%s", c.Milvus.Address, c.Milvus.Collection)
	default:
		return string(c.Backend)
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

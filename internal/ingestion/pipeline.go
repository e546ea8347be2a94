// Package ingestion builds the knowledge corpus the query pipeline searches.
// It loads Flare documentation (a CSV export or a markdown tree), chunks the
// content, embeds each chunk with the document-purpose embedder, and upserts
// the results into the vector index. Batches are embedded concurrently on a
// bounded worker pool. This pipeline is invoked by `flarerag ingest` and by
// `flarerag serve --ingest`.
package ingestion

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/54b3r/flarerag-go/internal/index"
	"github.com/54b3r/flarerag-go/internal/logging"
	"github.com/54b3r/flarerag-go/internal/rag"
	"github.com/54b3r/flarerag-go/internal/retry"
)

// Default pool and batch sizes.
const (
	DefaultBatchSize = 32
	DefaultWorkers   = 4
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to DefaultChunkSize if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive chunks.
	// Defaults to DefaultChunkOverlap if zero.
	ChunkOverlap int

	// BatchSize is the number of chunks embedded and upserted per call.
	BatchSize int

	// Workers bounds how many batches are in flight at once.
	Workers int

	// Retry wraps each embed and upsert call.
	Retry retry.Policy
}

// ConfigFromEnv reads ingestion tuning from environment variables:
//
//	INGEST_CHUNK_SIZE     characters per chunk (default 1000)
//	INGEST_CHUNK_OVERLAP  characters shared by neighbours (default 100)
//	INGEST_BATCH_SIZE     chunks per embed call (default 32)
//	INGEST_WORKERS        concurrent batches (default 4)
//
// Unparseable values fall back to the defaults.
func ConfigFromEnv() *Config {
	return &Config{
		ChunkSize:    getEnvInt("INGEST_CHUNK_SIZE", DefaultChunkSize),
		ChunkOverlap: getEnvInt("INGEST_CHUNK_OVERLAP", DefaultChunkOverlap),
		BatchSize:    getEnvInt("INGEST_BATCH_SIZE", DefaultBatchSize),
		Workers:      getEnvInt("INGEST_WORKERS", DefaultWorkers),
		Retry:        retry.DefaultPolicy(),
	}
}

// Stats summarises one ingestion run.
type Stats struct {
	Documents int
	Chunks    int
	Batches   int
	// Upserted counts chunks written to the index.
	Upserted int
	// Failed counts chunks in batches that could not be embedded or written.
	Failed int
	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// Pipeline orchestrates the chunk → embed → upsert flow for a set of
// documents.
type Pipeline struct {
	// embedder converts chunk text into dense vector embeddings. It should
	// be built with embedder.PurposeDocument.
	embedder rag.Embedder

	// index persists the embedded chunks.
	index index.Client

	chunker *Chunker

	// cfg holds the resolved pipeline configuration.
	cfg Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, idx index.Client, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	c := Config{Retry: retry.DefaultPolicy()}
	if cfg != nil {
		c = *cfg
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 1
	}

	return &Pipeline{
		embedder: embedder,
		index:    idx,
		chunker:  NewChunker(c.ChunkSize, c.ChunkOverlap),
		cfg:      c,
	}, nil
}

// Recreate drops every point in the index and recreates an empty collection.
func (p *Pipeline) Recreate(ctx context.Context) error {
	if err := p.index.Reset(ctx); err != nil {
		return fmt.Errorf("ingestion: recreate %s collection: %w", p.index.Name(), err)
	}
	logging.FromContext(ctx).Info("ingestion: collection recreated", "backend", p.index.Name())
	return nil
}

// Ingest chunks, embeds, and stores docs. A batch whose embedding or upsert
// fails after retries is logged and skipped; the run continues with the
// remaining batches. Ingest returns an error only when ctx is cancelled or
// when no batch at all could be written.
func (p *Pipeline) Ingest(ctx context.Context, docs []Document) (Stats, error) {
	log := logging.FromContext(ctx)
	started := time.Now()

	stats := Stats{Documents: len(docs)}
	var chunks []rag.Chunk
	for _, d := range docs {
		chunks = append(chunks, p.chunker.Split(d)...)
	}
	stats.Chunks = len(chunks)
	if len(chunks) == 0 {
		stats.Duration = time.Since(started)
		return stats, nil
	}

	pool, err := ants.NewPool(p.cfg.Workers, ants.WithPanicHandler(func(v any) {
		log.Error("ingestion: worker panic recovered", "panic", v)
	}))
	if err != nil {
		return stats, fmt.Errorf("ingestion: create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		upserted atomic.Int64
		failed   atomic.Int64
	)
	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		batch := chunks[start:min(start+p.cfg.BatchSize, len(chunks))]
		n := stats.Batches
		stats.Batches++

		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := p.writeBatch(ctx, batch); err != nil {
				log.Warn("ingestion: batch skipped",
					"batch", n,
					"chunks", len(batch),
					"first_origin", batch[0].Origin,
					"error", err,
				)
				failed.Add(int64(len(batch)))
				return
			}
			upserted.Add(int64(len(batch)))
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			return stats, fmt.Errorf("ingestion: submit batch %d: %w", n, err)
		}
	}
	wg.Wait()

	stats.Upserted = int(upserted.Load())
	stats.Failed = int(failed.Load())
	stats.Duration = time.Since(started)

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("ingestion: %w", err)
	}
	if stats.Upserted == 0 {
		return stats, fmt.Errorf("ingestion: all %d batches failed", stats.Batches)
	}

	log.Info("ingestion: run complete",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"upserted", stats.Upserted,
		"failed", stats.Failed,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

// writeBatch embeds one batch and upserts it.
func (p *Pipeline) writeBatch(ctx context.Context, batch []rag.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, _, err := retry.Do(ctx, p.cfg.Retry, "embed_documents", func(ctx context.Context) ([][]float32, error) {
		return p.embedder.Embed(ctx, texts)
	})
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(batch))
	}

	points := make([]index.Point, len(batch))
	for i, c := range batch {
		points[i] = index.Point{Chunk: c, Vector: vectors[i]}
	}
	_, _, err = retry.Do(ctx, p.cfg.Retry, "upsert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.index.Upsert(ctx, points)
	})
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
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

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/flarerag-go/internal/embedder"
	"github.com/54b3r/flarerag-go/internal/index"
	"github.com/54b3r/flarerag-go/internal/ingestion"
	"github.com/54b3r/flarerag-go/internal/pipeline"
	"github.com/54b3r/flarerag-go/internal/provider"
	"github.com/54b3r/flarerag-go/internal/store"
)

// queryRuntime holds everything a command needs to answer queries.
type queryRuntime struct {
	llm         *provider.Chat
	providerCfg *provider.Config
	index       index.Client
	pipeline    *pipeline.Pipeline
}

// Close releases the index connection.
func (r *queryRuntime) Close() {
	_ = r.index.Close()
}

// buildQueryRuntime initialises the chat model, the query embedder, and the
// vector index, then compiles the query pipeline. reg receives the pipeline
// metrics and may be nil.
func buildQueryRuntime(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*queryRuntime, error) {
	providerCfg := provider.ConfigFromEnv()
	llm, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv(ctx, embedder.PurposeQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	idx, err := openIndex(ctx, log)
	if err != nil {
		return nil, err
	}

	pipeCfg, err := pipeline.ConfigFromEnv()
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	p, err := pipeline.New(ctx, pipeline.Deps{
		LLM:        llm,
		Embedder:   emb,
		Index:      idx,
		Registerer: reg,
	}, pipeCfg)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to initialise pipeline: %w", err)
	}

	return &queryRuntime{llm: llm, providerCfg: providerCfg, index: idx, pipeline: p}, nil
}

// openIndex connects to the configured vector index. The vector size follows
// the embedding backend so the collection matches the embedder.
func openIndex(ctx context.Context, log *slog.Logger) (index.Client, error) {
	cfg := index.ConfigFromEnv(embedder.DefaultDimensions(embedder.Backend()))
	idx, err := index.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Describe(), err)
	}
	log.Info("index ready", slog.String("index", cfg.Describe()))
	return idx, nil
}

// buildIngester wires a document-purpose embedder to idx.
func buildIngester(ctx context.Context, log *slog.Logger, idx index.Client) (*ingestion.Pipeline, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv(ctx, embedder.PurposeDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("backend", embedder.Backend()))

	ing, err := ingestion.NewPipeline(emb, idx, ingestion.ConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}
	return ing, nil
}

// ingestSource names where documents come from. Exactly one of CSV and Dir
// is set.
type ingestSource struct {
	CSV string
	Dir string
}

// Path returns the file or directory the source reads.
func (s ingestSource) Path() string {
	if s.CSV != "" {
		return s.CSV
	}
	return s.Dir
}

func (s ingestSource) validate() error {
	switch {
	case s.CSV == "" && s.Dir == "":
		return errors.New("one of --csv or --dir is required")
	case s.CSV != "" && s.Dir != "":
		return errors.New("--csv and --dir are mutually exclusive")
	}
	return nil
}

// load reads every document from the source.
func (s ingestSource) load(ctx context.Context) (ingestion.LoadResult, error) {
	if s.CSV != "" {
		return ingestion.LoadCSV(ctx, s.CSV)
	}
	return ingestion.LoadDir(ctx, s.Dir)
}

// ingestOnce loads src and writes it through ing, dropping the collection
// first when recreate is set.
func ingestOnce(ctx context.Context, log *slog.Logger, ing *ingestion.Pipeline, src ingestSource, recreate bool) error {
	res, err := src.load(ctx)
	if err != nil {
		return err
	}
	log.Info("documents loaded",
		slog.String("source", src.Path()),
		slog.Int("documents", len(res.Documents)),
		slog.Int("skipped", res.Skipped),
	)
	if len(res.Documents) == 0 {
		return fmt.Errorf("no documents found in %s", src.Path())
	}

	if recreate {
		if err := ing.Recreate(ctx); err != nil {
			return err
		}
	}

	_, err = ing.Ingest(ctx, res.Documents)
	return err
}

// watchAndReingest re-runs ingestion whenever src changes until ctx ends.
// Re-ingestion is an idempotent upsert; the collection is not recreated.
func watchAndReingest(ctx context.Context, log *slog.Logger, ing *ingestion.Pipeline, src ingestSource) error {
	w, err := ingestion.NewWatcher(src.Path(), ingestion.DefaultDebounce)
	if err != nil {
		return err
	}
	return w.Run(ctx, func(ctx context.Context) error {
		return ingestOnce(ctx, log, ing, src, false)
	})
}

// openHistory opens the chat session store. FLARERAG_HISTORY_DB overrides
// the default path (~/.flarerag/history.db); "disabled" turns history off.
// Failures are logged and disable history rather than aborting startup.
func openHistory(log *slog.Logger) *store.SQLiteStore {
	dbPath := os.Getenv("FLARERAG_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via FLARERAG_HISTORY_DB=disabled")
		return nil
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs
}

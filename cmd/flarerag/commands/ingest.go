package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/flarerag-go/internal/logging"
)

// NewIngestCmd constructs the `flarerag ingest` command, which chunks,
// embeds, and indexes Flare documentation for retrieval.
func NewIngestCmd() *cobra.Command {
	var (
		src      ingestSource
		recreate bool
		watch    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest Flare documentation into the vector index",
		Long: `Chunk, embed, and index Flare documentation for retrieval.

Documents come from a CSV export (--csv, columns file_name, meta_data,
content) or from a directory of .md, .mdx and .txt files (--dir). Section
and doc_type metadata are inferred from each document's path.

Re-ingesting the same content is idempotent: chunk IDs derive from the
document origin and chunk position. Use --recreate to drop the collection
first, e.g. after changing the embedding model.

Relevant environment variables:
  INDEX_BACKEND         qdrant, milvus or memory (default: qdrant)
  QDRANT_HOST           Qdrant server hostname (default: localhost)
  QDRANT_COLLECTION     Collection name (default: flare-docs)
  EMBEDDING_PROVIDER    Embedding backend: ollama, openai, azure, gemini
  INGEST_CHUNK_SIZE     Characters per chunk (default: 1000)
  INGEST_CHUNK_OVERLAP  Characters shared by neighbouring chunks (default: 100)
  INGEST_BATCH_SIZE     Chunks per embedding call (default: 32)
  INGEST_WORKERS        Concurrent batches (default: 4)

Examples:
  flarerag ingest --csv ./flare_docs.csv --recreate
  flarerag ingest --dir ./developer-hub/docs
  flarerag ingest --dir ./developer-hub/docs --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := src.validate(); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			idx, err := openIndex(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = idx.Close() }()

			ing, err := buildIngester(ctx, log, idx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log.Info("starting ingestion", slog.String("source", src.Path()), slog.Bool("recreate", recreate))
			if err := ingestOnce(ctx, log, ing, src, recreate); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			if !watch {
				return nil
			}
			if err := watchAndReingest(ctx, log, ing, src); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&src.CSV, "csv", "", "CSV export with file_name, meta_data and content columns")
	cmd.Flags().StringVar(&src.Dir, "dir", "", "Directory of .md, .mdx and .txt documents")
	cmd.Flags().BoolVar(&recreate, "recreate", false, "Drop and recreate the collection before ingesting")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and re-ingest when the source changes")

	return cmd
}

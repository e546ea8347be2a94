package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/flarerag-go/internal/logging"
	"github.com/54b3r/flarerag-go/internal/rag"
	"github.com/54b3r/flarerag-go/internal/tracing"
)

// NewAskCmd constructs the `flarerag ask` command, which runs a single
// question through the query pipeline and prints the answer with its sources.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the Flare network",
		Long: `Run one question through the FlareRAG query pipeline.

The answer is printed followed by the documents it cites and the provenance
label (RAG, RAG_NO_MATCH, RAG_DEGRADED, DIRECT or ERROR).

Examples:
  flarerag ask "what is the FTSO?"
  flarerag ask "how do I request an attestation from the Flare Data Connector?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			flush, _ := tracing.Setup(tracing.ConfigFromEnv())
			defer flush()

			rt, err := buildQueryRuntime(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer rt.Close()

			resp, err := rt.pipeline.Answer(ctx, rag.Request{Query: strings.Join(args, " ")})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Answer)
			if len(resp.Sources) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Sources:")
				for _, s := range resp.Sources {
					fmt.Fprintf(out, "  %s %s\n", s.Marker, s.Origin)
				}
			}
			fmt.Fprintf(out, "\n[intent: %s, provenance: %s]\n", resp.Intent, resp.Provenance)
			return nil
		},
	}

	return cmd
}

// Package commands defines all Cobra CLI commands for the flarerag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/flarerag-go/internal/audit"
	"github.com/54b3r/flarerag-go/internal/config"
	"github.com/54b3r/flarerag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flarerag",
		Short: "FlareRAG: grounded answers about the Flare network",
		Long: `FlareRAG answers questions about the Flare network using retrieval
over the Flare developer documentation.

Each query is routed by intent, answered from the top matching documentation
chunks, and returned with citations and a provenance label that says how the
answer was produced.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.flarerag/config.yaml).
See 'flarerag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Env vars always override YAML values.
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.flarerag/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}

// Command flarerag answers questions about the Flare network from its
// documentation. It provides a CLI (via Cobra) for one-shot questions and
// corpus ingestion, and an HTTP server exposing the query pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/flarerag-go/cmd/flarerag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

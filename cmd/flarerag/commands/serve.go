package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/flarerag-go/internal/logging"
	"github.com/54b3r/flarerag-go/internal/provider"
	"github.com/54b3r/flarerag-go/internal/server"
	"github.com/54b3r/flarerag-go/internal/store"
	"github.com/54b3r/flarerag-go/internal/tracing"
)

// NewServeCmd constructs the `flarerag serve` command, which starts the HTTP
// server in front of the query pipeline.
func NewServeCmd() *cobra.Command {
	var (
		host   string
		port   int
		csv    string
		watch  bool
		source ingestSource
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the FlareRAG HTTP server",
		Long: `Start the FlareRAG HTTP server.

Endpoints:
  POST /api/chat     {"query": "...", "history": [...], "sessionId": "..."}
  GET  /api/health   liveness
  GET  /api/ready    model, index and history store probes
  GET  /metrics      Prometheus metrics

Set FLARERAG_API_KEY to require a Bearer token on /api/chat.

With --ingest the collection is rebuilt from the CSV export before the
server starts listening. Adding --watch re-ingests whenever the file changes.

Examples:
  flarerag serve
  flarerag serve --port 9090
  flarerag serve --ingest ./flare_docs.csv --watch
  MODEL_PROVIDER=gemini flarerag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if watch && csv == "" {
				return fmt.Errorf("serve: --watch requires --ingest")
			}
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("FLARERAG_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("FLARERAG_PORT", port)
			}

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing is opt-in and a no-op when keys are absent.
			flush, ok := tracing.Setup(tracing.ConfigFromEnv())
			defer flush()
			if ok {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			rt, err := buildQueryRuntime(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer rt.Close()

			if csv != "" {
				source = ingestSource{CSV: csv}
				ing, err := buildIngester(ctx, log, rt.index)
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				if err := ingestOnce(ctx, log, ing, source, true); err != nil {
					return fmt.Errorf("serve: ingest %s: %w", csv, err)
				}
				if watch {
					go func() {
						if err := watchAndReingest(ctx, log, ing, source); err != nil {
							log.Error("watch stopped", slog.Any("error", err))
						}
					}()
				}
			}

			pingers := []server.Pinger{
				provider.NewPinger(rt.llm, rt.providerCfg),
				rt.index,
			}

			var sessions store.SessionStore
			if hs := openHistory(log); hs != nil {
				defer func() { _ = hs.Close() }()
				sessions = hs
				pingers = append(pingers, server.NewFuncPinger("history", hs.Ping))
			}

			chatTimeout, err := getEnvDuration("FLARERAG_CHAT_TIMEOUT", 0)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			rateLimit, err := getEnvFloat("FLARERAG_RATE_LIMIT", 0)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(rt.pipeline, sessions, &server.Config{
				Host:        host,
				Port:        port,
				Logger:      log,
				Pingers:     pingers,
				APIKey:      os.Getenv("FLARERAG_API_KEY"),
				ChatTimeout: chatTimeout,
				RateLimit:   rateLimit,
				RateBurst:   getEnvInt("FLARERAG_RATE_BURST", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().StringVar(&csv, "ingest", "", "Rebuild the collection from this CSV export before serving")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-ingest the --ingest file when it changes")

	return cmd
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

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

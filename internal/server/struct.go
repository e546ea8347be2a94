package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/flarerag-go/internal/rag"
	"github.com/54b3r/flarerag-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds one POST /api/chat request end to end, including
	// every retry the pipeline makes. Defaults to 2 minutes if zero.
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// HistoryTurns is how many stored turns are loaded for a chat session.
	// Defaults to 10 if zero.
	HistoryTurns int
	// MetricsRegistry receives the server's metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// answerer is the interface handleChat calls to answer a query.
// *pipeline.Pipeline satisfies it; tests inject a fake.
type answerer interface {
	// Answer runs req through the query pipeline. The error is non-nil only
	// for a malformed request.
	Answer(ctx context.Context, req rag.Request) (rag.Response, error)
}

// Server is the HTTP server that wraps the query pipeline.
type Server struct {
	// answerer handles every /api/chat query.
	answerer answerer
	// sessions persists chat turns keyed by sessionId. Nil disables
	// server-side history.
	sessions store.SessionStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Query is the user's question.
	Query string `json:"query"`
	// History holds prior turns, oldest first. When empty and SessionID is
	// set, history is loaded from the session store.
	History []rag.Turn `json:"history,omitempty"`
	// SessionID groups turns of one conversation.
	SessionID string `json:"sessionId,omitempty"`
}

// errorResponse is the JSON body of every non-2xx /api/chat response.
type errorResponse struct {
	Error string `json:"error"`
}

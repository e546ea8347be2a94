// Package server implements the HTTP server that exposes the query pipeline
// via a small JSON API. The server is started by the `flarerag serve` CLI
// command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/flarerag-go/internal/logging"
	"github.com/54b3r/flarerag-go/internal/pipeline"
	"github.com/54b3r/flarerag-go/internal/rag"
	"github.com/54b3r/flarerag-go/internal/store"
)

// maxChatBody caps the size of a POST /api/chat body.
const maxChatBody = 1 << 20

// New constructs a Server from the provided pipeline, optional session
// store, and config.
func New(p *pipeline.Pipeline, sessions store.SessionStore, cfg *Config) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("server: pipeline must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)

	s := &Server{
		answerer: p,
		sessions: sessions,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stop

	if cfg.APIKey == "" {
		s.log.Warn("server: FLARERAG_API_KEY not set, /api/chat is unauthenticated")
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(rl),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must outlast the slowest chat request.
		cfg.WriteTimeout = cfg.ChatTimeout + 10*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.HistoryTurns == 0 {
		cfg.HistoryTurns = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
}

// routes builds the handler tree. Only /api/chat is authenticated and rate
// limited; probes and metrics stay open for orchestrators and scrapers.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", authMiddleware(s.cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleChat))))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	return requestLogger(s.log, s.metrics.middleware(mux))
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/chat. It answers one query through the
// pipeline and returns the structured response as JSON. A malformed request
// gets 400 with {"error": ...}; pipeline failures are reported in-band via
// provenance ERROR with status 200.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		s.metrics.chatRequestsTotal.WithLabelValues("invalid").Inc()
		writeJSON(w, log, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()
	if req.SessionID != "" {
		ctx = logging.With(ctx, slog.String("session_id", req.SessionID))
		log = logging.FromContext(ctx)
	}

	history := req.History
	if len(history) == 0 && req.SessionID != "" && s.sessions != nil {
		h, err := s.sessions.Recent(ctx, req.SessionID, s.cfg.HistoryTurns)
		if err != nil {
			log.Warn("chat: loading session history failed, continuing without it", slog.Any("error", err))
		} else {
			history = h
		}
	}

	s.metrics.chatInFlight.Inc()
	start := time.Now()
	resp, err := s.answerer.Answer(ctx, rag.Request{Query: req.Query, History: history})
	s.metrics.chatInFlight.Dec()

	if err != nil {
		var verr *rag.ValidationError
		status, msg, outcome := http.StatusInternalServerError, "internal error", "error"
		if errors.As(err, &verr) {
			status, msg, outcome = http.StatusBadRequest, verr.Error(), "invalid"
		} else {
			log.Error("chat: pipeline error", slog.Any("error", err))
		}
		s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
		writeJSON(w, log, status, errorResponse{Error: msg})
		return
	}

	outcome := "ok"
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome = "timeout"
	case resp.Provenance == rag.ProvenanceError:
		outcome = "error"
	}
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if req.SessionID != "" && s.sessions != nil {
		turn := store.Turn{
			Query:      req.Query,
			Answer:     resp.Answer,
			Intent:     resp.Intent,
			Provenance: resp.Provenance,
		}
		// The request context may already be spent; persisting must not be.
		saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		if err := s.sessions.AppendTurn(saveCtx, req.SessionID, turn); err != nil {
			log.Warn("chat: saving turn failed", slog.Any("error", err))
		}
		saveCancel()
	}

	writeJSON(w, log, http.StatusOK, resp)
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}

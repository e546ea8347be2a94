package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/54b3r/flarerag-go/internal/logging"
	"github.com/54b3r/flarerag-go/internal/version"
)

// probeTimeout bounds each dependency probe run by GET /api/ready.
const probeTimeout = 5 * time.Second

// healthResponse is the body of GET /api/health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// readyCheck is one dependency's probe result.
type readyCheck struct {
	// Name is the dependency label, e.g. "ollama", "qdrant" or "history".
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// readyResponse is the body of GET /api/ready.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleHealth answers GET /api/health. It never touches a dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
	})
}

// handleReady answers GET /api/ready. Every pinger is probed concurrently;
// the response is 200 when all succeed and 503 otherwise. Checks keep the
// order the pingers were registered in.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := probeAll(r.Context(), s.pingers)
	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", c.Name),
				slog.String("error", c.Error),
			)
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, log, status, resp)
}

// probeAll pings each dependency under its own probeTimeout.
func probeAll(ctx context.Context, pingers []Pinger) []readyCheck {
	checks := make([]readyCheck, len(pingers))
	var wg sync.WaitGroup
	for i, p := range pingers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			started := time.Now()
			err := p.Ping(probeCtx)
			checks[i] = readyCheck{
				Name:      p.Name(),
				OK:        err == nil,
				LatencyMS: time.Since(started).Milliseconds(),
			}
			if err != nil {
				checks[i].Error = err.Error()
			}
		}()
	}
	wg.Wait()
	return checks
}

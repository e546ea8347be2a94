package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := &Server{
		answerer: &fakeAnswerer{resp: groundedResponse()},
		cfg: &Config{
			ChatTimeout:     5 * time.Minute,
			HistoryTurns:    10,
			MetricsRegistry: reg,
			MetricsGatherer: reg,
		},
		log:     slog.Default(),
		metrics: newServerMetrics(reg),
	}
	return s, reg
}

// findMetric returns the first sample of name whose labels include want.
func findMetric(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := 0
			for _, lp := range m.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
					match++
				}
			}
			if match == len(want) {
				return m
			}
		}
	}
	return nil
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_ChatCounterIncremented(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	postChat(t, s, `{"query":"What is the FTSO?"}`)
	postChat(t, s, `{"query":""}`)

	ok := findMetric(t, reg, "flarerag_chat_requests_total", map[string]string{"outcome": "ok"})
	if ok == nil || ok.GetCounter().GetValue() != 1 {
		t.Errorf("flarerag_chat_requests_total{outcome=\"ok\"} = %v, want 1", ok)
	}
	invalid := findMetric(t, reg, "flarerag_chat_requests_total", map[string]string{"outcome": "invalid"})
	if invalid == nil || invalid.GetCounter().GetValue() != 1 {
		t.Errorf("flarerag_chat_requests_total{outcome=\"invalid\"} = %v, want 1", invalid)
	}
}

// Provenance is counted once, by the pipeline; the server only reports
// request outcomes.
func Test_Metrics_NoServerProvenanceSeries(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	postChat(t, s, `{"query":"What is the FTSO?"}`)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "provenance" {
					t.Errorf("server metric %s carries a provenance label", mf.GetName())
				}
			}
		}
	}
}

func Test_Metrics_InFlightGauge(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.chatInFlight.Inc()
	s.metrics.chatInFlight.Inc()

	m := findMetric(t, reg, "flarerag_chat_in_flight", nil)
	if m == nil {
		t.Fatal("flarerag_chat_in_flight not found in gathered metrics")
	}
	if v := m.GetGauge().GetValue(); v != 2 {
		t.Errorf("want in_flight=2, got %v", v)
	}
}

func Test_Metrics_HTTPMiddlewareUsesPattern(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	rl, stop := newRateLimiter(100, 100, slog.Default())
	t.Cleanup(stop)
	h := s.routes(rl)

	for _, path := range []string{"/api/health", "/api/health", "/nope"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	health := findMetric(t, reg, "flarerag_http_requests_total", map[string]string{"handler": "GET /api/health", "code": "200"})
	if health == nil || health.GetCounter().GetValue() != 2 {
		t.Errorf("health requests = %v, want 2", health)
	}
	if findMetric(t, reg, "flarerag_http_requests_total", map[string]string{"handler": unmatchedHandler, "code": "404"}) == nil {
		t.Error("unmatched request not recorded under the unmatched handler label")
	}
}

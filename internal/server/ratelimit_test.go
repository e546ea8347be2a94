package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// okHandler stands in for the protected handler.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func chatFrom(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.01, 3, slog.Default())
	t.Cleanup(stop)
	h := rl.middleware(okHandler)

	for i := range 3 {
		if w := chatFrom(h, "10.0.0.1:9999"); w.Code != http.StatusOK {
			t.Fatalf("request %d within burst: got %d", i, w.Code)
		}
	}
	w := chatFrom(h, "10.0.0.1:9999")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("request over burst: got %d, want 429", w.Code)
	}
	secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || secs < 1 {
		t.Errorf("Retry-After = %q, want whole seconds >= 1", w.Header().Get("Retry-After"))
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

// TestRateLimit_RejectionDoesNotSpendTokens checks that a rejected request
// leaves the bucket as it was, so a client is not pushed further back by
// retrying.
func TestRateLimit_RejectionDoesNotSpendTokens(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(20, 1, slog.Default())
	t.Cleanup(stop)
	h := rl.middleware(okHandler)

	if w := chatFrom(h, "10.0.0.2:1"); w.Code != http.StatusOK {
		t.Fatalf("first request: got %d", w.Code)
	}
	for range 5 {
		chatFrom(h, "10.0.0.2:1")
	}
	time.Sleep(100 * time.Millisecond)
	if w := chatFrom(h, "10.0.0.2:1"); w.Code != http.StatusOK {
		t.Errorf("after refill: got %d, want 200", w.Code)
	}
}

func TestRateLimit_PerClientBuckets(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, slog.Default())
	t.Cleanup(stop)
	h := rl.middleware(okHandler)

	for range 3 {
		chatFrom(h, "192.168.1.1:1111")
	}
	if w := chatFrom(h, "192.168.1.2:2222"); w.Code != http.StatusOK {
		t.Errorf("second client: got %d, want 200", w.Code)
	}
	if w := chatFrom(h, "192.168.1.1:3333"); w.Code != http.StatusTooManyRequests {
		t.Errorf("first client on a new port: got %d, want 429", w.Code)
	}
}

func TestRateLimit_Sweep(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(1, 1, slog.Default())
	t.Cleanup(stop)

	now := time.Now()
	rl.bucket("stale", now.Add(-limiterIdleTTL-time.Second))
	rl.bucket("fresh", now)
	rl.sweep(now)

	if _, ok := rl.buckets["stale"]; ok {
		t.Error("stale bucket survived the sweep")
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Error("fresh bucket was swept")
	}
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		delay time.Duration
		ok    bool
		want  string
	}{
		{0, true, "1"},
		{300 * time.Millisecond, true, "1"},
		{2500 * time.Millisecond, true, "3"},
		{0, false, "60"},
	}
	for _, tc := range cases {
		if got := retryAfter(tc.delay, tc.ok); got != tc.want {
			t.Errorf("retryAfter(%v, %v) = %q, want %q", tc.delay, tc.ok, got, tc.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		want       string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"[::1]:8080", "::1"},
		{"noport", "noport"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if got := clientIP(req); got != tc.want {
			t.Errorf("clientIP(%q) = %q, want %q", tc.remoteAddr, got, tc.want)
		}
	}
}

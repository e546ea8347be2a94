package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oklog/ulid/v2"

	"github.com/54b3r/flarerag-go/internal/logging"
)

func TestRequestLogger_AssignsULID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var inner string
	h := requestLogger(base, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	id := w.Header().Get(requestIDHeader)
	if _, err := ulid.Parse(id); err != nil {
		t.Fatalf("request id %q is not a ULID: %v", id, err)
	}

	dec := json.NewDecoder(&buf)
	var lines []map[string]any
	for dec.More() {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}
	for _, l := range lines {
		if l["request_id"] != id {
			t.Errorf("log line %v missing request_id %q", l, id)
		}
		if l["msg"] == "inside" {
			inner = id
		}
	}
	if inner == "" {
		t.Error("handler logger did not carry the request id")
	}
	if got := lines[1]["status"]; got != float64(http.StatusTeapot) {
		t.Errorf("logged status = %v, want %d", got, http.StatusTeapot)
	}
}

func TestNewRequestID_Monotonic(t *testing.T) {
	t.Parallel()

	prev := newRequestID()
	for range 100 {
		next := newRequestID()
		if next <= prev {
			t.Fatalf("request ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

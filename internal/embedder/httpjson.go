package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 4 << 10

// apiError is satisfied by response envelopes that can carry a server
// error message.
type apiError interface {
	message() string
}

// postJSON sends in as a JSON POST to url and decodes a 2xx body into out.
// For other statuses the server's message is taken from out's error field
// when it has one, otherwise from the raw body.
func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, in any, out apiError) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if json.Unmarshal(raw, out) == nil && out.message() != "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, out.message())
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	return fmt.Errorf("HTTP %d", resp.StatusCode)
}

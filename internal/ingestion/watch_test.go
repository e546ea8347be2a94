package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func runWatcher(t *testing.T, target string, debounce time.Duration) <-chan struct{} {
	t.Helper()

	w, err := NewWatcher(target, debounce)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.Cleanup(func() {
		cancel()
		<-done
	})

	changed := make(chan struct{}, 10)
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(context.Context) error {
			changed <- struct{}{}
			return nil
		})
	}()
	return changed
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change callback")
	}
}

func TestWatcher_FileTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "docs.csv")
	if err := os.WriteFile(csvPath, []byte("file_name,meta_data,content\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	changed := runWatcher(t, csvPath, 20*time.Millisecond)

	// Sibling files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.csv"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
		t.Fatal("callback fired for an unrelated file")
	case <-time.After(150 * time.Millisecond):
	}

	if err := os.WriteFile(csvPath, []byte("file_name,meta_data,content\na.md,,text\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changed)
}

func TestWatcher_DirectoryTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "ftso")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	changed := runWatcher(t, dir, 20*time.Millisecond)

	if err := os.WriteFile(filepath.Join(sub, "overview.mdx"), []byte("# FTSO"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changed)
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	changed := runWatcher(t, dir, 100*time.Millisecond)

	for i := range 5 {
		p := filepath.Join(dir, "page.md")
		if err := os.WriteFile(p, []byte{byte('a' + i)}, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, changed)

	select {
	case <-changed:
		t.Error("burst of writes triggered more than one callback")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNewWatcher_MissingTarget(t *testing.T) {
	t.Parallel()

	if _, err := NewWatcher(filepath.Join(t.TempDir(), "missing.csv"), 0); err == nil {
		t.Fatal("NewWatcher() expected error for missing target")
	}
}

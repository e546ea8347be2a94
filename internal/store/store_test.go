package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/54b3r/flarerag-go/internal/rag"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func turn(q, a string) Turn {
	return Turn{Query: q, Answer: a, Intent: rag.IntentAnswerable, Provenance: rag.ProvenanceRAG}
}

func Test_Store_AppendAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AppendTurn(ctx, "s1", turn("what is FLR?", "the native token [1]")); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := s.Recent(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("want 1 turn, got %d", len(turns))
	}
	if turns[0].Query != "what is FLR?" || turns[0].Answer != "the native token [1]" {
		t.Errorf("turn = %+v", turns[0])
	}
}

func Test_Store_RecentLimitKeepsNewestOldestFirst(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 6 {
		if err := s.AppendTurn(ctx, "s2", turn(fmt.Sprintf("q%d", i), "a")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	turns, err := s.Recent(ctx, "s2", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("want 3 turns, got %d", len(turns))
	}
	for i, want := range []string{"q3", "q4", "q5"} {
		if turns[i].Query != want {
			t.Errorf("turn[%d] = %q, want %q", i, turns[i].Query, want)
		}
	}
}

func Test_Store_SessionIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AppendTurn(ctx, "x", turn("from x", "a")); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendTurn(ctx, "y", turn("from y", "a")); err != nil {
		t.Fatal(err)
	}

	tx, _ := s.Recent(ctx, "x", 10)
	ty, _ := s.Recent(ctx, "y", 10)
	if len(tx) != 1 || tx[0].Query != "from x" {
		t.Errorf("session x = %v", tx)
	}
	if len(ty) != 1 || ty[0].Query != "from y" {
		t.Errorf("session y = %v", ty)
	}
}

func Test_Store_SkipsFailedTurns(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	failed := Turn{Query: "q", Answer: "Sorry", Intent: rag.IntentAnswerable, Provenance: rag.ProvenanceError}
	if err := s.AppendTurn(ctx, "s", failed); err != nil {
		t.Fatal(err)
	}
	turns, err := s.Recent(ctx, "s", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("failed turn returned as history: %v", turns)
	}
}

func Test_Store_EmptySession(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if err := s.AppendTurn(context.Background(), "", turn("q", "a")); err == nil {
		t.Error("AppendTurn with empty session expected error")
	}
	turns, err := s.Recent(context.Background(), "unknown", 10)
	if err != nil || len(turns) != 0 {
		t.Errorf("Recent(unknown) = %v, %v", turns, err)
	}
}

func Test_Store_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AppendTurn(ctx, "s", turn("q", "a")); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	turns, err := s.Recent(ctx, "s", 10)
	if err != nil || len(turns) != 1 {
		t.Errorf("after reopen: %v, %v", turns, err)
	}
}

func Test_Store_Ping(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

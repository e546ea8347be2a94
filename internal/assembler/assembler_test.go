package assembler

import (
	"strings"
	"testing"

	"github.com/54b3r/flarerag-go/internal/rag"
)

func hit(id, origin, text string, start, end int, score float32) rag.ScoredChunk {
	return rag.ScoredChunk{
		Chunk: rag.Chunk{ID: id, Origin: origin, Text: text, Span: rag.Span{Start: start, End: end}},
		Score: score,
	}
}

func TestAssemble_MarkersInScoreOrder(t *testing.T) {
	t.Parallel()

	a, _ := New(1000, UnitChars)
	got := a.Assemble(rag.RetrievalResult{Hits: []rag.ScoredChunk{
		hit("1", "flr.md", "FLR is the native token.", 0, 24, 0.9),
		hit("2", "ftso.md", "FTSO delivers price feeds.", 0, 26, 0.8),
	}})

	want := "[1] (source: flr.md)\nFLR is the native token.\n\n[2] (source: ftso.md)\nFTSO delivers price feeds.\n\n"
	if got.Text != want {
		t.Errorf("Text =\n%q\nwant\n%q", got.Text, want)
	}
	if len(got.Entries) != 2 || got.Entries[0].Marker != "[1]" || got.Entries[1].Chunk.ID != "2" {
		t.Errorf("Entries = %+v", got.Entries)
	}
	if got.Size != len([]rune(want)) {
		t.Errorf("Size = %d", got.Size)
	}
}

func TestAssemble_SkipsNearDuplicates(t *testing.T) {
	t.Parallel()

	a, _ := New(1000, UnitChars)
	got := a.Assemble(rag.RetrievalResult{Hits: []rag.ScoredChunk{
		hit("a", "doc.md", "first passage", 0, 100, 0.9),
		hit("b", "doc.md", "overlapping passage", 50, 150, 0.8),
		hit("c", "other.md", "FIRST   passage", 0, 10, 0.7),
		hit("d", "doc.md", "adjacent passage", 100, 200, 0.6),
	}})

	var ids []string
	for _, e := range got.Entries {
		ids = append(ids, e.Chunk.ID)
	}
	if strings.Join(ids, ",") != "a,d" {
		t.Errorf("included = %v, want [a d]", ids)
	}
	if got.Entries[1].Marker != "[2]" {
		t.Errorf("markers not contiguous: %+v", got.Entries)
	}
}

func TestAssemble_StopsAtBudgetAndDropsLowerRanked(t *testing.T) {
	t.Parallel()

	first := "[1] (source: a.md)\n" + strings.Repeat("x", 20) + "\n\n"
	a, _ := New(len(first)+10, UnitChars)
	got := a.Assemble(rag.RetrievalResult{Hits: []rag.ScoredChunk{
		hit("1", "a.md", strings.Repeat("x", 20), 0, 20, 0.9),
		hit("2", "b.md", strings.Repeat("y", 20), 0, 20, 0.8),
		hit("3", "c.md", "z", 0, 1, 0.7),
	}})

	if len(got.Entries) != 1 || got.Entries[0].Chunk.ID != "1" {
		t.Fatalf("Entries = %+v, want only the first", got.Entries)
	}
	if got.Entries[0].Truncated {
		t.Error("whole entry marked truncated")
	}
	if got.Size > a.Budget() {
		t.Errorf("Size %d exceeds budget %d", got.Size, a.Budget())
	}
}

func TestAssemble_TruncatesOversizedFirstChunk(t *testing.T) {
	t.Parallel()

	a, _ := New(60, UnitChars)
	got := a.Assemble(rag.RetrievalResult{Hits: []rag.ScoredChunk{
		hit("big", "big.md", strings.Repeat("word ", 100), 0, 500, 0.9),
		hit("small", "s.md", "tiny", 0, 4, 0.8),
	}})

	if len(got.Entries) != 1 || !got.Entries[0].Truncated || got.Entries[0].Marker != "[1]" {
		t.Fatalf("Entries = %+v, want one truncated [1]", got.Entries)
	}
	if got.Size != 60 {
		t.Errorf("Size = %d, want exactly the budget", got.Size)
	}
	if !strings.HasPrefix(got.Text, "[1] (source: big.md)\nword ") {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestAssemble_BudgetNeverExceeded(t *testing.T) {
	t.Parallel()

	hits := []rag.ScoredChunk{
		hit("1", "a.md", strings.Repeat("alpha ", 30), 0, 180, 0.9),
		hit("2", "b.md", strings.Repeat("beta ", 10), 0, 50, 0.8),
		hit("3", "c.md", strings.Repeat("gamma ", 5), 0, 30, 0.7),
	}
	for _, unit := range []Unit{UnitChars, UnitTokens} {
		for _, max := range []int{1, 5, 10, 25, 50, 80, 120, 250, 400} {
			a, _ := New(max, unit)
			got := a.Assemble(rag.RetrievalResult{Hits: hits})
			if got.Size > max {
				t.Errorf("%s/%d: Size %d exceeds budget", unit, max, got.Size)
			}
			if a.Measure(got.Text) != got.Size {
				t.Errorf("%s/%d: Size does not match Text", unit, max)
			}
			for _, e := range got.Entries {
				if !strings.Contains(got.Text, e.Marker) {
					t.Errorf("%s/%d: marker %s missing from text", unit, max, e.Marker)
				}
			}
		}
	}
}

func TestAssemble_Empty(t *testing.T) {
	t.Parallel()

	a, _ := New(100, UnitTokens)
	got := a.Assemble(rag.RetrievalResult{})
	if got.Text != "" || len(got.Entries) != 0 || got.Size != 0 {
		t.Errorf("Assemble(empty) = %+v", got)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(0, UnitChars); err == nil {
		t.Error("New(0) expected error")
	}
	if _, err := New(10, "bytes"); err == nil {
		t.Error("New(unit=bytes) expected error")
	}
	if a, err := New(10, ""); err != nil || a.unit != UnitChars {
		t.Errorf("New(unit=\"\") = %v, %v", a, err)
	}
}

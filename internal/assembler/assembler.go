// Package assembler turns a ranked retrieval result into the context block
// handed to the responder. Each included chunk gets a stable citation marker,
// near-duplicates are skipped, and the block never exceeds its size budget.
package assembler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/flarerag-go/internal/budget"
	"github.com/54b3r/flarerag-go/internal/rag"
)

// Unit selects how context size is measured.
type Unit string

const (
	// UnitChars counts runes.
	UnitChars Unit = "chars"
	// UnitTokens uses the budget package's token estimate.
	UnitTokens Unit = "tokens"
)

// Assembler builds contexts under a fixed budget. It holds no mutable state.
type Assembler struct {
	budget int
	unit   Unit
}

// New returns an Assembler. max must be positive.
func New(max int, unit Unit) (*Assembler, error) {
	if max <= 0 {
		return nil, fmt.Errorf("assembler: budget must be positive, got %d", max)
	}
	switch unit {
	case UnitChars, UnitTokens:
	case "":
		unit = UnitChars
	default:
		return nil, fmt.Errorf("assembler: unknown budget unit %q (want chars or tokens)", unit)
	}
	return &Assembler{budget: max, unit: unit}, nil
}

// Budget returns the configured maximum size.
func (a *Assembler) Budget() int { return a.budget }

// Measure returns the size of s in the assembler's unit.
func (a *Assembler) Measure(s string) int {
	if a.unit == UnitTokens {
		return budget.Estimate(s)
	}
	return utf8.RuneCountInString(s)
}

// Assemble places hits into a context in the order given, which must be
// descending by score. Assembly stops at the first entry that does not fit.
// When even the first entry is too large it is truncated to fit and marked.
func (a *Assembler) Assemble(r rag.RetrievalResult) rag.Context {
	var (
		b       strings.Builder
		entries []rag.ContextEntry
		kept    []rag.Chunk
	)

	for _, h := range r.Hits {
		if duplicate(h.Chunk, kept) {
			continue
		}
		marker := fmt.Sprintf("[%d]", len(entries)+1)
		entry := header(marker, h.Chunk.Origin) + h.Chunk.Text + "\n\n"

		if a.Measure(b.String()+entry) <= a.budget {
			b.WriteString(entry)
			entries = append(entries, rag.ContextEntry{Marker: marker, Chunk: h.Chunk, Score: h.Score})
			kept = append(kept, h.Chunk)
			continue
		}

		if len(entries) == 0 {
			if text, ok := a.truncate(marker, h.Chunk); ok {
				b.WriteString(text)
				entries = append(entries, rag.ContextEntry{Marker: marker, Chunk: h.Chunk, Score: h.Score, Truncated: true})
			}
		}
		break
	}

	text := b.String()
	return rag.Context{Text: text, Entries: entries, Size: a.Measure(text)}
}

// truncate returns the longest rune prefix of c's entry that fits the budget.
func (a *Assembler) truncate(marker string, c rag.Chunk) (string, bool) {
	head := header(marker, c.Origin)
	render := func(n int) string {
		return head + string([]rune(c.Text)[:n]) + "\n\n"
	}
	if a.Measure(render(0)) > a.budget {
		return "", false
	}

	lo, hi := 0, utf8.RuneCountInString(c.Text)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if a.Measure(render(mid)) <= a.budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 {
		return "", false
	}
	return render(lo), true
}

func header(marker, origin string) string {
	if origin == "" {
		return marker + "\n"
	}
	return fmt.Sprintf("%s (source: %s)\n", marker, origin)
}

// duplicate reports whether c repeats an already placed chunk: the same
// origin with an overlapping span, or the same text after normalisation.
func duplicate(c rag.Chunk, kept []rag.Chunk) bool {
	norm := normalize(c.Text)
	for _, k := range kept {
		if c.Origin != "" && c.Origin == k.Origin && hasSpan(c) && hasSpan(k) && c.Span.Overlaps(k.Span) {
			return true
		}
		if norm != "" && norm == normalize(k.Text) {
			return true
		}
	}
	return false
}

func hasSpan(c rag.Chunk) bool { return c.Span.End > c.Span.Start }

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

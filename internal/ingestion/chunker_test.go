package ingestion

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
)

func TestChunker_SpansCoverDocument(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("Flare is the blockchain for data. ", 40)
	doc := Document{Origin: "docs/network/overview.mdx", Content: content}
	chunks := NewChunker(200, 20).Split(doc)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}

	runes := []rune(content)
	for i, c := range chunks {
		if c.Position != i {
			t.Errorf("chunk %d Position = %d", i, c.Position)
		}
		if n := utf8.RuneCountInString(c.Text); n > 200 {
			t.Errorf("chunk %d has %d runes, want <= 200", i, n)
		}
		if got := string(runes[c.Span.Start:c.Span.End]); got != c.Text {
			t.Errorf("chunk %d span does not match text", i)
		}
		if i > 0 {
			prev := chunks[i-1]
			if c.Span.Start >= prev.Span.End {
				t.Errorf("chunk %d does not overlap chunk %d", i, i-1)
			}
			if c.Span.Start <= prev.Span.Start {
				t.Errorf("chunk %d does not advance", i)
			}
		}
		if c.Metadata["section"] != "network" || c.Metadata["doc_type"] != "overview" {
			t.Errorf("chunk %d metadata = %v", i, c.Metadata)
		}
	}
	if last := chunks[len(chunks)-1]; last.Span.End != len(runes) {
		t.Errorf("last span ends at %d, want %d", last.Span.End, len(runes))
	}
}

func TestChunker_BreaksOnWhitespace(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("abcd ", 30)
	chunks := NewChunker(52, 0).Split(Document{Origin: "x.md", Content: content})
	for i, c := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(c.Text, " ") {
			t.Errorf("chunk %d = %q, want a whitespace boundary", i, c.Text)
		}
	}
}

func TestChunker_MultibyteText(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("é", 25)
	chunks := NewChunker(10, 2).Split(Document{Origin: "fr.md", Content: content})
	for _, c := range chunks {
		if !utf8.ValidString(c.Text) {
			t.Fatalf("chunk %q is not valid UTF-8", c.Text)
		}
	}
	if got := chunks[len(chunks)-1].Span.End; got != 25 {
		t.Errorf("last span end = %d, want 25", got)
	}
}

func TestChunker_DocumentMetadataWins(t *testing.T) {
	t.Parallel()

	doc := Document{
		Origin:   "docs/ftso/overview.mdx",
		Content:  "short",
		Metadata: map[string]string{"section": "custom", "title": "T"},
	}
	chunks := NewChunker(0, 0).Split(doc)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	md := chunks[0].Metadata
	if md["section"] != "custom" || md["title"] != "T" || md["doc_type"] != "overview" || md["chunk_index"] != "0" {
		t.Errorf("metadata = %v", md)
	}
	if doc.Metadata["chunk_index"] != "" {
		t.Error("Split mutated the document metadata")
	}
}

func TestChunker_EmptyDocument(t *testing.T) {
	t.Parallel()

	if got := NewChunker(100, 10).Split(Document{Origin: "a.md"}); got != nil {
		t.Errorf("Split(empty) = %v, want nil", got)
	}
}

func TestChunkID(t *testing.T) {
	t.Parallel()

	a := ChunkID("docs/ftso/overview.mdx", 0)
	if a != ChunkID("docs/ftso/overview.mdx", 0) {
		t.Error("ChunkID is not deterministic")
	}
	if a == ChunkID("docs/ftso/overview.mdx", 1) || a == ChunkID("docs/fdc/overview.mdx", 0) {
		t.Error("ChunkID collides across positions or origins")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("ChunkID %q is not a UUID: %v", a, err)
	}
}

func TestNewChunker_Clamps(t *testing.T) {
	t.Parallel()

	c := NewChunker(-1, 5000)
	if c.size != DefaultChunkSize || c.overlap != DefaultChunkSize/10 {
		t.Errorf("NewChunker(-1, 5000) = %+v", c)
	}
}

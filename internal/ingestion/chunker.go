package ingestion

import (
	"strconv"
	"unicode"

	"github.com/google/uuid"

	"github.com/54b3r/flarerag-go/internal/rag"
)

// Default chunking parameters, in characters (runes).
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// chunkNamespace seeds deterministic chunk IDs. Qdrant only accepts UUIDs or
// unsigned integers as point IDs, so IDs are name-based UUIDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://dev.flare.network/flarerag/chunks"))

// Chunker splits documents into overlapping passages.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker returns a Chunker. A non-positive size falls back to
// DefaultChunkSize; an overlap that is negative or not smaller than size is
// clamped to size/10.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split chunks doc. Spans are rune offsets into doc.Content. Window ends are
// moved back to the nearest whitespace in the last fifth of the window so
// words are not cut in half. Every chunk carries the document metadata
// plus the inferred section and doc type when the document does not set
// them.
func (c *Chunker) Split(doc Document) []rag.Chunk {
	runes := []rune(doc.Content)
	n := len(runes)
	if n == 0 {
		return nil
	}

	inferred := InferMetadata(doc.Origin)

	var chunks []rag.Chunk
	for start, pos := 0, 0; start < n; pos++ {
		end := min(start+c.size, n)
		if end < n {
			end = c.breakAt(runes, start, end)
		}

		md := make(map[string]string, len(doc.Metadata)+3)
		for k, v := range doc.Metadata {
			md[k] = v
		}
		if md["section"] == "" {
			md["section"] = inferred.Section
		}
		if md["doc_type"] == "" {
			md["doc_type"] = inferred.DocType
		}
		md["chunk_index"] = strconv.Itoa(pos)

		chunks = append(chunks, rag.Chunk{
			ID:       ChunkID(doc.Origin, pos),
			Text:     string(runes[start:end]),
			Origin:   doc.Origin,
			Position: pos,
			Span:     rag.Span{Start: start, End: end},
			Metadata: md,
		})

		if end == n {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// breakAt returns the index just after the last whitespace rune in the
// final fifth of runes[start:end], or end when there is none.
func (c *Chunker) breakAt(runes []rune, start, end int) int {
	floor := end - c.size/5
	if floor <= start {
		return end
	}
	for i := end - 1; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

// ChunkID returns the deterministic point ID for the chunk at position
// within origin. Re-ingesting the same document yields the same IDs, so
// upserts replace rather than duplicate.
func ChunkID(origin string, position int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(origin+"#"+strconv.Itoa(position))).String()
}

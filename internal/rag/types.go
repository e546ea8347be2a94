package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Intent is the router's classification of a query. The set is closed:
// only the constants below are valid.
type Intent string

const (
	// IntentAnswerable means the query can be answered from the corpus.
	IntentAnswerable Intent = "ANSWERABLE"
	// IntentClarificationNeeded means the query is too ambiguous to answer.
	IntentClarificationNeeded Intent = "CLARIFICATION_NEEDED"
	// IntentOutOfScope means the query falls outside the corpus domain.
	IntentOutOfScope Intent = "OUT_OF_SCOPE"
	// IntentConversational means small talk that needs no retrieval.
	IntentConversational Intent = "CONVERSATIONAL"
)

// Intents lists every valid intent in a stable order.
var Intents = []Intent{
	IntentAnswerable,
	IntentClarificationNeeded,
	IntentOutOfScope,
	IntentConversational,
}

// Valid reports whether i belongs to the closed intent set.
func (i Intent) Valid() bool {
	switch i {
	case IntentAnswerable, IntentClarificationNeeded, IntentOutOfScope, IntentConversational:
		return true
	}
	return false
}

// Provenance records which pipeline branch produced a response.
type Provenance string

const (
	// ProvenanceRAG is a grounded answer built from retrieved context.
	ProvenanceRAG Provenance = "RAG"
	// ProvenanceNoMatch is an answerable query for which nothing cleared the
	// score threshold.
	ProvenanceNoMatch Provenance = "RAG_NO_MATCH"
	// ProvenanceDegraded means retrieval failed and the answer was produced
	// without context.
	ProvenanceDegraded Provenance = "RAG_DEGRADED"
	// ProvenanceDirect is a non-retrieval intent answered straight away.
	ProvenanceDirect Provenance = "DIRECT"
	// ProvenanceError means generation failed and the fixed failure answer
	// was returned.
	ProvenanceError Provenance = "ERROR"
)

// Limits applied by Request.Validate.
const (
	// MaxQueryLength is the longest accepted query, in runes.
	MaxQueryLength = 4000
	// MaxHistoryTurns is the longest accepted conversation history.
	MaxHistoryTurns = 50
)

// Turn is one prior exchange in a conversation.
type Turn struct {
	// Query is what the user asked.
	Query string `json:"query"`
	// Answer is what the system replied.
	Answer string `json:"answer"`
}

// Request is the pipeline entry-point input.
type Request struct {
	// Query is the raw user text.
	Query string `json:"query"`
	// History holds prior turns, oldest first.
	History []Turn `json:"history,omitempty"`
}

// Validate rejects malformed requests before any external call is made.
func (r Request) Validate() error {
	q := strings.TrimSpace(r.Query)
	if q == "" {
		return &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(q); n > MaxQueryLength {
		return &ValidationError{Field: "query", Reason: fmt.Sprintf("length %d exceeds %d", n, MaxQueryLength)}
	}
	if len(r.History) > MaxHistoryTurns {
		return &ValidationError{Field: "history", Reason: fmt.Sprintf("%d turns exceeds %d", len(r.History), MaxHistoryTurns)}
	}
	for i, t := range r.History {
		if strings.TrimSpace(t.Query) == "" || strings.TrimSpace(t.Answer) == "" {
			return &ValidationError{Field: fmt.Sprintf("history[%d]", i), Reason: "query and answer must both be set"}
		}
	}
	return nil
}

// Classification is the router's verdict on a query.
type Classification struct {
	// Intent is always a member of the closed intent set.
	Intent Intent
	// Confidence is the provider-reported confidence in [0,1]; 0 when the
	// intent came from the fallback mapping.
	Confidence float64
	// Rationale is a short human-readable reason.
	Rationale string
}

// Query is a user query moving through the pipeline. It is a value type:
// stages derive new values rather than mutating the one they were given.
type Query struct {
	// Text is the trimmed user text.
	Text string
	// History holds prior turns, oldest first.
	History []Turn
	// Intent is empty until the router has run.
	Intent Intent
	// Confidence mirrors Classification.Confidence.
	Confidence float64
	// Rationale mirrors Classification.Rationale.
	Rationale string
}

// NewQuery builds an unclassified Query from a validated request.
func NewQuery(r Request) Query {
	return Query{Text: strings.TrimSpace(r.Query), History: r.History}
}

// WithClassification returns a copy of q carrying c.
func (q Query) WithClassification(c Classification) Query {
	q.Intent = c.Intent
	q.Confidence = c.Confidence
	q.Rationale = c.Rationale
	return q
}

// Span is a half-open character range [Start, End) within an origin document.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether s and o share at least one character.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Chunk is an indexed passage of the knowledge corpus.
type Chunk struct {
	// ID is the stable unique identifier of the chunk in the index.
	ID string
	// Text is the passage content.
	Text string
	// Origin names the source document.
	Origin string
	// Position is the chunk's ordinal within its origin.
	Position int
	// Span locates the chunk within its origin.
	Span Span
	// Metadata holds free-form attributes carried from ingestion.
	Metadata map[string]string
}

// ScoredChunk is a chunk paired with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk
	// Score is the similarity score; higher is more similar.
	Score float32
}

// RetrievalResult holds ranked hits: at most K, non-increasing by score,
// all at or above the threshold, no duplicate chunk IDs.
type RetrievalResult struct {
	Hits []ScoredChunk
}

// Empty reports whether the result holds no hits.
func (r RetrievalResult) Empty() bool { return len(r.Hits) == 0 }

// ContextEntry is one chunk placed into an assembled Context.
type ContextEntry struct {
	// Marker is the citation marker, e.g. "[1]".
	Marker string
	Chunk  Chunk
	Score  float32
	// Truncated is set when the chunk text was cut to fit the budget.
	Truncated bool
}

// Context is the text block handed to the responder.
type Context struct {
	// Text is the serialised block, including citation markers.
	Text string
	// Entries lists the placed chunks in marker order.
	Entries []ContextEntry
	// Size is the measured size of Text in the assembler's unit.
	Size int
}

// Marker returns the entry for marker m, if present.
func (c *Context) Marker(m string) (ContextEntry, bool) {
	if c == nil {
		return ContextEntry{}, false
	}
	for _, e := range c.Entries {
		if e.Marker == m {
			return e, true
		}
	}
	return ContextEntry{}, false
}

// Source maps a cited marker to the document it came from.
type Source struct {
	Marker  string `json:"marker"`
	ChunkID string `json:"chunkId"`
	Origin  string `json:"origin"`
}

// Response is the structured pipeline output.
type Response struct {
	// Answer is never empty.
	Answer string `json:"answer"`
	// Citations are markers referenced in Answer that exist in the Context,
	// in order of first appearance.
	Citations []string `json:"citations"`
	// Sources resolves each citation to its origin document.
	Sources []Source `json:"sources"`
	// Intent is the intent the router assigned.
	Intent Intent `json:"intent"`
	// Provenance records the branch taken.
	Provenance Provenance `json:"provenance"`
}

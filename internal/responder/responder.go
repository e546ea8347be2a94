// Package responder renders the intent-specific prompt, calls the language
// model, and turns its reply into a structured response whose citations are
// limited to markers present in the assembled context.
package responder

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/flarerag-go/internal/budget"
	"github.com/54b3r/flarerag-go/internal/logging"
	"github.com/54b3r/flarerag-go/internal/prompts"
	"github.com/54b3r/flarerag-go/internal/rag"
	"github.com/54b3r/flarerag-go/internal/retry"
)

// DefaultHistoryTokens bounds the rendered prompt, history included, when
// trimming prior turns.
const DefaultHistoryTokens = budget.DefaultMaxContextTokens

var (
	markerPattern = regexp.MustCompile(`\[\d+\]`)
	// codeSpan matches fenced blocks and inline code, where brackets are
	// indexing rather than citations.
	codeSpan = regexp.MustCompile("(?s)```.*?```|`[^`\n]*`")
)

// Responder is safe for concurrent use.
type Responder struct {
	llm       rag.LLM
	templates map[string]prompt.ChatTemplate
	failure   string
	tpls      prompts.Templates
	policy    retry.Policy
	maxTokens int
}

// New compiles every intent template once. maxTokens caps the estimated
// prompt size; older history turns are dropped to honour it. Zero selects
// DefaultHistoryTokens.
func New(llm rag.LLM, tpls prompts.Templates, policy retry.Policy, maxTokens int) (*Responder, error) {
	if llm == nil {
		return nil, fmt.Errorf("responder: llm must not be nil")
	}
	if strings.TrimSpace(tpls.FailureAnswer) == "" {
		return nil, fmt.Errorf("responder: failure answer must not be empty")
	}
	if maxTokens <= 0 {
		maxTokens = DefaultHistoryTokens
	}

	compiled := make(map[string]prompt.ChatTemplate)
	for _, user := range []string{tpls.Answerable, tpls.NoContext, tpls.Clarification, tpls.OutOfScope, tpls.Conversational} {
		if _, ok := compiled[user]; !ok {
			compiled[user] = prompts.Build(tpls.System, user)
		}
	}
	return &Responder{
		llm:       llm,
		templates: compiled,
		failure:   tpls.FailureAnswer,
		tpls:      tpls,
		policy:    policy,
		maxTokens: maxTokens,
	}, nil
}

// Respond produces the response for q. c is nil for intents that skip
// retrieval. Provenance is RAG when c holds entries, RAG_NO_MATCH for an
// answerable query without context, DIRECT otherwise, and ERROR when the
// model could not produce an answer. Respond never returns an error.
func (r *Responder) Respond(ctx context.Context, q rag.Query, c *rag.Context) rag.Response {
	log := logging.FromContext(ctx)
	hasContext := c != nil && len(c.Entries) > 0

	msgs, err := r.render(ctx, q, c, hasContext)
	if err == nil {
		var answer string
		var attempts int
		answer, attempts, err = retry.Do(ctx, r.policy, "generate", func(ctx context.Context) (string, error) {
			text, err := r.llm.Generate(ctx, msgs, rag.GenerateOptions{})
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(text) == "" {
				return "", fmt.Errorf("empty generation")
			}
			return text, nil
		})
		if err == nil {
			resp := Finalize(answer, c)
			resp.Intent = q.Intent
			resp.Provenance = provenance(q.Intent, hasContext)
			return resp
		}
		err = &rag.GenerationError{Attempts: attempts, Err: err}
	}

	log.Error("responder: generation failed, returning failure answer",
		slog.String("intent", string(q.Intent)),
		slog.Any("error", err),
	)
	return rag.Response{
		Answer:     r.failure,
		Citations:  []string{},
		Sources:    []rag.Source{},
		Intent:     q.Intent,
		Provenance: rag.ProvenanceError,
	}
}

// render builds the prompt messages, trimming the oldest history so the
// estimated prompt fits maxTokens.
func (r *Responder) render(ctx context.Context, q rag.Query, c *rag.Context, hasContext bool) ([]*schema.Message, error) {
	tpl := r.templates[r.tpls.ForIntent(q.Intent, hasContext)]
	ctxText := ""
	if hasContext {
		ctxText = c.Text
	}
	vars := map[string]any{
		prompts.VarQuery:   q.Text,
		prompts.VarContext: ctxText,
		prompts.VarTurns:   "",
	}

	fixed, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}
	if len(q.History) == 0 {
		return fixed, nil
	}

	history := budget.TrimHistory(fixed, prompts.HistoryMessages(q.History), r.maxTokens)
	if dropped := 2*len(q.History) - len(history); dropped > 0 {
		logging.FromContext(ctx).Debug("responder: trimmed history",
			slog.Int("dropped_messages", dropped),
			slog.Int("max_tokens", r.maxTokens),
		)
	}
	vars[prompts.VarHistory] = history
	return tpl.Format(ctx, vars)
}

// Finalize post-processes a model answer against the context it was given.
// Citations are the markers that appear in answer and exist in c, in order of
// first appearance and without repeats. Brackets inside code spans or
// directly after an identifier (feeds[1]) are not citations. The answer text
// itself is returned unchanged apart from surrounding whitespace.
func Finalize(answer string, c *rag.Context) rag.Response {
	resp := rag.Response{
		Answer:    strings.TrimSpace(answer),
		Citations: []string{},
		Sources:   []rag.Source{},
	}

	seen := make(map[string]bool)
	for _, m := range citedMarkers(answer) {
		if seen[m] {
			continue
		}
		seen[m] = true
		e, ok := c.Marker(m)
		if !ok {
			continue
		}
		resp.Citations = append(resp.Citations, m)
		resp.Sources = append(resp.Sources, rag.Source{Marker: m, ChunkID: e.Chunk.ID, Origin: e.Chunk.Origin})
	}
	return resp
}

// citedMarkers returns the [n] markers in text that stand on their own,
// in order of appearance.
func citedMarkers(text string) []string {
	masked := codeSpan.ReplaceAllStringFunc(text, func(s string) string {
		return strings.Repeat(" ", len(s))
	})
	var out []string
	for _, loc := range markerPattern.FindAllStringIndex(masked, -1) {
		if loc[0] > 0 && isIdentByte(masked[loc[0]-1]) {
			continue
		}
		out = append(out, masked[loc[0]:loc[1]])
	}
	return out
}

func isIdentByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func provenance(intent rag.Intent, hasContext bool) rag.Provenance {
	switch {
	case intent != rag.IntentAnswerable:
		return rag.ProvenanceDirect
	case hasContext:
		return rag.ProvenanceRAG
	default:
		return rag.ProvenanceNoMatch
	}
}

// Package router classifies a user query into one intent from a closed set.
// Classification never fails from the caller's point of view: provider
// errors and unrecognised labels are mapped to a deterministic default.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/prompt"

	"github.com/54b3r/flarerag-go/internal/logging"
	"github.com/54b3r/flarerag-go/internal/prompts"
	"github.com/54b3r/flarerag-go/internal/rag"
	"github.com/54b3r/flarerag-go/internal/retry"
)

// maxTurnsInPrompt bounds how much history the router sees.
const maxTurnsInPrompt = 3

// aliases maps alternative labels onto the closed intent set.
var aliases = map[string]rag.Intent{
	"ANSWER":        rag.IntentAnswerable,
	"CLARIFY":       rag.IntentClarificationNeeded,
	"CLARIFICATION": rag.IntentClarificationNeeded,
	"REJECT":        rag.IntentOutOfScope,
	"OFF_TOPIC":     rag.IntentOutOfScope,
	"CONVERSATION":  rag.IntentConversational,
	"CHAT":          rag.IntentConversational,
	"GREETING":      rag.IntentConversational,
}

// interrogatives open a plausible knowledge question.
var interrogatives = []string{
	"what", "how", "why", "when", "where", "which", "who", "whom", "whose",
	"is", "are", "can", "could", "does", "do", "did", "should", "will",
	"explain", "describe", "list", "define", "compare",
}

var jsonFence = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*(.*?)\s*` + "```")

// Router classifies queries with an LLM.
type Router struct {
	// llm performs the classification call.
	llm rag.LLM

	// tpl renders the router prompt.
	tpl prompt.ChatTemplate

	// policy bounds the classification call.
	policy retry.Policy
}

// New constructs a Router. tpls supplies the router system and user templates.
func New(llm rag.LLM, tpls prompts.Templates, policy retry.Policy) (*Router, error) {
	if llm == nil {
		return nil, fmt.Errorf("router: llm must not be nil")
	}
	return &Router{
		llm:    llm,
		tpl:    prompts.Build(tpls.RouterSystem, tpls.Router),
		policy: policy,
	}, nil
}

// Classify returns the query's intent. It never returns an error: failures
// are logged and resolved with DefaultIntent.
func (r *Router) Classify(ctx context.Context, q rag.Query) rag.Classification {
	log := logging.FromContext(ctx)

	c, err := r.classify(ctx, q)
	if err == nil {
		log.Debug("router: classified",
			slog.String("intent", string(c.Intent)),
			slog.Float64("confidence", c.Confidence),
		)
		return c
	}

	fallback := DefaultIntent(q.Text)
	log.Warn("router: classification failed, using default intent",
		slog.String("intent", string(fallback)),
		slog.Any("error", err),
	)
	return rag.Classification{
		Intent:     fallback,
		Confidence: 0,
		Rationale:  "fallback: " + err.Error(),
	}
}

func (r *Router) classify(ctx context.Context, q rag.Query) (rag.Classification, error) {
	msgs, err := r.tpl.Format(ctx, map[string]any{
		prompts.VarQuery: q.Text,
		prompts.VarTurns: turnsText(q.History),
	})
	if err != nil {
		return rag.Classification{}, &rag.ClassificationError{Err: fmt.Errorf("render prompt: %w", err)}
	}

	raw, _, err := retry.Do(ctx, r.policy, "classify", func(ctx context.Context) (string, error) {
		return r.llm.Classify(ctx, msgs, rag.GenerateOptions{})
	})
	if err != nil {
		return rag.Classification{}, &rag.ClassificationError{Err: err}
	}
	return Parse(raw)
}

// Parse interprets a classification payload: a JSON object with a
// "classification" key, optionally inside a ```json fence, or a bare label.
func Parse(raw string) (rag.Classification, error) {
	body := strings.TrimSpace(raw)
	if m := jsonFence.FindStringSubmatch(body); m != nil {
		body = m[1]
	}

	var payload struct {
		Classification string  `json:"classification"`
		Intent         string  `json:"intent"`
		Confidence     float64 `json:"confidence"`
		Rationale      string  `json:"rationale"`
	}
	label := body
	c := rag.Classification{Confidence: 1}
	if strings.HasPrefix(body, "{") {
		if err := json.Unmarshal([]byte(body), &payload); err != nil {
			return rag.Classification{}, &rag.ClassificationError{Label: raw, Err: fmt.Errorf("decode payload: %w", err)}
		}
		label = payload.Classification
		if label == "" {
			label = payload.Intent
		}
		if payload.Confidence > 0 && payload.Confidence <= 1 {
			c.Confidence = payload.Confidence
		}
		c.Rationale = payload.Rationale
	}

	intent, ok := Normalize(label)
	if !ok {
		return rag.Classification{}, &rag.ClassificationError{Label: label}
	}
	c.Intent = intent
	return c, nil
}

// Normalize maps a label onto the closed intent set. Case, surrounding
// quotes and punctuation, and space/hyphen separators are ignored.
func Normalize(label string) (rag.Intent, bool) {
	s := strings.ToUpper(strings.Trim(strings.TrimSpace(label), "\"'`.:"))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	if i := rag.Intent(s); i.Valid() {
		return i, true
	}
	if i, ok := aliases[s]; ok {
		return i, true
	}
	return "", false
}

// DefaultIntent is the deterministic intent used when classification fails:
// ANSWERABLE when the text plausibly asks for knowledge, OUT_OF_SCOPE
// otherwise.
func DefaultIntent(text string) rag.Intent {
	t := strings.TrimSpace(strings.ToLower(text))
	if strings.Contains(t, "?") {
		return rag.IntentAnswerable
	}
	words := strings.Fields(t)
	if len(words) >= 4 {
		return rag.IntentAnswerable
	}
	if len(words) > 0 {
		first := strings.Trim(words[0], ",.!:;")
		for _, w := range interrogatives {
			if first == w {
				return rag.IntentAnswerable
			}
		}
	}
	return rag.IntentOutOfScope
}

// turnsText renders the last few turns as plain text for the router prompt.
func turnsText(turns []rag.Turn) string {
	if len(turns) > maxTurnsInPrompt {
		turns = turns[len(turns)-maxTurnsInPrompt:]
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.Query, t.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}

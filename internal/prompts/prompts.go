// Package prompts holds the prompt templates used by the router and the
// responder, one per intent, and renders them into eino chat messages.
//
// Templates use Go text/template syntax. The variables available are:
//
//	.query    the user query text
//	.context  the assembled context block (grounded template only)
//	.history  prior turns as chat messages (injected, not referenced)
//	.turns    prior turns as plain text (router only)
package prompts

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"gopkg.in/yaml.v3"

	"github.com/54b3r/flarerag-go/internal/rag"
)

// Template variable names.
const (
	VarQuery   = "query"
	VarContext = "context"
	VarHistory = "history"
	VarTurns   = "turns"
)

// Templates is the full prompt set. Empty fields in a YAML override keep the
// default.
type Templates struct {
	// System is the responder's system instruction.
	System string `yaml:"system"`
	// RouterSystem is the router's system instruction.
	RouterSystem string `yaml:"router_system"`
	// Router is the router's user message.
	Router string `yaml:"router"`
	// Answerable is used for answerable queries with a non-empty context.
	Answerable string `yaml:"answerable"`
	// NoContext is used for answerable queries when nothing was retrieved.
	NoContext string `yaml:"no_context"`
	// Clarification is used for CLARIFICATION_NEEDED.
	Clarification string `yaml:"clarification_needed"`
	// OutOfScope is used for OUT_OF_SCOPE.
	OutOfScope string `yaml:"out_of_scope"`
	// Conversational is used for CONVERSATIONAL.
	Conversational string `yaml:"conversational"`
	// FailureAnswer is returned verbatim when generation fails.
	FailureAnswer string `yaml:"failure_answer"`
}

// Defaults returns the built-in prompt set.
func Defaults() Templates {
	return Templates{
		System:         defaultSystem,
		RouterSystem:   defaultRouterSystem,
		Router:         defaultRouter,
		Answerable:     defaultAnswerable,
		NoContext:      defaultNoContext,
		Clarification:  defaultClarification,
		OutOfScope:     defaultOutOfScope,
		Conversational: defaultConversational,
		FailureAnswer:  defaultFailureAnswer,
	}
}

// Load overlays the YAML file at path onto the defaults and checks that the
// result renders. An empty path returns the defaults.
func Load(path string) (Templates, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("prompts: failed to read %s: %w", path, err)
	}
	var override Templates
	if err := yaml.Unmarshal(data, &override); err != nil {
		return t, fmt.Errorf("prompts: failed to parse %s: %w", path, err)
	}
	t = t.merge(override)

	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("prompts: %s: %w", path, err)
	}
	return t, nil
}

func (t Templates) merge(o Templates) Templates {
	pick := func(base, over string) string {
		if over != "" {
			return over
		}
		return base
	}
	return Templates{
		System:         pick(t.System, o.System),
		RouterSystem:   pick(t.RouterSystem, o.RouterSystem),
		Router:         pick(t.Router, o.Router),
		Answerable:     pick(t.Answerable, o.Answerable),
		NoContext:      pick(t.NoContext, o.NoContext),
		Clarification:  pick(t.Clarification, o.Clarification),
		OutOfScope:     pick(t.OutOfScope, o.OutOfScope),
		Conversational: pick(t.Conversational, o.Conversational),
		FailureAnswer:  pick(t.FailureAnswer, o.FailureAnswer),
	}
}

// ForIntent returns the user template for intent. hasContext selects between
// the grounded and the no-context template for answerable queries.
func (t Templates) ForIntent(intent rag.Intent, hasContext bool) string {
	switch intent {
	case rag.IntentAnswerable:
		if hasContext {
			return t.Answerable
		}
		return t.NoContext
	case rag.IntentClarificationNeeded:
		return t.Clarification
	case rag.IntentOutOfScope:
		return t.OutOfScope
	case rag.IntentConversational:
		return t.Conversational
	}
	return t.NoContext
}

// Validate renders every template once with sample values so a malformed
// override fails at startup rather than on the first request.
func (t Templates) Validate() error {
	if t.FailureAnswer == "" {
		return fmt.Errorf("failure_answer must not be empty")
	}
	sample := map[string]any{VarQuery: "q", VarContext: "[1] c", VarTurns: ""}
	checks := []struct {
		name, system, user string
	}{
		{"router", t.RouterSystem, t.Router},
		{"answerable", t.System, t.Answerable},
		{"no_context", t.System, t.NoContext},
		{"clarification_needed", t.System, t.Clarification},
		{"out_of_scope", t.System, t.OutOfScope},
		{"conversational", t.System, t.Conversational},
	}
	for _, c := range checks {
		if c.user == "" {
			return fmt.Errorf("template %s must not be empty", c.name)
		}
		if _, err := Build(c.system, c.user).Format(context.Background(), sample); err != nil {
			return fmt.Errorf("template %s: %w", c.name, err)
		}
	}
	return nil
}

// Build compiles a system/user template pair into an eino chat template. An
// optional history placeholder sits between the two messages.
func Build(system, user string) prompt.ChatTemplate {
	msgs := make([]schema.MessagesTemplate, 0, 3)
	if system != "" {
		msgs = append(msgs, schema.SystemMessage(system))
	}
	msgs = append(msgs,
		schema.MessagesPlaceholder(VarHistory, true),
		schema.UserMessage(user),
	)
	return prompt.FromMessages(schema.GoTemplate, msgs...)
}

// HistoryMessages converts prior turns into alternating user and assistant
// messages, oldest first.
func HistoryMessages(turns []rag.Turn) []*schema.Message {
	out := make([]*schema.Message, 0, 2*len(turns))
	for _, t := range turns {
		out = append(out, schema.UserMessage(t.Query), schema.AssistantMessage(t.Answer, nil))
	}
	return out
}

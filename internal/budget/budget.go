// Package budget estimates prompt sizes and trims conversation history to fit.
// Provider backends use different tokenizers, so sizes are approximated with
// a character heuristic: 1 token ≈ 4 characters. The estimate errs low on
// purpose, leaving headroom for model-specific overhead.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead approximates the per-message framing most chat APIs add.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default prompt budget in tokens. It fits
	// 8k-context models with room left for the reply.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s. Any non-empty string counts as
// at least one token.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s)
	t := n / charsPerToken
	if t == 0 && n > 0 {
		return 1
	}
	return t
}

// EstimateMessages sums the estimated tokens of msgs, role and framing
// included.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimHistory drops the oldest history messages until fixed + history fits
// within maxTokens. fixed holds the messages that are always sent (system
// prompt, context block, current question). An assistant reply is never left
// at the head of the trimmed history without the question it answered.
//
// If fixed alone exceeds the budget the returned history is empty; callers
// decide whether to warn about that.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)
	for len(history) > 0 && fixedTokens+EstimateMessages(history) > maxTokens {
		history = history[1:]
		for len(history) > 0 && history[0].Role == schema.Assistant {
			history = history[1:]
		}
	}
	return history
}

package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestEstimate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"FLR", 1},
		{"FTSO", 1},
		{"FAssets", 1},
		{"Songbird", 2},
		{"éééééééé", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := Estimate(tc.in); got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestEstimateMessages(t *testing.T) {
	t.Parallel()

	msgs := []*schema.Message{
		schema.SystemMessage("Flare"),                 // 4 + 1 + 1
		schema.AssistantMessage("Use the FTSO.", nil), // 4 + 2 + 3
	}
	if got := EstimateMessages(msgs); got != 15 {
		t.Errorf("EstimateMessages() = %d, want 15", got)
	}
	if got := EstimateMessages(nil); got != 0 {
		t.Errorf("EstimateMessages(nil) = %d, want 0", got)
	}
}

func TestTrimHistory(t *testing.T) {
	t.Parallel()

	system := []*schema.Message{schema.SystemMessage("You answer questions about Flare.")}
	olderTurn := []*schema.Message{
		schema.UserMessage(strings.Repeat("q", 40)),
		schema.AssistantMessage(strings.Repeat("a", 40), nil),
	}
	latestTurn := []*schema.Message{
		schema.UserMessage("How often do feeds update?"),
		schema.AssistantMessage("Every block, about 1.8 seconds.", nil),
	}

	tests := []struct {
		name      string
		fixed     []*schema.Message
		history   []*schema.Message
		maxTokens int
		wantFirst string
		wantLen   int
	}{
		{
			name:      "fits untouched",
			fixed:     system,
			history:   append(append([]*schema.Message{}, olderTurn...), latestTurn...),
			maxTokens: DefaultMaxContextTokens,
			wantFirst: strings.Repeat("q", 40),
			wantLen:   4,
		},
		{
			name:      "no history",
			fixed:     system,
			maxTokens: DefaultMaxContextTokens,
		},
		{
			// The older turn costs 31 tokens, the latest 24.
			name:      "drops the oldest whole turn",
			history:   append(append([]*schema.Message{}, olderTurn...), latestTurn...),
			maxTokens: 30,
			wantFirst: "How often do feeds update?",
			wantLen:   2,
		},
		{
			name:      "keeps the newest question",
			history:   []*schema.Message{schema.UserMessage("a"), schema.UserMessage("b")},
			maxTokens: 7,
			wantFirst: "b",
			wantLen:   1,
		},
		{
			name:      "fixed prompt alone is over budget",
			fixed:     []*schema.Message{schema.SystemMessage(strings.Repeat("x", 4*7000))},
			history:   latestTurn,
			maxTokens: DefaultMaxContextTokens,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := TrimHistory(tc.fixed, tc.history, tc.maxTokens)
			if len(got) != tc.wantLen {
				t.Fatalf("TrimHistory() kept %d messages, want %d", len(got), tc.wantLen)
			}
			if tc.wantLen == 0 {
				return
			}
			if got[0].Role != schema.User || got[0].Content != tc.wantFirst {
				t.Errorf("history starts with %s %q, want user %q", got[0].Role, got[0].Content, tc.wantFirst)
			}
		})
	}
}

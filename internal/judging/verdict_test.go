package judging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-simjudge/internal/domain"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Verdict
	}{
		{
			name: "plain json",
			raw:  `{"similarity_score": 85, "reasoning": "close"}`,
			want: Verdict{Score: 85, Reasoning: "close", Source: domain.VerdictParsed},
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"similarity_score\": 72, \"reasoning\": \"mostly\"}\n```",
			want: Verdict{Score: 72, Reasoning: "mostly", Source: domain.VerdictParsed},
		},
		{
			name: "bare fence",
			raw:  "```\n{\"similarity_score\": 10, \"reasoning\": \"no\"}\n```",
			want: Verdict{Score: 10, Reasoning: "no", Source: domain.VerdictParsed},
		},
		{
			name: "numeric string score",
			raw:  `{"similarity_score": "64", "reasoning": "ok"}`,
			want: Verdict{Score: 64, Reasoning: "ok", Source: domain.VerdictParsed},
		},
		{
			name: "fractional score truncates",
			raw:  `{"similarity_score": 88.9, "reasoning": "ok"}`,
			want: Verdict{Score: 88, Reasoning: "ok", Source: domain.VerdictParsed},
		},
		{
			name: "missing score reads as zero",
			raw:  `{"reasoning": "forgot"}`,
			want: Verdict{Score: 0, Reasoning: "forgot", Source: domain.VerdictParsed},
		},
		{
			name: "missing reasoning",
			raw:  `{"similarity_score": 90}`,
			want: Verdict{Score: 90, Reasoning: DefaultReasoning, Source: domain.VerdictParsed},
		},
		{
			name: "parsed score above range clamps",
			raw:  `{"similarity_score": 150, "reasoning": "generous"}`,
			want: Verdict{Score: 100, Reasoning: "generous", Source: domain.VerdictParsed},
		},
		{
			name: "parsed negative score clamps",
			raw:  `{"similarity_score": -5, "reasoning": "harsh"}`,
			want: Verdict{Score: 0, Reasoning: "harsh", Source: domain.VerdictParsed},
		},
		{
			name: "prose with number",
			raw:  "I would rate this 75 out of 100.",
			want: Verdict{
				Score:     75,
				Reasoning: "Fallback parsing: I would rate this 75 out of 100....",
				Source:    domain.VerdictFallbackExtracted,
			},
		},
		{
			name: "prose without number",
			raw:  "They are quite similar.",
			want: Verdict{
				Score:     0,
				Reasoning: "Fallback parsing: They are quite similar....",
				Source:    domain.VerdictFallbackExtracted,
			},
		},
		{
			name: "four digit numbers do not match",
			raw:  "Score: 1000",
			want: Verdict{
				Score:     0,
				Reasoning: "Fallback parsing: Score: 1000...",
				Source:    domain.VerdictFallbackExtracted,
			},
		},
		{
			name: "fallback extracted score clamps",
			raw:  "Score 999",
			want: Verdict{
				Score:     100,
				Reasoning: "Fallback parsing: Score 999...",
				Source:    domain.VerdictFallbackExtracted,
			},
		},
		{
			name: "non numeric score falls back",
			raw:  `{"similarity_score": "high", "reasoning": "82 percent"}`,
			want: Verdict{
				Score:     82,
				Reasoning: `Fallback parsing: {"similarity_score": "high", "reasoning": "82 percent"}...`,
				Source:    domain.VerdictFallbackExtracted,
			},
		},
		{
			name: "truncated json falls back",
			raw:  `{"similarity_score": 55, "reason`,
			want: Verdict{
				Score:     55,
				Reasoning: `Fallback parsing: {"similarity_score": 55, "reason...`,
				Source:    domain.VerdictFallbackExtracted,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVerdict(tt.raw))
		})
	}
}

func TestParseVerdict_FallbackPreviewIsRuneSafe(t *testing.T) {
	raw := strings.Repeat("é", 150)
	v := ParseVerdict(raw)
	assert.Equal(t, "Fallback parsing: "+strings.Repeat("é", 100)+"...", v.Reasoning)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("Can Batman fly?", " No. ", "He cannot.\n")
	assert.Contains(t, p, "Original Question: Can Batman fly?\n")
	assert.Contains(t, p, "Expected Response: No.\n")
	assert.Contains(t, p, "Actual Response: He cannot.\n")
	assert.Contains(t, p, `"similarity_score": <number 0-100>`)
}

package judging

import (
	"testing"

	"github.com/ahrav/go-simjudge/internal/domain"
)

func FuzzParseVerdict(f *testing.F) {
	seeds := []string{
		`{"similarity_score": 85, "reasoning": "close"}`,
		"```json\n{\"similarity_score\": 1e308}\n```",
		`{"similarity_score": "-12"}`,
		`{"similarity_score": null}`,
		"score 42",
		"",
		"```",
		`[85]`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		v := ParseVerdict(raw)
		if v.Score < 0 || v.Score > 100 {
			t.Fatalf("score %d out of range for %q", v.Score, raw)
		}
		switch v.Source {
		case domain.VerdictParsed, domain.VerdictFallbackExtracted:
		default:
			t.Fatalf("unexpected source %q", v.Source)
		}
	})
}

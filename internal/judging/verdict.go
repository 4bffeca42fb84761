package judging

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ahrav/go-simjudge/internal/domain"
)

// DefaultReasoning fills a parsed verdict that gave no reasoning.
const DefaultReasoning = "No reasoning provided"

const fallbackPreviewRunes = 100

var (
	fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*(.*?)\\s*```$")
	scorePattern = regexp.MustCompile(`\b(\d{1,3})\b`)

	errNoObject = errors.New("judge reply is not a JSON object")
	errBadScore = errors.New("similarity_score is not numeric")
)

// Verdict is a judge reply reduced to a clamped score.
type Verdict struct {
	Score     int
	Reasoning string
	Source    domain.VerdictSource
}

// ParseVerdict interprets a judge reply. A JSON object, optionally inside a
// markdown fence, is read as {similarity_score, reasoning}; anything else
// falls back to the first one-to-three digit number in the text. The score
// is always clamped to [0,100].
func ParseVerdict(raw string) Verdict {
	text := strings.TrimSpace(raw)
	if v, err := parseStructured(stripFence(text)); err == nil {
		v.Score = domain.ClampScore(v.Score)
		return v
	}

	score := 0
	if m := scorePattern.FindStringSubmatch(text); m != nil {
		score, _ = strconv.Atoi(m[1])
	}
	return Verdict{
		Score:     domain.ClampScore(score),
		Reasoning: "Fallback parsing: " + preview(text, fallbackPreviewRunes) + "...",
		Source:    domain.VerdictFallbackExtracted,
	}
}

func stripFence(s string) string {
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

type structuredVerdict struct {
	Score     json.RawMessage `json:"similarity_score"`
	Reasoning *string         `json:"reasoning"`
}

func parseStructured(s string) (Verdict, error) {
	if !strings.HasPrefix(s, "{") {
		return Verdict{}, errNoObject
	}
	var sv structuredVerdict
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&sv); err != nil {
		return Verdict{}, err
	}
	if dec.More() {
		return Verdict{}, errNoObject
	}

	score, err := scoreValue(sv.Score)
	if err != nil {
		return Verdict{}, err
	}
	reasoning := DefaultReasoning
	if sv.Reasoning != nil {
		reasoning = *sv.Reasoning
	}
	return Verdict{Score: score, Reasoning: reasoning, Source: domain.VerdictParsed}, nil
}

// scoreValue accepts a JSON number or a string holding an integer. An absent
// score reads as 0.
func scoreValue(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	if bytes.Equal(raw, []byte("null")) {
		return 0, errBadScore
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		f, err := n.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, errBadScore
		}
		return truncate(f), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, errBadScore
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errBadScore
	}
	return i, nil
}

// truncate converts toward zero, saturating at the int range.
func truncate(f float64) int {
	switch {
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	default:
		return int(f)
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

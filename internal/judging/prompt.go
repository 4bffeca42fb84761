package judging

import (
	"strings"
	"text/template"
)

var promptTemplate = template.Must(template.New("judge").Parse(
	`You are an expert evaluator comparing AI model responses. Your task is to judge how similar two responses are to the same question.

Please evaluate the similarity between the Expected Response and Actual Response on a scale of 0-100, where:
- 100 = Identical or semantically equivalent
- 80-99 = Very similar, minor differences in wording or style
- 60-79 = Similar meaning, some differences in detail or approach
- 40-59 = Partially similar, captures some key points but misses others
- 20-39 = Somewhat related but significant differences
- 0-19 = Very different or unrelated

Consider:
- Factual accuracy
- Semantic meaning
- Completeness of the answer
- Relevance to the question

Original Question: {{.Query}}

Expected Response: {{.Expected}}

Actual Response: {{.Actual}}

Respond with ONLY a JSON object in this exact format:
{
    "similarity_score": <number 0-100>,
    "reasoning": "<brief explanation of your scoring>"
}
`))

type promptData struct {
	Query    string
	Expected string
	Actual   string
}

// BuildPrompt renders the judge prompt for one case.
func BuildPrompt(query, expected, actual string) string {
	var b strings.Builder
	// Executing a parsed template over plain strings cannot fail.
	_ = promptTemplate.Execute(&b, promptData{
		Query:    query,
		Expected: strings.TrimSpace(expected),
		Actual:   strings.TrimSpace(actual),
	})
	return b.String()
}

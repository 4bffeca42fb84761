package domain

import (
	"errors"
	"math"
	"time"
)

// Judging defaults.
const (
	DefaultJudgeModel          = "claude-3-5-haiku-latest"
	DefaultSimilarityThreshold = 80

	// mediumFloor is the lowest score categorized as medium.
	mediumFloor = 50
)

var errBatchCounters = errors.New("batch counters do not match results")

// SimilarityCategory buckets a similarity score relative to the run threshold.
type SimilarityCategory string

const (
	CategoryHigh   SimilarityCategory = "high"
	CategoryMedium SimilarityCategory = "medium"
	CategoryLow    SimilarityCategory = "low"
	// CategoryError marks a case whose judge call failed.
	CategoryError SimilarityCategory = "error"
)

// Categorize maps a score onto a category. A score equal to the threshold is
// high, exactly 50 is medium, and anything below 50 is low.
func Categorize(score, threshold int) SimilarityCategory {
	switch {
	case score >= threshold:
		return CategoryHigh
	case score >= mediumFloor:
		return CategoryMedium
	default:
		return CategoryLow
	}
}

// VerdictSource records how a judgement's score was obtained so callers can
// tell a clean parse from the degraded paths.
type VerdictSource string

const (
	// VerdictParsed means the judge returned a well-formed structured verdict.
	VerdictParsed VerdictSource = "parsed"
	// VerdictFallbackExtracted means the score was scraped from unstructured text.
	VerdictFallbackExtracted VerdictSource = "fallback_extracted"
	// VerdictSkipped means the execution was unusable and the judge was not called.
	VerdictSkipped VerdictSource = "skipped"
	// VerdictJudgeError means the judge provider call failed.
	VerdictJudgeError VerdictSource = "judge_error"
)

// SkippedReasoning is the rationale recorded for executions that were not judged.
const SkippedReasoning = "execution failed or empty response"

// ClampScore bounds a score to [0,100].
func ClampScore(score int) int {
	return max(0, min(100, score))
}

// JudgementResult is the judge's verdict for one execution result.
type JudgementResult struct {
	CaseID             string             `json:"case_id" validate:"required"`
	Index              int                `json:"index" validate:"min=0"`
	Success            bool               `json:"success"`
	Error              string             `json:"error,omitempty"`
	OriginalQuery      string             `json:"original_query"`
	ExpectedResponse   string             `json:"expected_response"`
	ModelResponse      string             `json:"model_response"`
	SimilarityScore    int                `json:"similarity_score" validate:"min=0,max=100"`
	SimilarityCategory SimilarityCategory `json:"similarity_category" validate:"required,oneof=high medium low error"`
	Reasoning          string             `json:"reasoning"`
	JudgeModel         string             `json:"judge_model" validate:"required"`
	VerdictSource      VerdictSource      `json:"verdict_source" validate:"required,oneof=parsed fallback_extracted skipped judge_error"`
}

// ComparisonBatch is the judgement-results namespace entry of a run.
type ComparisonBatch struct {
	EvaluationID           string            `json:"evaluation_id" validate:"required"`
	TotalCases             int               `json:"total_cases" validate:"min=0"`
	HighSimilarityCount    int               `json:"high_similarity_count" validate:"min=0"`
	MediumSimilarityCount  int               `json:"medium_similarity_count" validate:"min=0"`
	LowSimilarityCount     int               `json:"low_similarity_count" validate:"min=0"`
	ErrorCount             int               `json:"error_count" validate:"min=0"`
	AverageSimilarityScore float64           `json:"average_similarity_score" validate:"min=0,max=100"`
	SimilarityThreshold    int               `json:"similarity_threshold" validate:"min=0,max=100"`
	JudgeModel             string            `json:"judge_model" validate:"required"`
	Results                []JudgementResult `json:"results" validate:"dive"`
	CompletedAt            time.Time         `json:"completed_at" validate:"required"`
}

// Validate checks required fields and that the counters agree with the results.
func (b *ComparisonBatch) Validate() error {
	if err := validate.Struct(b); err != nil {
		return err
	}
	counted := b.HighSimilarityCount + b.MediumSimilarityCount + b.LowSimilarityCount + b.ErrorCount
	if b.TotalCases != len(b.Results) || counted != b.TotalCases {
		return errBatchCounters
	}
	return nil
}

// NewComparisonBatch aggregates judgements into a batch. The average is the
// arithmetic mean over every case and is 0 for an empty batch.
func NewComparisonBatch(
	evaluationID string,
	results []JudgementResult,
	threshold int,
	judgeModel string,
	now time.Time,
) *ComparisonBatch {
	b := &ComparisonBatch{
		EvaluationID:        evaluationID,
		TotalCases:          len(results),
		SimilarityThreshold: threshold,
		JudgeModel:          judgeModel,
		Results:             results,
		CompletedAt:         now,
	}

	total := 0
	for _, r := range results {
		total += r.SimilarityScore
		switch r.SimilarityCategory {
		case CategoryHigh:
			b.HighSimilarityCount++
		case CategoryMedium:
			b.MediumSimilarityCount++
		case CategoryLow:
			b.LowSimilarityCount++
		case CategoryError:
			b.ErrorCount++
		}
	}
	if len(results) > 0 {
		b.AverageSimilarityScore = float64(total) / float64(len(results))
	}
	return b
}

// Summary derives the human-consumable summary of the batch.
func (b *ComparisonBatch) Summary() *ComparisonSummary {
	s := &ComparisonSummary{
		TotalCases:             b.TotalCases,
		AverageSimilarityScore: roundTo(b.AverageSimilarityScore, 1),
		HighSimilarityCount:    b.HighSimilarityCount,
		MediumSimilarityCount:  b.MediumSimilarityCount,
		LowSimilarityCount:     b.LowSimilarityCount,
		ErrorCount:             b.ErrorCount,
		SimilarityThreshold:    b.SimilarityThreshold,
		JudgeModel:             b.JudgeModel,
	}
	if b.TotalCases > 0 {
		s.HighSimilarityRate = roundTo(float64(b.HighSimilarityCount)/float64(b.TotalCases)*100, 1)
	}
	return s
}

// ComparisonSummary is returned by the judging stage and stamped into run metadata.
type ComparisonSummary struct {
	TotalCases             int     `json:"total_cases"`
	AverageSimilarityScore float64 `json:"average_similarity_score"`
	HighSimilarityCount    int     `json:"high_similarity_count"`
	MediumSimilarityCount  int     `json:"medium_similarity_count"`
	LowSimilarityCount     int     `json:"low_similarity_count"`
	ErrorCount             int     `json:"error_count"`
	HighSimilarityRate     float64 `json:"high_similarity_rate"`
	SimilarityThreshold    int     `json:"similarity_threshold"`
	JudgeModel             string  `json:"judge_model"`
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

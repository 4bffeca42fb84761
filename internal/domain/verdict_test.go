package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCategorize checks the category boundaries against the run threshold.
func TestCategorize(t *testing.T) {
	tests := []struct {
		name      string
		score     int
		threshold int
		want      SimilarityCategory
	}{
		{"exactly threshold is high", 80, 80, CategoryHigh},
		{"above threshold is high", 100, 80, CategoryHigh},
		{"just below threshold is medium", 79, 80, CategoryMedium},
		{"exactly 50 is medium", 50, 80, CategoryMedium},
		{"49 is low", 49, 80, CategoryLow},
		{"zero is low", 0, 80, CategoryLow},
		{"threshold below 50 wins", 40, 30, CategoryHigh},
		{"zero threshold makes everything high", 0, 0, CategoryHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.score, tt.threshold))
		})
	}
}

func TestClampScore(t *testing.T) {
	for _, tc := range []struct{ in, want int }{
		{-5, 0}, {0, 0}, {42, 42}, {100, 100}, {101, 100}, {999, 100},
	} {
		assert.Equal(t, tc.want, ClampScore(tc.in), "ClampScore(%d)", tc.in)
	}
}

func judgement(score int, cat SimilarityCategory) JudgementResult {
	return JudgementResult{
		CaseID:             "c",
		SimilarityScore:    score,
		SimilarityCategory: cat,
		JudgeModel:         DefaultJudgeModel,
		VerdictSource:      VerdictParsed,
	}
}

// TestNewComparisonBatch verifies aggregate math including the empty batch.
func TestNewComparisonBatch(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty batch averages to zero", func(t *testing.T) {
		b := NewComparisonBatch("run-1", nil, 80, DefaultJudgeModel, now)
		assert.Zero(t, b.AverageSimilarityScore)
		assert.Zero(t, b.TotalCases)

		s := b.Summary()
		assert.Zero(t, s.AverageSimilarityScore)
		assert.Zero(t, s.HighSimilarityRate)
	})

	t.Run("counts and mean over all cases", func(t *testing.T) {
		results := []JudgementResult{
			judgement(90, CategoryHigh),
			judgement(60, CategoryMedium),
			judgement(10, CategoryLow),
			judgement(0, CategoryError),
		}
		b := NewComparisonBatch("run-1", results, 80, DefaultJudgeModel, now)

		assert.Equal(t, 4, b.TotalCases)
		assert.Equal(t, 1, b.HighSimilarityCount)
		assert.Equal(t, 1, b.MediumSimilarityCount)
		assert.Equal(t, 1, b.LowSimilarityCount)
		assert.Equal(t, 1, b.ErrorCount)
		assert.InDelta(t, 40.0, b.AverageSimilarityScore, 1e-9)
		require.NoError(t, b.Validate())
	})

	t.Run("summary rounds to one decimal", func(t *testing.T) {
		results := []JudgementResult{
			judgement(85, CategoryHigh),
			judgement(70, CategoryMedium),
			judgement(70, CategoryMedium),
		}
		s := NewComparisonBatch("run-1", results, 80, "judge", now).Summary()

		assert.InDelta(t, 75.0, s.AverageSimilarityScore, 1e-9)
		assert.InDelta(t, 33.3, s.HighSimilarityRate, 1e-9)
		assert.Equal(t, "judge", s.JudgeModel)
		assert.Equal(t, 80, s.SimilarityThreshold)
	})
}

func TestComparisonBatch_ValidateRejectsCounterDrift(t *testing.T) {
	b := NewComparisonBatch("run-1", []JudgementResult{judgement(90, CategoryHigh)}, 80, "judge", time.Now())
	b.HighSimilarityCount = 2
	require.Error(t, b.Validate())
}

func TestExecutionBatch_Summary(t *testing.T) {
	resp := "ok"
	cfg := DefaultModelConfig()
	b := &ExecutionBatch{
		EvaluationID:    "run-1",
		TotalCases:      3,
		SuccessfulCases: 2,
		FailedCases:     1,
		ModelConfig:     DefaultModelConfig(),
		Results: []ExecutionResult{
			{CaseID: "a", Success: true, ModelResponse: &resp, ModelConfig: cfg},
			{CaseID: "b", Success: true, ModelResponse: &resp, ModelConfig: cfg},
			{CaseID: "c", Index: 2, Error: "boom", ModelConfig: cfg},
		},
		CompletedAt: time.Now(),
	}
	require.NoError(t, b.Validate())

	s := b.Summary()
	assert.InDelta(t, 66.7, s.SuccessRate, 1e-9)
	assert.Equal(t, DefaultModelName, s.ModelName)
}

func TestExecutionResult_Usable(t *testing.T) {
	empty := ""
	text := "answer"
	assert.False(t, (&ExecutionResult{Success: false, ModelResponse: &text}).Usable())
	assert.False(t, (&ExecutionResult{Success: true}).Usable())
	assert.False(t, (&ExecutionResult{Success: true, ModelResponse: &empty}).Usable())
	assert.True(t, (&ExecutionResult{Success: true, ModelResponse: &text}).Usable())
}

package judging

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/llm/llmtest"
	"github.com/ahrav/go-simjudge/internal/runstate"
	"github.com/ahrav/go-simjudge/internal/stage/stagetest"
)

func TestJudgeResults(t *testing.T) {
	env := stagetest.New(t)
	judge := llmtest.NewStub(`{"similarity_score": 91, "reasoning": "same facts"}`).
		OnText("Actual Response: Alfred, probably", `{"similarity_score": 60, "reasoning": "hedged"}`).
		OnText("Actual Response: Robin", "I'd say 20")
	s := New(env.Deps(), judge, Config{})
	ctx := context.Background()

	c0 := stagetest.Case("run-1", 0, "Can Batman fly?", "No, Batman cannot fly naturally.")
	c1 := stagetest.Case("run-1", 1, "Who is Batman's butler?", "Alfred Pennyworth.")
	c2 := stagetest.Case("run-1", 2, "Who is Batman's sidekick?", "Robin.")
	c3 := stagetest.Case("run-1", 3, "Where does Batman live?", "Wayne Manor.")
	stagetest.SeedExecution(t, env.Store, "run-1",
		stagetest.Succeeded(c0, "No, he cannot fly."),
		stagetest.Succeeded(c1, "Alfred, probably"),
		stagetest.Succeeded(c2, "Robin"),
		stagetest.Failed(c3, "timeout"),
	)

	h, err := s.JudgeResults(ctx, domain.JudgeRequest{EvaluationID: "run-1"})
	require.NoError(t, err)
	assert.True(t, h.Done())
	require.NotNil(t, h.Summary)
	assert.Equal(t, &domain.ComparisonSummary{
		TotalCases:             4,
		AverageSimilarityScore: 42.8,
		HighSimilarityCount:    1,
		MediumSimilarityCount:  1,
		LowSimilarityCount:     2,
		HighSimilarityRate:     25,
		SimilarityThreshold:    domain.DefaultSimilarityThreshold,
		JudgeModel:             domain.DefaultJudgeModel,
	}, h.Summary)

	batch, err := env.Store.GetComparison(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, batch.Results, 4)
	assert.Equal(t, domain.VerdictParsed, batch.Results[0].VerdictSource)
	assert.Equal(t, "same facts", batch.Results[0].Reasoning)
	assert.Equal(t, domain.CategoryMedium, batch.Results[1].SimilarityCategory)
	assert.Equal(t, domain.VerdictFallbackExtracted, batch.Results[2].VerdictSource)
	assert.Equal(t, 20, batch.Results[2].SimilarityScore)

	skipped := batch.Results[3]
	assert.Equal(t, domain.VerdictSkipped, skipped.VerdictSource)
	assert.Equal(t, domain.CategoryLow, skipped.SimilarityCategory)
	assert.Equal(t, domain.SkippedReasoning, skipped.Reasoning)
	assert.Zero(t, skipped.SimilarityScore)
	assert.Equal(t, 3, judge.CallCount(), "unusable results are never judged")

	for _, c := range judge.Calls() {
		assert.Equal(t, domain.ModelConfig{
			ModelName:   domain.DefaultJudgeModel,
			MaxTokens:   JudgeMaxTokens,
			Temperature: JudgeTemperature,
		}, c.Config)
	}

	run, err := env.Store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComparisonCompleted, run.Status)
	assert.Equal(t, h.Summary, run.Comparison)
	assert.NotNil(t, run.CompletedAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.Metrics.CaseOutcomes.WithLabelValues("judging", "skipped")))
}

func TestJudgeResults_JudgeErrorIsIsolated(t *testing.T) {
	env := stagetest.New(t)
	judge := llmtest.NewStub(`{"similarity_score": 100, "reasoning": "identical"}`).
		OnError("Actual Response: broken", errors.New("judge overloaded"))
	s := New(env.Deps(), judge, Config{})
	ctx := context.Background()

	c0 := stagetest.Case("run-1", 0, "q0", "a0")
	c1 := stagetest.Case("run-1", 1, "q1", "a1")
	stagetest.SeedExecution(t, env.Store, "run-1",
		stagetest.Succeeded(c0, "a0"),
		stagetest.Succeeded(c1, "broken"),
	)

	h, err := s.JudgeResults(ctx, domain.JudgeRequest{EvaluationID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.Summary.ErrorCount)
	assert.Equal(t, 1, h.Summary.HighSimilarityCount)
	assert.Equal(t, 50.0, h.Summary.AverageSimilarityScore)

	batch, err := env.Store.GetComparison(ctx, "run-1")
	require.NoError(t, err)
	failed := batch.Results[1]
	assert.False(t, failed.Success)
	assert.Equal(t, domain.CategoryError, failed.SimilarityCategory)
	assert.Equal(t, domain.VerdictJudgeError, failed.VerdictSource)
	assert.Equal(t, "judge error: judge overloaded", failed.Reasoning)
}

func TestJudgeResults_Overrides(t *testing.T) {
	env := stagetest.New(t)
	judge := llmtest.NewStub(`{"similarity_score": 70, "reasoning": "fine"}`)
	s := New(env.Deps(), judge, Config{JudgeModel: "gpt-4o-mini", Threshold: 90})
	ctx := context.Background()

	c := stagetest.Case("run-1", 0, "q", "a")
	stagetest.SeedExecution(t, env.Store, "run-1", stagetest.Succeeded(c, "a"))

	h, err := s.JudgeResults(ctx, domain.JudgeRequest{EvaluationID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", h.Summary.JudgeModel)
	assert.Equal(t, 90, h.Summary.SimilarityThreshold)
	assert.Equal(t, 1, h.Summary.MediumSimilarityCount)

	threshold := 70
	h, err = s.JudgeResults(ctx, domain.JudgeRequest{
		EvaluationID:        "run-1",
		JudgeModel:          "claude-3-5-sonnet-latest",
		SimilarityThreshold: &threshold,
	})
	require.NoError(t, err, "judging can be re-run")
	assert.Equal(t, "claude-3-5-sonnet-latest", h.Summary.JudgeModel)
	assert.Equal(t, 1, h.Summary.HighSimilarityCount, "a score equal to the threshold is high")
	assert.Equal(t, "claude-3-5-sonnet-latest", judge.Calls()[1].Config.ModelName)
}

func TestJudgeResults_EmptyBatch(t *testing.T) {
	env := stagetest.New(t)
	judge := llmtest.NewStub("unused")
	stagetest.SeedExecution(t, env.Store, "run-1")

	h, err := New(env.Deps(), judge, Config{}).
		JudgeResults(context.Background(), domain.JudgeRequest{EvaluationID: "run-1"})
	require.NoError(t, err)
	assert.Zero(t, h.Summary.AverageSimilarityScore)
	assert.Zero(t, h.Summary.HighSimilarityRate)
	assert.Zero(t, judge.CallCount())
}

func TestJudgeResults_Rejections(t *testing.T) {
	env := stagetest.New(t)
	s := New(env.Deps(), llmtest.NewStub("unused"), Config{})
	ctx := context.Background()
	stagetest.SeedRun(t, env.Store, "early", domain.StatusTemplatesProcessed, 1)

	tooHigh := 101
	tests := []struct {
		name      string
		req       domain.JudgeRequest
		wantClass domain.ErrorClass
	}{
		{name: "threshold out of range", req: domain.JudgeRequest{EvaluationID: "early", SimilarityThreshold: &tooHigh}, wantClass: domain.ClassValidation},
		{name: "not executed yet", req: domain.JudgeRequest{EvaluationID: "early"}, wantClass: domain.ClassValidation},
		{name: "unknown run", req: domain.JudgeRequest{EvaluationID: "ghost"}, wantClass: domain.ClassNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.JudgeResults(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantClass, domain.Classify(err))
		})
	}

	run, err := env.Store.GetRun(ctx, "early")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTemplatesProcessed, run.Status)
}

func TestJudgeResults_InternalErrorMarksRunFailed(t *testing.T) {
	env := stagetest.New(t)
	s := New(env.Deps(), llmtest.NewStub(`{"similarity_score": 1}`), Config{})
	ctx := context.Background()
	c := stagetest.Case("run-1", 0, "q", "a")
	stagetest.SeedExecution(t, env.Store, "run-1", stagetest.Succeeded(c, "a"))

	env.KV.FailPuts(runstate.NamespaceComparison, errors.New("write refused"))
	_, err := s.JudgeResults(ctx, domain.JudgeRequest{EvaluationID: "run-1"})
	require.Error(t, err)

	run, err := env.Store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, run.Status)
	assert.Equal(t, domain.StageJudging, run.Failure.Stage)
	_, err = env.Store.GetComparison(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

package results

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/runstate"
	"github.com/ahrav/go-simjudge/internal/stage/stagetest"
	"github.com/ahrav/go-simjudge/internal/store"
)

func judged(id string, scores ...int) *domain.ComparisonBatch {
	results := make([]domain.JudgementResult, len(scores))
	for i, s := range scores {
		results[i] = domain.JudgementResult{
			CaseID:             stagetest.Case(id, i, "q", "a").CaseID,
			Index:              i,
			Success:            true,
			SimilarityScore:    s,
			SimilarityCategory: domain.Categorize(s, 80),
			JudgeModel:         domain.DefaultJudgeModel,
			VerdictSource:      domain.VerdictParsed,
		}
	}
	return domain.NewComparisonBatch(id, results, 80, domain.DefaultJudgeModel, stagetest.Now)
}

func seedJudged(t *testing.T, st *runstate.Store, id string, scores ...int) {
	t.Helper()
	ctx := context.Background()
	stagetest.SeedRun(t, st, id, domain.StatusExecutionCompleted, len(scores))
	b := judged(id, scores...)
	require.NoError(t, st.PutComparison(ctx, b))
	_, err := st.Advance(ctx, id, domain.StatusComparisonCompleted, func(m *domain.RunMetadata) {
		m.Comparison = b.Summary()
	})
	require.NoError(t, err)
}

func TestService_AnyLifecycleState(t *testing.T) {
	env := stagetest.New(t)
	svc := NewService(env.Store)
	ctx := context.Background()

	stagetest.SeedRun(t, env.Store, "mid", domain.StatusTemplatesProcessed, 2)
	seedJudged(t, env.Store, "done", 90, 55, 10)

	list, err := svc.ListEvaluations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	byID := map[string]RunListing{}
	for _, l := range list {
		byID[l.EvaluationID] = l
	}
	assert.Equal(t, domain.StatusTemplatesProcessed, byID["mid"].Status)
	assert.Nil(t, byID["mid"].AverageSimilarityScore)
	require.NotNil(t, byID["done"].AverageSimilarityScore)
	assert.Equal(t, 51.7, *byID["done"].AverageSimilarityScore)

	view, err := svc.Describe(ctx, "mid")
	require.NoError(t, err)
	assert.Nil(t, view.Summary)
	view, err = svc.Describe(ctx, "done")
	require.NoError(t, err)
	require.NotNil(t, view.Summary)
	assert.Equal(t, 3, view.Summary.TotalCases)

	_, err = svc.GetSummary(ctx, "mid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.ClassNotFound, domain.Classify(err))

	summary, err := svc.GetSummary(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.HighSimilarityCount)
	assert.Equal(t, 33.3, summary.HighSimilarityRate)

	cases, err := svc.GetCases(ctx, "done", CaseFilter{})
	require.NoError(t, err)
	assert.Len(t, cases, 3)
	cases, err = svc.GetCases(ctx, "done", CaseFilter{Category: domain.CategoryLow})
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, 10, cases[0].SimilarityScore)

	_, err = svc.GetCases(ctx, "done", CaseFilter{Category: "great"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestService_NotFoundIsDistinctFromInternal(t *testing.T) {
	kv := store.NewMemoryKV()
	st := runstate.New(kv)
	svc := NewService(st)
	ctx := context.Background()

	_, err := svc.Describe(ctx, "ghost")
	assert.Equal(t, domain.ClassNotFound, domain.Classify(err))
	_, err = svc.GetCases(ctx, "ghost", CaseFilter{})
	assert.Equal(t, domain.ClassNotFound, domain.Classify(err))

	require.NoError(t, kv.Put(ctx, runstate.NamespaceMetadata, "corrupt", []byte(`{"evaluation_id":"corrupt","mystery":1}`)))
	_, err = svc.Describe(ctx, "corrupt")
	var schema *domain.SchemaMismatchError
	require.True(t, errors.As(err, &schema))
	assert.Equal(t, domain.ClassInternal, domain.Classify(err))

	list, err := svc.ListEvaluations(ctx)
	require.NoError(t, err)
	assert.Empty(t, list, "unreadable records are skipped")
}

func TestService_StaleComparisonAfterReingest(t *testing.T) {
	env := stagetest.New(t)
	svc := NewService(env.Store)
	ctx := context.Background()

	seedJudged(t, env.Store, "run-1", 90)
	_, err := env.Store.Advance(ctx, "run-1", domain.StatusDatasetLoaded, nil)
	require.NoError(t, err)

	_, err = svc.GetSummary(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "the old comparison no longer describes the run")
}

func TestService_FailedRejudgeKeepsServingPreviousVerdicts(t *testing.T) {
	env := stagetest.New(t)
	svc := NewService(env.Store)
	ctx := context.Background()

	seedJudged(t, env.Store, "run-1", 90)
	require.NoError(t, env.Store.MarkFailed(ctx, "run-1", domain.StageJudging, "boom"))

	summary, err := svc.GetSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.HighSimilarityCount)
}

package processing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/runstate"
	"github.com/ahrav/go-simjudge/internal/stage/stagetest"
)

func record(t *testing.T, s string) domain.Record {
	t.Helper()
	var r domain.Record
	require.NoError(t, json.Unmarshal([]byte(s), &r))
	return r
}

func seed(t *testing.T, env *stagetest.Env, id string, tmpl domain.PromptTemplate, records ...domain.Record) {
	t.Helper()
	ctx := context.Background()
	stagetest.SeedRun(t, env.Store, id, domain.StatusDatasetLoaded, len(records))
	require.NoError(t, env.Store.PutDataset(ctx, &domain.Dataset{
		EvaluationID: id,
		Format:       domain.FormatQueryResponsePairs,
		Source:       domain.SourceDescriptor{Kind: domain.SourceInlineJSON, Location: "inline"},
		Records:      records,
	}))
	require.NoError(t, env.Store.PutTemplate(ctx, &domain.TemplateEntry{EvaluationID: id, Template: tmpl}))
}

var queryTemplate = domain.PromptTemplate{Template: "Answer briefly: {{query}}", Variables: []string{"query"}}

func TestProcessTemplates(t *testing.T) {
	env := stagetest.New(t)
	s := New(env.Deps())
	ctx := context.Background()

	seed(t, env, "run-1", queryTemplate,
		record(t, `{"query": "Can Batman fly?", "response": "No."}`),
		record(t, `{"query": "Who is Batman's butler?", "response": "Alfred."}`),
	)

	name := "gpt-4o-mini"
	mc := &domain.ModelConfigInput{ModelName: &name}
	h, err := s.ProcessTemplates(ctx, domain.ProcessRequest{EvaluationID: "run-1", ModelConfig: mc})
	require.NoError(t, err)
	assert.Equal(t, domain.StageExecution, h.NextStage)
	assert.Same(t, mc, h.ModelConfig, "model config is carried to execution")

	batch, err := env.Store.GetProcessed(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, batch.Cases, 2)
	assert.Equal(t, domain.ProcessedCase{
		CaseID:            "run-1_case_0",
		Index:             0,
		OriginalQuery:     "Can Batman fly?",
		ExpectedResponse:  "No.",
		ProcessedPrompt:   "Answer briefly: Can Batman fly?",
		TemplateVariables: map[string]string{"query": "Can Batman fly?"},
	}, batch.Cases[0])
	assert.Equal(t, "run-1_case_1", batch.Cases[1].CaseID)

	run, err := env.Store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTemplatesProcessed, run.Status)
	assert.Equal(t, 2, run.ProcessedCases)
	assert.Len(t, env.Sink.OfType(domain.EventStageCompleted), 1)
}

func TestProcessTemplates_MissingVariableAbortsBatch(t *testing.T) {
	env := stagetest.New(t)
	s := New(env.Deps())
	ctx := context.Background()

	tmpl := domain.PromptTemplate{Template: "{{query}} ({{topic}})", Variables: []string{"query", "topic"}}
	seed(t, env, "run-1", tmpl,
		record(t, `{"query": "q0", "response": "r0", "topic": "bats"}`),
		record(t, `{"query": "q1", "response": "r1"}`),
	)

	_, err := s.ProcessTemplates(ctx, domain.ProcessRequest{EvaluationID: "run-1"})
	var missing *domain.MissingVariableError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "topic", missing.Variable)
	assert.Equal(t, 1, missing.Index)
	assert.Equal(t, domain.ClassValidation, domain.Classify(err))

	_, err = env.Store.GetProcessed(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "nothing is written")
	run, err := env.Store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDatasetLoaded, run.Status, "validation errors leave the run untouched")
	assert.Len(t, env.Sink.OfType(domain.EventStageFailed), 1)
}

func TestProcessTemplates_Preconditions(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T, env *stagetest.Env)
		req       domain.ProcessRequest
		wantClass domain.ErrorClass
	}{
		{
			name:      "missing id",
			setup:     func(*testing.T, *stagetest.Env) {},
			wantClass: domain.ClassValidation,
		},
		{
			name:      "unknown run",
			setup:     func(*testing.T, *stagetest.Env) {},
			req:       domain.ProcessRequest{EvaluationID: "nope"},
			wantClass: domain.ClassNotFound,
		},
		{
			name: "dataset not loaded",
			setup: func(t *testing.T, env *stagetest.Env) {
				stagetest.SeedRun(t, env.Store, "run-1", domain.StatusCreated, 0)
			},
			req:       domain.ProcessRequest{EvaluationID: "run-1"},
			wantClass: domain.ClassValidation,
		},
		{
			name: "bad model config",
			setup: func(t *testing.T, env *stagetest.Env) {
				seed(t, env, "run-1", queryTemplate, record(t, `{"query": "q", "response": "r"}`))
			},
			req: domain.ProcessRequest{
				EvaluationID: "run-1",
				ModelConfig:  &domain.ModelConfigInput{MaxTokens: new(int)},
			},
			wantClass: domain.ClassValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := stagetest.New(t)
			tt.setup(t, env)

			_, err := New(env.Deps()).ProcessTemplates(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantClass, domain.Classify(err))
		})
	}
}

func TestProcessTemplates_OverrideCheckedAgainstConfiguredDefaults(t *testing.T) {
	ctx := context.Background()
	temp := 0.5
	req := domain.ProcessRequest{
		EvaluationID: "run-1",
		ModelConfig:  &domain.ModelConfigInput{Temperature: &temp},
	}
	// Configured defaults without a usable token budget make every override
	// that leaves max_tokens out unresolvable at execution time.
	configured := domain.ModelConfig{ModelName: "local-model", MaxTokens: 0, Temperature: 0.2}

	env := stagetest.New(t)
	seed(t, env, "run-1", queryTemplate, record(t, `{"query": "q", "response": "r"}`))

	_, err := New(env.Deps(), WithModelDefaults(configured)).ProcessTemplates(ctx, req)
	require.Error(t, err)
	assert.Equal(t, domain.ClassValidation, domain.Classify(err))
	_, err = env.Store.GetProcessed(ctx, "run-1")
	require.ErrorIs(t, err, domain.ErrNotFound, "a refused override writes nothing")

	_, err = New(env.Deps()).ProcessTemplates(ctx, req)
	require.NoError(t, err, "the same override resolves against the stock defaults")
}

func TestProcessTemplates_RerunAfterExecutionClearsSummary(t *testing.T) {
	env := stagetest.New(t)
	s := New(env.Deps())
	ctx := context.Background()

	seed(t, env, "run-1", queryTemplate, record(t, `{"query": "q", "response": "r"}`))
	_, err := env.Store.Advance(ctx, "run-1", domain.StatusTemplatesProcessed, nil)
	require.NoError(t, err)
	_, err = env.Store.Advance(ctx, "run-1", domain.StatusExecutionCompleted, func(m *domain.RunMetadata) {
		m.Execution = &domain.ExecutionSummary{TotalCases: 1}
	})
	require.NoError(t, err)

	_, err = s.ProcessTemplates(ctx, domain.ProcessRequest{EvaluationID: "run-1"})
	require.NoError(t, err)

	run, err := env.Store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTemplatesProcessed, run.Status)
	assert.Nil(t, run.Execution)
}

func TestProcessTemplates_InternalErrorMarksRunFailed(t *testing.T) {
	env := stagetest.New(t)
	s := New(env.Deps())
	ctx := context.Background()

	seed(t, env, "run-1", queryTemplate, record(t, `{"query": "q", "response": "r"}`))
	env.KV.FailPuts(runstate.NamespaceProcessed, errors.New("disk full"))

	_, err := s.ProcessTemplates(ctx, domain.ProcessRequest{EvaluationID: "run-1"})
	require.Error(t, err)
	assert.Equal(t, "internal error", domain.NewErrorResponse(err).Error)

	run, err := env.Store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, run.Status)
	require.NotNil(t, run.Failure)
	assert.Equal(t, domain.StageProcessing, run.Failure.Stage)

	env.KV.FailPuts(runstate.NamespaceProcessed, nil)
	_, err = s.ProcessTemplates(ctx, domain.ProcessRequest{EvaluationID: "run-1"})
	require.NoError(t, err, "a failed run resumes")
}

func TestRenderCases_NonStringFieldsBindAsJSON(t *testing.T) {
	tmpl := domain.PromptTemplate{Template: "{{query}} level={{difficulty}} tags={{tags}}", Variables: []string{"query", "difficulty", "tags"}}
	cases, err := RenderCases("r", tmpl, []domain.Record{
		record(t, `{"query": "q", "response": "r", "difficulty": 3, "tags": ["a","b"]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, `q level=3 tags=["a","b"]`, cases[0].ProcessedPrompt)
}

func TestRenderCases_PlaceholderInValue(t *testing.T) {
	_, err := RenderCases("r", queryTemplate, []domain.Record{
		record(t, `{"query": "{{sneaky}}", "response": "r"}`),
	})
	var unsubst *domain.UnsubstitutedPlaceholderError
	require.ErrorAs(t, err, &unsubst)
	assert.Equal(t, domain.ClassValidation, domain.Classify(err))
}

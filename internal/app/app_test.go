package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-simjudge/internal/config"
	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/llm/llmtest"
	"github.com/ahrav/go-simjudge/internal/results"
	"github.com/ahrav/go-simjudge/internal/runstate"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.RateLimit.TokensPerSecond = 0
	return cfg
}

// modelAndJudge answers model prompts and judge prompts from one stub.
func modelAndJudge() *llmtest.Stub {
	return llmtest.NewStub("No, Batman cannot fly.").
		OnText("Actual Response:", `{"similarity_score": 90, "reasoning": "same meaning"}`)
}

func batman() domain.EvaluationRequest {
	return domain.EvaluationRequest{IngestRequest: domain.IngestRequest{
		EvaluationID:   "batman",
		PromptTemplate: &domain.PromptTemplate{Template: "{{query}}", Variables: []string{"query"}},
		DatasetJSON:    json.RawMessage(`[{"query":"Can Batman fly?","response":"No, Batman cannot fly naturally."}]`),
	}}
}

func TestNew_MemoryBackendRunsPipeline(t *testing.T) {
	ctx := context.Background()
	stub := modelAndJudge()
	a, err := New(ctx, testConfig(), nil, WithProvider(stub))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	h, err := a.Runner.Run(ctx, batman())
	require.NoError(t, err)
	require.True(t, h.Done())
	require.NotNil(t, h.Summary)
	assert.Equal(t, 90.0, h.Summary.AverageSimilarityScore)
	assert.Equal(t, 2, stub.CallCount())

	summary, err := a.Results.GetSummary(ctx, "batman")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.HighSimilarityCount)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["simjudge_provider_call_duration_seconds"])
	assert.True(t, names["go_goroutines"])
}

func TestNew_SQLiteBackendPersists(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "runs.db")

	a, err := New(ctx, cfg, nil, WithProvider(modelAndJudge()))
	require.NoError(t, err)
	_, err = a.Runner.Run(ctx, batman())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	kv, err := OpenStore(ctx, cfg.Store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	run, err := runstate.New(kv).GetRun(ctx, "batman")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComparisonCompleted, run.Status)
	require.NotNil(t, run.Comparison)
}

func TestNew_UnreachableRedisFails(t *testing.T) {
	cfg := testConfig()
	cfg.Events.Sink = config.SinkRedis
	cfg.Store.Redis.Addr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg, nil, WithProvider(modelAndJudge()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to redis")
}

func TestNew_WithoutCredentialsDegradesCases(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Providers.Anthropic.APIKey = ""
	cfg.Providers.OpenAI.APIKey = ""

	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	h, err := a.Runner.Run(ctx, batman())
	require.NoError(t, err)
	require.NotNil(t, h.Summary)

	cases, err := a.Results.GetCases(ctx, "batman", results.CaseFilter{})
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Zero(t, cases[0].SimilarityScore)
}

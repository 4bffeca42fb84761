// Package stagetest builds in-memory stage dependencies and seeds run state
// for stage tests.
package stagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/metrics"
	"github.com/ahrav/go-simjudge/internal/runstate"
	"github.com/ahrav/go-simjudge/internal/stage"
	"github.com/ahrav/go-simjudge/internal/store"
	"github.com/ahrav/go-simjudge/pkg/events"
)

// Now is the fixed clock reading of every Env.
var Now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Env bundles in-memory stage dependencies.
type Env struct {
	KV      *FailingKV
	Store   *runstate.Store
	Sink    *events.MemorySink
	Metrics *metrics.Recorder
}

// New returns an Env over a fresh memory store.
func New(t *testing.T) *Env {
	t.Helper()
	kv := &FailingKV{KV: store.NewMemoryKV()}
	return &Env{
		KV:      kv,
		Store:   runstate.New(kv, runstate.WithClock(func() time.Time { return Now })),
		Sink:    events.NewMemorySink(),
		Metrics: metrics.New(prometheus.NewRegistry()),
	}
}

// Deps returns the stage dependencies of the Env.
func (e *Env) Deps() stage.Deps {
	return stage.Deps{Store: e.Store, Events: e.Sink, Metrics: e.Metrics}
}

// FailingKV wraps a KV and fails writes to selected namespaces.
type FailingKV struct {
	store.KV

	mu      sync.Mutex
	failPut map[string]error
}

// FailPuts makes every Put to namespace return err. A nil err clears it.
func (f *FailingKV) FailPuts(namespace string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut == nil {
		f.failPut = make(map[string]error)
	}
	if err == nil {
		delete(f.failPut, namespace)
		return
	}
	f.failPut[namespace] = err
}

// Put implements store.KV.
func (f *FailingKV) Put(ctx context.Context, namespace, key string, value []byte) error {
	f.mu.Lock()
	err := f.failPut[namespace]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.KV.Put(ctx, namespace, key, value)
}

// SeedRun writes run metadata that has walked the lifecycle up to status.
func SeedRun(t *testing.T, st *runstate.Store, id string, status domain.RunStatus, totalCases int) *domain.RunMetadata {
	t.Helper()
	m := domain.NewRunMetadata(id, Now)
	for _, s := range []domain.RunStatus{
		domain.StatusDatasetLoaded,
		domain.StatusTemplatesProcessed,
		domain.StatusExecutionCompleted,
		domain.StatusComparisonCompleted,
	} {
		if m.Status == status {
			break
		}
		require.NoError(t, m.Advance(s, Now))
	}
	m.TotalCases = totalCases
	require.NoError(t, st.PutRun(context.Background(), m))
	return m
}

// Case builds a processed case with the conventional id.
func Case(id string, index int, query, expected string) domain.ProcessedCase {
	return domain.ProcessedCase{
		CaseID:            fmt.Sprintf("%s_case_%d", id, index),
		Index:             index,
		OriginalQuery:     query,
		ExpectedResponse:  expected,
		ProcessedPrompt:   "Answer: " + query,
		TemplateVariables: map[string]string{"query": query},
	}
}

// SeedProcessed stores cases and a run at templates_processed.
func SeedProcessed(t *testing.T, st *runstate.Store, id string, cases ...domain.ProcessedCase) {
	t.Helper()
	SeedRun(t, st, id, domain.StatusTemplatesProcessed, len(cases))
	require.NoError(t, st.PutProcessed(context.Background(), &domain.ProcessedBatch{
		EvaluationID: id,
		Cases:        cases,
	}))
}

// Succeeded builds a successful execution result for c.
func Succeeded(c domain.ProcessedCase, response string) domain.ExecutionResult {
	return domain.ExecutionResult{
		CaseID:            c.CaseID,
		Index:             c.Index,
		Success:           true,
		OriginalQuery:     c.OriginalQuery,
		ExpectedResponse:  c.ExpectedResponse,
		ProcessedPrompt:   c.ProcessedPrompt,
		ModelResponse:     &response,
		ModelConfig:       domain.DefaultModelConfig(),
		TemplateVariables: c.TemplateVariables,
	}
}

// Failed builds a failed execution result for c.
func Failed(c domain.ProcessedCase, msg string) domain.ExecutionResult {
	return domain.ExecutionResult{
		CaseID:            c.CaseID,
		Index:             c.Index,
		Error:             msg,
		OriginalQuery:     c.OriginalQuery,
		ExpectedResponse:  c.ExpectedResponse,
		ProcessedPrompt:   c.ProcessedPrompt,
		ModelConfig:       domain.DefaultModelConfig(),
		TemplateVariables: c.TemplateVariables,
	}
}

// SeedExecution stores results and a run at execution_completed.
func SeedExecution(t *testing.T, st *runstate.Store, id string, results ...domain.ExecutionResult) {
	t.Helper()
	SeedRun(t, st, id, domain.StatusExecutionCompleted, len(results))

	batch := &domain.ExecutionBatch{
		EvaluationID: id,
		TotalCases:   len(results),
		ModelConfig:  domain.DefaultModelConfig(),
		Results:      results,
		CompletedAt:  Now,
	}
	for _, r := range results {
		if r.Success {
			batch.SuccessfulCases++
		} else {
			batch.FailedCases++
		}
	}
	require.NoError(t, st.PutExecution(context.Background(), batch))
}

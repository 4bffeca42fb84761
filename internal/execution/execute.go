// Package execution sends every processed case of a run to the model under
// evaluation and records one result per case.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/llm"
	"github.com/ahrav/go-simjudge/internal/stage"
	"github.com/ahrav/go-simjudge/pkg/activity"
)

// DefaultCallTimeout bounds a single model call.
const DefaultCallTimeout = 60 * time.Second

// Config tunes the execution stage.
type Config struct {
	// Concurrency caps in-flight model calls.
	Concurrency int `yaml:"concurrency" validate:"min=0"`
	// CallTimeout bounds each model call; a timeout fails only that case.
	CallTimeout time.Duration `yaml:"call_timeout" validate:"min=0"`
	// Defaults fill the fields a request leaves out.
	Defaults domain.ModelConfig `yaml:"model_config"`
}

// DefaultConfig returns the stock execution settings.
func DefaultConfig() Config {
	return Config{
		Concurrency: stage.DefaultConcurrency,
		CallTimeout: DefaultCallTimeout,
		Defaults:    domain.DefaultModelConfig(),
	}
}

// Stage is the execution stage.
type Stage struct {
	stage.Base
	provider llm.Provider
	cfg      Config
}

// New creates the execution stage. Zero config fields take their defaults.
func New(deps stage.Deps, provider llm.Provider, cfg Config) *Stage {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.Defaults.ModelName == "" {
		cfg.Defaults = def.Defaults
	}
	return &Stage{
		Base:     stage.NewBase(domain.StageExecution, deps),
		provider: provider,
		cfg:      cfg,
	}
}

// ExecuteCases runs every processed case against the configured model.
// A failed call degrades only its own case; the batch is written once,
// after every case has settled.
func (s *Stage) ExecuteCases(ctx context.Context, req domain.ExecuteRequest) (*domain.Handoff, error) {
	started := time.Now()

	h, run, n, err := s.executeCases(ctx, &req)
	if err != nil {
		return nil, s.Fail(ctx, started, req.EvaluationID, err)
	}
	return s.Complete(ctx, started, run, h, n), nil
}

func (s *Stage) executeCases(
	ctx context.Context,
	req *domain.ExecuteRequest,
) (*domain.Handoff, *domain.RunMetadata, int, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, 0, err
	}
	mc, err := req.ModelConfig.Resolve(s.cfg.Defaults)
	if err != nil {
		return nil, nil, 0, err
	}

	run, err := s.Store.GetRun(ctx, req.EvaluationID)
	if err != nil {
		return nil, nil, 0, err
	}
	if err := run.RequireAtLeast(domain.StatusTemplatesProcessed); err != nil {
		return nil, nil, 0, err
	}
	processed, err := s.Store.GetProcessed(ctx, req.EvaluationID)
	if err != nil {
		return nil, nil, 0, err
	}

	activity.SafeLog(ctx, "Executing cases",
		"evaluation_id", req.EvaluationID,
		"cases", len(processed.Cases),
		"model", mc.ModelName,
		"concurrency", s.cfg.Concurrency)

	results, err := stage.FanOut(ctx, processed.Cases, s.cfg.Concurrency,
		func(ctx context.Context, _ int, c domain.ProcessedCase) domain.ExecutionResult {
			return s.executeCase(ctx, c, mc)
		})
	if err != nil {
		return nil, nil, 0, err
	}

	batch := NewBatch(req.EvaluationID, mc, results, s.Store.Now())
	if err := s.Store.PutExecution(ctx, batch); err != nil {
		return nil, nil, 0, err
	}
	run, err = s.Store.Advance(ctx, req.EvaluationID, domain.StatusExecutionCompleted, func(m *domain.RunMetadata) {
		m.Execution = batch.Summary()
	})
	if err != nil {
		return nil, nil, 0, err
	}

	activity.SafeLog(ctx, "Execution completed",
		"evaluation_id", req.EvaluationID,
		"successful", batch.SuccessfulCases,
		"failed", batch.FailedCases)

	return &domain.Handoff{
		EvaluationID: req.EvaluationID,
		NextStage:    domain.StageExecution.Next(),
		ModelConfig:  req.ModelConfig,
	}, run, len(results), nil
}

func (s *Stage) executeCase(ctx context.Context, c domain.ProcessedCase, mc domain.ModelConfig) domain.ExecutionResult {
	res := domain.ExecutionResult{
		CaseID:            c.CaseID,
		Index:             c.Index,
		OriginalQuery:     c.OriginalQuery,
		ExpectedResponse:  c.ExpectedResponse,
		ProcessedPrompt:   c.ProcessedPrompt,
		ModelConfig:       mc,
		TemplateVariables: c.TemplateVariables,
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	text, err := s.provider.Generate(callCtx, c.ProcessedPrompt, mc)
	res.LatencyMs = time.Since(start).Milliseconds()

	if err != nil {
		res.Error = failureReason(err)
		s.Metrics.CaseOutcome(domain.StageExecution, "failure")
		activity.SafeLogWarn(ctx, "Case execution failed",
			"case_id", c.CaseID,
			"error", err)
		return res
	}
	res.Success = true
	res.ModelResponse = &text
	s.Metrics.CaseOutcome(domain.StageExecution, "success")
	return res
}

func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "model call timed out: " + err.Error()
	}
	return err.Error()
}

// NewBatch assembles results into a batch with matching counters.
func NewBatch(evaluationID string, mc domain.ModelConfig, results []domain.ExecutionResult, now time.Time) *domain.ExecutionBatch {
	b := &domain.ExecutionBatch{
		EvaluationID: evaluationID,
		TotalCases:   len(results),
		ModelConfig:  mc,
		Results:      results,
		CompletedAt:  now,
	}
	for _, r := range results {
		if r.Success {
			b.SuccessfulCases++
		} else {
			b.FailedCases++
		}
	}
	return b
}

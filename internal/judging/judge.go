// Package judging scores each execution result against its expected answer
// with a second model and aggregates the verdicts into the run summary.
package judging

import (
	"context"
	"strings"
	"time"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/llm"
	"github.com/ahrav/go-simjudge/internal/stage"
	"github.com/ahrav/go-simjudge/pkg/activity"
)

// Judge call parameters.
const (
	JudgeMaxTokens   = 200
	JudgeTemperature = 0.1

	DefaultCallTimeout = 60 * time.Second
)

// Config tunes the judging stage.
type Config struct {
	Concurrency int           `yaml:"concurrency" validate:"min=0"`
	CallTimeout time.Duration `yaml:"call_timeout" validate:"min=0"`
	JudgeModel  string        `yaml:"judge_model"`
	Threshold   int           `yaml:"similarity_threshold" validate:"min=0,max=100"`
}

// DefaultConfig returns the stock judging settings.
func DefaultConfig() Config {
	return Config{
		Concurrency: stage.DefaultConcurrency,
		CallTimeout: DefaultCallTimeout,
		JudgeModel:  domain.DefaultJudgeModel,
		Threshold:   domain.DefaultSimilarityThreshold,
	}
}

// Stage is the judging stage.
type Stage struct {
	stage.Base
	judge llm.Provider
	cfg   Config
}

// New creates the judging stage. Zero concurrency, timeout and model take
// their defaults; a zero threshold is kept.
func New(deps stage.Deps, judge llm.Provider, cfg Config) *Stage {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.JudgeModel == "" {
		cfg.JudgeModel = def.JudgeModel
	}
	return &Stage{
		Base:  stage.NewBase(domain.StageJudging, deps),
		judge: judge,
		cfg:   cfg,
	}
}

// JudgeResults scores every execution result of the run. Unusable results
// get a forced low verdict without calling the judge, and a failed judge
// call degrades only its own case. The hand-off carries the run summary.
func (s *Stage) JudgeResults(ctx context.Context, req domain.JudgeRequest) (*domain.Handoff, error) {
	started := time.Now()

	h, run, n, err := s.judgeResults(ctx, &req)
	if err != nil {
		return nil, s.Fail(ctx, started, req.EvaluationID, err)
	}
	return s.Complete(ctx, started, run, h, n), nil
}

func (s *Stage) judgeResults(
	ctx context.Context,
	req *domain.JudgeRequest,
) (*domain.Handoff, *domain.RunMetadata, int, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, 0, err
	}
	model := req.JudgeModel
	if model == "" {
		model = s.cfg.JudgeModel
	}
	threshold := s.cfg.Threshold
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}

	run, err := s.Store.GetRun(ctx, req.EvaluationID)
	if err != nil {
		return nil, nil, 0, err
	}
	if err := run.RequireAtLeast(domain.StatusExecutionCompleted); err != nil {
		return nil, nil, 0, err
	}
	executed, err := s.Store.GetExecution(ctx, req.EvaluationID)
	if err != nil {
		return nil, nil, 0, err
	}

	activity.SafeLog(ctx, "Judging results",
		"evaluation_id", req.EvaluationID,
		"cases", len(executed.Results),
		"judge_model", model,
		"threshold", threshold)

	mc := domain.ModelConfig{ModelName: model, MaxTokens: JudgeMaxTokens, Temperature: JudgeTemperature}
	results, err := stage.FanOut(ctx, executed.Results, s.cfg.Concurrency,
		func(ctx context.Context, _ int, r domain.ExecutionResult) domain.JudgementResult {
			return s.judgeCase(ctx, r, mc, threshold)
		})
	if err != nil {
		return nil, nil, 0, err
	}

	batch := domain.NewComparisonBatch(req.EvaluationID, results, threshold, model, s.Store.Now())
	if err := s.Store.PutComparison(ctx, batch); err != nil {
		return nil, nil, 0, err
	}
	summary := batch.Summary()
	run, err = s.Store.Advance(ctx, req.EvaluationID, domain.StatusComparisonCompleted, func(m *domain.RunMetadata) {
		m.Comparison = summary
	})
	if err != nil {
		return nil, nil, 0, err
	}

	activity.SafeLog(ctx, "Judging completed",
		"evaluation_id", req.EvaluationID,
		"average", summary.AverageSimilarityScore,
		"high_rate", summary.HighSimilarityRate,
		"errors", summary.ErrorCount)

	return &domain.Handoff{EvaluationID: req.EvaluationID, Summary: summary}, run, len(results), nil
}

func (s *Stage) judgeCase(
	ctx context.Context,
	r domain.ExecutionResult,
	mc domain.ModelConfig,
	threshold int,
) domain.JudgementResult {
	out := domain.JudgementResult{
		CaseID:           r.CaseID,
		Index:            r.Index,
		OriginalQuery:    r.OriginalQuery,
		ExpectedResponse: r.ExpectedResponse,
		JudgeModel:       mc.ModelName,
	}
	if r.ModelResponse != nil {
		out.ModelResponse = *r.ModelResponse
	}

	if !r.Usable() || strings.TrimSpace(out.ModelResponse) == "" {
		out.Success = true
		out.SimilarityCategory = domain.CategoryLow
		out.Reasoning = domain.SkippedReasoning
		out.VerdictSource = domain.VerdictSkipped
		s.Metrics.CaseOutcome(domain.StageJudging, string(domain.VerdictSkipped))
		return out
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	reply, err := s.judge.Generate(callCtx, BuildPrompt(r.OriginalQuery, r.ExpectedResponse, out.ModelResponse), mc)
	if err != nil {
		out.Error = err.Error()
		out.SimilarityCategory = domain.CategoryError
		out.Reasoning = "judge error: " + err.Error()
		out.VerdictSource = domain.VerdictJudgeError
		s.Metrics.CaseOutcome(domain.StageJudging, string(domain.CategoryError))
		activity.SafeLogWarn(ctx, "Judge call failed", "case_id", r.CaseID, "error", err)
		return out
	}

	v := ParseVerdict(reply)
	if v.Source == domain.VerdictFallbackExtracted {
		activity.SafeLogWarn(ctx, "Judge reply was not structured, extracted score from text",
			"case_id", r.CaseID,
			"score", v.Score)
	}
	out.Success = true
	out.SimilarityScore = v.Score
	out.SimilarityCategory = domain.Categorize(v.Score, threshold)
	out.Reasoning = v.Reasoning
	out.VerdictSource = v.Source

	s.Metrics.SimilarityScore(mc.ModelName, v.Score)
	s.Metrics.CaseOutcome(domain.StageJudging, string(out.SimilarityCategory))
	return out
}

// Package pipeline chains the four stages in-process, following each
// hand-off's next stage until judging returns the run summary.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ahrav/go-simjudge/internal/domain"
)

// Ingester loads a dataset and starts a run.
type Ingester interface {
	LoadDataset(ctx context.Context, req domain.IngestRequest) (*domain.Handoff, error)
}

// Processor renders a run's cases.
type Processor interface {
	ProcessTemplates(ctx context.Context, req domain.ProcessRequest) (*domain.Handoff, error)
}

// Executor runs a run's cases against the model.
type Executor interface {
	ExecuteCases(ctx context.Context, req domain.ExecuteRequest) (*domain.Handoff, error)
}

// Judge scores a run's execution results.
type Judge interface {
	JudgeResults(ctx context.Context, req domain.JudgeRequest) (*domain.Handoff, error)
}

// Runner drives a run through every stage.
type Runner struct {
	ingest  Ingester
	process Processor
	execute Executor
	judge   Judge
	logger  *slog.Logger
}

// NewRunner creates a runner over the given stages.
func NewRunner(i Ingester, p Processor, e Executor, j Judge) *Runner {
	return &Runner{
		ingest:  i,
		process: p,
		execute: e,
		judge:   j,
		logger:  slog.Default().With("component", "pipeline"),
	}
}

// Run ingests the request's dataset and then invokes whichever stage each
// hand-off names. It stops at the first stage error and returns it as is,
// so the caller can classify it.
func (r *Runner) Run(ctx context.Context, req domain.EvaluationRequest) (*domain.Handoff, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	h, err := r.ingest.LoadDataset(ctx, req.IngestRequest)
	if err != nil {
		return nil, err
	}
	return r.Resume(ctx, &req, h)
}

// Resume continues a run from the hand-off h.
func (r *Runner) Resume(ctx context.Context, req *domain.EvaluationRequest, h *domain.Handoff) (*domain.Handoff, error) {
	for !h.Done() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.logger.InfoContext(ctx, "advancing run", "evaluation_id", h.EvaluationID, "stage", h.NextStage)

		var err error
		switch h.NextStage {
		case domain.StageProcessing:
			h, err = r.process.ProcessTemplates(ctx, req.ProcessRequestFor(h))
		case domain.StageExecution:
			h, err = r.execute.ExecuteCases(ctx, req.ExecuteRequestFor(h))
		case domain.StageJudging:
			h, err = r.judge.JudgeResults(ctx, req.JudgeRequestFor(h))
		default:
			return nil, fmt.Errorf("unknown next stage %q", h.NextStage)
		}
		if err != nil {
			return nil, err
		}
	}
	return h, nil
}

package workflow

import (
	"context"

	"go.temporal.io/sdk/temporal"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/pipeline"
)

// Activities exposes the pipeline stages as Temporal activities.
type Activities struct {
	ingest  pipeline.Ingester
	process pipeline.Processor
	execute pipeline.Executor
	judge   pipeline.Judge
}

// NewActivities wraps the four stages.
func NewActivities(i pipeline.Ingester, p pipeline.Processor, e pipeline.Executor, j pipeline.Judge) *Activities {
	return &Activities{ingest: i, process: p, execute: e, judge: j}
}

// LoadDataset runs the ingestion stage.
func (a *Activities) LoadDataset(ctx context.Context, req domain.IngestRequest) (*domain.Handoff, error) {
	h, err := a.ingest.LoadDataset(ctx, req)
	return h, applicationError(err)
}

// ProcessTemplates runs the processing stage.
func (a *Activities) ProcessTemplates(ctx context.Context, req domain.ProcessRequest) (*domain.Handoff, error) {
	h, err := a.process.ProcessTemplates(ctx, req)
	return h, applicationError(err)
}

// ExecuteCases runs the execution stage.
func (a *Activities) ExecuteCases(ctx context.Context, req domain.ExecuteRequest) (*domain.Handoff, error) {
	h, err := a.execute.ExecuteCases(ctx, req)
	return h, applicationError(err)
}

// JudgeResults runs the judging stage.
func (a *Activities) JudgeResults(ctx context.Context, req domain.JudgeRequest) (*domain.Handoff, error) {
	h, err := a.judge.JudgeResults(ctx, req)
	return h, applicationError(err)
}

// applicationError converts a stage error into a Temporal application error
// typed by its class. Only internal errors may be retried; the caller has to
// fix anything else before re-invoking the stage.
func applicationError(err error) error {
	if err == nil {
		return nil
	}
	class := domain.Classify(err)
	msg := domain.NewErrorResponse(err).Error
	if class == domain.ClassInternal {
		return temporal.NewApplicationErrorWithCause(msg, string(class), err)
	}
	return temporal.NewNonRetryableApplicationError(msg, string(class), err)
}

package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-simjudge/internal/domain"
)

// Activity limits for one stage. Execution and judging heartbeat once per
// case, so the heartbeat timeout only has to cover the slowest model call.
const (
	StageTimeout     = 30 * time.Minute
	HeartbeatTimeout = 2 * time.Minute
)

// WorkflowID is the Temporal workflow id of a run. One run has at most one
// open workflow.
func WorkflowID(evaluationID string) string {
	return "evaluation-" + evaluationID
}

// ActivityOptions returns the options every stage activity runs with.
func ActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: StageTimeout,
		HeartbeatTimeout:    HeartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
			NonRetryableErrorTypes: []string{
				string(domain.ClassValidation),
				string(domain.ClassSource),
				string(domain.ClassNotFound),
			},
		},
	}
}

// EvaluationWorkflow drives one run through ingestion, processing, execution
// and judging, returning the final hand-off with the run summary.
func EvaluationWorkflow(ctx workflow.Context, req domain.EvaluationRequest) (*domain.Handoff, error) {
	// Version gate enables safe evolution of the stage sequence.
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "evaluation.v", workflow.DefaultVersion, currentVersion)

	if err := req.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			"invalid evaluation request",
			string(domain.ClassValidation),
			err,
		)
	}

	ctx = workflow.WithActivityOptions(ctx, ActivityOptions())
	logger := workflow.GetLogger(ctx)
	logger.Info("Evaluation started", "evaluation_id", req.EvaluationID)

	var a *Activities
	var h domain.Handoff
	if err := workflow.ExecuteActivity(ctx, a.LoadDataset, req.IngestRequest).Get(ctx, &h); err != nil {
		return nil, err
	}

	for !h.Done() {
		var f workflow.Future
		switch h.NextStage {
		case domain.StageProcessing:
			f = workflow.ExecuteActivity(ctx, a.ProcessTemplates, req.ProcessRequestFor(&h))
		case domain.StageExecution:
			f = workflow.ExecuteActivity(ctx, a.ExecuteCases, req.ExecuteRequestFor(&h))
		case domain.StageJudging:
			f = workflow.ExecuteActivity(ctx, a.JudgeResults, req.JudgeRequestFor(&h))
		default:
			return nil, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("unknown next stage %q", h.NextStage),
				string(domain.ClassInternal),
				nil,
			)
		}

		var next domain.Handoff
		if err := f.Get(ctx, &next); err != nil {
			logger.Error("Stage failed", "evaluation_id", req.EvaluationID, "stage", h.NextStage, "error", err)
			return nil, err
		}
		logger.Info("Stage completed", "evaluation_id", req.EvaluationID, "stage", h.NextStage)
		h = next
	}

	logger.Info("Evaluation completed", "evaluation_id", req.EvaluationID)
	return &h, nil
}

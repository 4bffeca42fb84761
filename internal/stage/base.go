// Package stage holds the boundary logic every pipeline stage shares: it
// stamps stage outcomes into run metadata, announces them as events and
// records stage metrics.
package stage

import (
	"context"
	"time"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/metrics"
	"github.com/ahrav/go-simjudge/internal/runstate"
	"github.com/ahrav/go-simjudge/pkg/activity"
	"github.com/ahrav/go-simjudge/pkg/events"
)

// Deps are the collaborators shared by every stage.
type Deps struct {
	Store   *runstate.Store
	Events  events.EventSink
	Metrics *metrics.Recorder
}

// Base embeds the activity infrastructure and knows which stage it serves.
type Base struct {
	activity.BaseActivities

	Store   *runstate.Store
	Metrics *metrics.Recorder
	stage   domain.Stage
}

// NewBase creates the boundary helper for stage s.
func NewBase(s domain.Stage, deps Deps) Base {
	return Base{
		BaseActivities: activity.NewBaseActivities(deps.Events, string(s)+"-stage"),
		Store:          deps.Store,
		Metrics:        deps.Metrics,
		stage:          s,
	}
}

// Stage returns the stage this base serves.
func (b *Base) Stage() domain.Stage { return b.stage }

// Complete announces a successful hand-off and returns it unchanged.
func (b *Base) Complete(
	ctx context.Context,
	started time.Time,
	run *domain.RunMetadata,
	h *domain.Handoff,
	caseCount int,
) *domain.Handoff {
	b.Metrics.StageFinished(b.stage, "ok", time.Since(started))

	now := b.Store.Now()
	payload := domain.StageCompletedPayload{
		EvaluationID: h.EvaluationID,
		Stage:        b.stage,
		NextStage:    h.NextStage,
		Status:       run.Status,
		CaseCount:    caseCount,
	}
	key := domain.StageEventKey(h.EvaluationID, b.stage, domain.EventStageCompleted, run.UpdatedAt)
	env, err := events.NewEnvelope(domain.EventStageCompleted, b.Source(), h.EvaluationID, key, now, payload)
	if err != nil {
		activity.SafeLogError(ctx, "Failed to build stage event", "error", err)
	} else {
		b.EmitEventSafe(ctx, env, string(b.stage)+" completed")
	}

	activity.SafeLog(ctx, "Stage completed",
		"stage", b.stage,
		"evaluation_id", h.EvaluationID,
		"next_stage", h.NextStage,
		"cases", caseCount,
		"duration_ms", time.Since(started).Milliseconds())
	return h
}

// Fail records a stage error and returns it unchanged. Internal errors move
// the run to failed; validation, source and not-found errors leave the run
// as it was so the caller can correct the request and retry.
func (b *Base) Fail(ctx context.Context, started time.Time, evaluationID string, err error) error {
	class := domain.Classify(err)
	b.Metrics.StageFinished(b.stage, string(class), time.Since(started))

	activity.SafeLogError(ctx, "Stage failed",
		"stage", b.stage,
		"evaluation_id", evaluationID,
		"class", class,
		"error", err)

	if evaluationID == "" {
		return err
	}

	if class == domain.ClassInternal {
		if markErr := b.Store.MarkFailed(ctx, evaluationID, b.stage, err.Error()); markErr != nil {
			activity.SafeLogError(ctx, "Failed to record run failure",
				"evaluation_id", evaluationID,
				"error", markErr)
		}
	}

	now := b.Store.Now()
	payload := domain.StageFailedPayload{
		EvaluationID: evaluationID,
		Stage:        b.stage,
		Class:        class,
		Error:        domain.NewErrorResponse(err).Error,
	}
	key := domain.StageEventKey(evaluationID, b.stage, domain.EventStageFailed, now)
	env, envErr := events.NewEnvelope(domain.EventStageFailed, b.Source(), evaluationID, key, now, payload)
	if envErr != nil {
		activity.SafeLogError(ctx, "Failed to build stage event", "error", envErr)
		return err
	}
	b.EmitEventSafe(ctx, env, string(b.stage)+" failed")
	return err
}

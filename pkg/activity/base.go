// Package activity provides infrastructure shared by the pipeline stages: run
// context extraction, safe logging, heartbeats and best-effort event
// emission. Every helper works both inside a Temporal activity and when a
// stage is called directly in-process, as the CLI runner and tests do.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/ahrav/go-simjudge/pkg/events"
)

// WorkflowContext contains metadata extracted from the Temporal activity
// context. All fields are empty when the stage runs outside Temporal.
type WorkflowContext struct {
	WorkflowID string
	RunID      string
	ActivityID string
	Attempt    int32
}

// InActivity reports whether ctx is a Temporal activity context.
func (w WorkflowContext) InActivity() bool { return w.ActivityID != "" }

// BaseActivities provides common infrastructure for all stage types.
type BaseActivities struct {
	eventSink events.EventSink
	source    string
}

// NewBaseActivities creates a BaseActivities emitting to sink under the given
// source name. The sink may be nil, which disables emission.
func NewBaseActivities(sink events.EventSink, source string) BaseActivities {
	return BaseActivities{eventSink: sink, source: source}
}

// Source returns the component name stamped on emitted events.
func (b *BaseActivities) Source() string { return b.source }

// GetWorkflowContext extracts workflow execution details from ctx.
func (b *BaseActivities) GetWorkflowContext(ctx context.Context) WorkflowContext {
	if !isActivity(ctx) {
		return WorkflowContext{}
	}
	info := activity.GetInfo(ctx)
	return WorkflowContext{
		WorkflowID: info.WorkflowExecution.ID,
		RunID:      info.WorkflowExecution.RunID,
		ActivityID: info.ActivityID,
		Attempt:    info.Attempt,
	}
}

// EmitEventSafe provides best-effort event emission with a short retry.
// Emission never fails the calling stage:
// - emission is skipped when no sink is configured
// - a failed append is retried once after 200ms
// - the outcome is logged and never propagated.
func (b *BaseActivities) EmitEventSafe(
	ctx context.Context,
	envelope events.Envelope,
	description string,
) {
	if b.eventSink == nil {
		return
	}

	if envelope.Source == "" {
		envelope.Source = b.source
	}
	if wf := b.GetWorkflowContext(ctx); wf.InActivity() {
		envelope.WorkflowID = wf.WorkflowID
		envelope.RunID = wf.RunID
	}

	const maxAttempts = 2
	const retryDelay = 200 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				SafeLogError(ctx, fmt.Sprintf("Event emission cancelled: %s", description),
					"event_type", envelope.Type)
				return
			}
		}

		if err := b.eventSink.Append(ctx, envelope); err != nil {
			lastErr = err
			continue
		}

		SafeLog(ctx, fmt.Sprintf("Event emitted: %s", description),
			"event_type", envelope.Type,
			"idempotency_key", envelope.IdempotencyKey)
		return
	}

	SafeLogError(ctx, fmt.Sprintf("Failed to emit %s after %d attempts", description, maxAttempts),
		"event_type", envelope.Type,
		"error", lastErr)
}

// RecordHeartbeat records a heartbeat when running inside an activity.
func (b *BaseActivities) RecordHeartbeat(ctx context.Context, details ...any) {
	RecordHeartbeat(ctx, details...)
}

// SafeLog logs at info level through the activity logger inside Temporal
// and through slog otherwise.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	if isActivity(ctx) {
		activity.GetLogger(ctx).Info(msg, keyvals...)
		return
	}
	slog.InfoContext(ctx, msg, keyvals...)
}

// SafeLogWarn is SafeLog at warn level.
func SafeLogWarn(ctx context.Context, msg string, keyvals ...any) {
	if isActivity(ctx) {
		activity.GetLogger(ctx).Warn(msg, keyvals...)
		return
	}
	slog.WarnContext(ctx, msg, keyvals...)
}

// SafeLogError is SafeLog at error level.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	if isActivity(ctx) {
		activity.GetLogger(ctx).Error(msg, keyvals...)
		return
	}
	slog.ErrorContext(ctx, msg, keyvals...)
}

// isActivity reports whether ctx carries a Temporal activity environment.
// activity.GetInfo panics on any other context.
func isActivity(ctx context.Context) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = activity.GetInfo(ctx)
	return true
}

// RecordHeartbeat records activity heartbeat details. Outside an activity it
// does nothing.
func RecordHeartbeat(ctx context.Context, details ...any) {
	if !isActivity(ctx) {
		return
	}
	activity.RecordHeartbeat(ctx, details...)
}

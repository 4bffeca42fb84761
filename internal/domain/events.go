package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted at stage boundaries.
const (
	// EventStageCompleted is emitted after a stage persisted its output and
	// advanced the run. Consumers use NextStage to dispatch the follow-up stage.
	EventStageCompleted = "evaluation.stage_completed"

	// EventStageFailed is emitted when a stage returns an error.
	EventStageFailed = "evaluation.stage_failed"
)

// eventNamespace scopes deterministic idempotency keys for stage events.
var eventNamespace = uuid.MustParse("6f1c52c4-6b8e-4f57-9a39-3d2f0e5b7a10")

// StageCompletedPayload describes a successful hand-off.
type StageCompletedPayload struct {
	EvaluationID string    `json:"evaluation_id"`
	Stage        Stage     `json:"stage"`
	NextStage    Stage     `json:"next_stage,omitempty"`
	Status       RunStatus `json:"status"`
	CaseCount    int       `json:"case_count"`
}

// StageFailedPayload describes a stage error as reported to the caller.
type StageFailedPayload struct {
	EvaluationID string     `json:"evaluation_id"`
	Stage        Stage      `json:"stage"`
	Class        ErrorClass `json:"class"`
	Error        string     `json:"error"`
}

// StageEventKey derives a deterministic idempotency key for a stage event, so
// a retried emission of the same outcome deduplicates downstream.
func StageEventKey(evaluationID string, stage Stage, eventType string, at time.Time) string {
	name := evaluationID + "|" + string(stage) + "|" + eventType + "|" + at.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(eventNamespace, []byte(name)).String()
}

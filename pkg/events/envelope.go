// Package events provides the event infrastructure used to announce pipeline
// stage outcomes. It defines the Envelope wrapping every event with routing
// and idempotency metadata, and the EventSink interface for transmission.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the schema version of Envelope.
const EnvelopeVersion = "1.0.0"

// Envelope wraps a domain event with consistent metadata for routing and
// deduplication.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event for routing.
	// Examples: "evaluation.stage_completed", "evaluation.stage_failed"
	Type string `json:"type"`

	// Source identifies the component that emitted this event.
	Source string `json:"source"`

	// Version enables schema evolution.
	Version string `json:"version"`

	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is derived deterministically from the event content so
	// a retried emission deduplicates downstream.
	IdempotencyKey string `json:"idempotency_key"`

	// EvaluationID identifies the run the event belongs to.
	EvaluationID string `json:"evaluation_id"`

	// WorkflowID and RunID are set when the event was emitted from a
	// Temporal activity.
	WorkflowID string `json:"workflow_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`

	// Payload carries the type-specific event data.
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope with a fresh id and the payload encoded as JSON.
func NewEnvelope(eventType, source, evaluationID, idempotencyKey string, at time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:             uuid.NewString(),
		Type:           eventType,
		Source:         source,
		Version:        EnvelopeVersion,
		Timestamp:      at,
		IdempotencyKey: idempotencyKey,
		EvaluationID:   evaluationID,
		Payload:        raw,
	}, nil
}

// EventSink emits events to downstream consumers.
type EventSink interface {
	// Append adds an event to the sink with best-effort delivery. Callers
	// must not fail their primary operation because of an Append error.
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every event.
type NoOpEventSink struct{}

// Append implements EventSink.Append with no-op behavior.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error {
	return nil
}

// NewNoOpEventSink creates a new no-op event sink.
func NewNoOpEventSink() EventSink {
	return &NoOpEventSink{}
}

package events

import (
	"context"
	"sync"
)

// MemorySink keeps events in process, deduplicated by idempotency key.
// Useful in tests and for the single-process CLI runner.
type MemorySink struct {
	mu     sync.Mutex
	events []Envelope
	seen   map[string]struct{}
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

// Append implements EventSink. A repeated idempotency key is a no-op.
func (m *MemorySink) Append(_ context.Context, envelope Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if envelope.IdempotencyKey != "" {
		if _, dup := m.seen[envelope.IdempotencyKey]; dup {
			return nil
		}
		m.seen[envelope.IdempotencyKey] = struct{}{}
	}
	m.events = append(m.events, envelope)
	return nil
}

// Events returns a copy of the appended events in order.
func (m *MemorySink) Events() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Envelope, len(m.events))
	copy(out, m.events)
	return out
}

// OfType returns the appended events with the given type.
func (m *MemorySink) OfType(eventType string) []Envelope {
	var out []Envelope
	for _, e := range m.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

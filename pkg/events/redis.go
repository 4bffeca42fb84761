package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamSink appends events to a Redis stream. Each entry carries the
// routing fields flat plus the full envelope as JSON under "envelope".
type RedisStreamSink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	dedup  time.Duration
	logger *slog.Logger
}

// RedisStreamOption configures a RedisStreamSink.
type RedisStreamOption func(*RedisStreamSink)

// WithMaxLen caps the stream length approximately.
func WithMaxLen(n int64) RedisStreamOption {
	return func(s *RedisStreamSink) { s.maxLen = n }
}

// WithDedupWindow sets how long an idempotency key suppresses re-appends.
// Zero disables deduplication.
func WithDedupWindow(d time.Duration) RedisStreamOption {
	return func(s *RedisStreamSink) { s.dedup = d }
}

// NewRedisStreamSink creates a sink writing to stream.
func NewRedisStreamSink(client redis.UniversalClient, stream string, opts ...RedisStreamOption) *RedisStreamSink {
	s := &RedisStreamSink{
		client: client,
		stream: stream,
		dedup:  24 * time.Hour,
		logger: slog.Default().With("component", "event_sink"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append implements EventSink.
func (s *RedisStreamSink) Append(ctx context.Context, envelope Envelope) error {
	if s.dedup > 0 && envelope.IdempotencyKey != "" {
		fresh, err := s.client.SetNX(ctx, s.stream+":dedup:"+envelope.IdempotencyKey, envelope.ID, s.dedup).Result()
		if err != nil {
			return fmt.Errorf("checking event idempotency: %w", err)
		}
		if !fresh {
			s.logger.DebugContext(ctx, "skipping duplicate event",
				"event_type", envelope.Type, "idempotency_key", envelope.IdempotencyKey)
			return nil
		}
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":            envelope.ID,
			"type":          envelope.Type,
			"evaluation_id": envelope.EvaluationID,
			"envelope":      raw,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	s.logger.DebugContext(ctx, "appended event",
		"stream", s.stream, "event_type", envelope.Type, "evaluation_id", envelope.EvaluationID)
	return nil
}

// Close closes the underlying client.
func (s *RedisStreamSink) Close() error {
	return s.client.Close()
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-simjudge/internal/domain"
)

var (
	errMaxAttemptsInvalid     = errors.New("maxAttempts must be greater than 0")
	errInitialIntervalInvalid = errors.New("initialInterval must be greater than 0")
	errMaxIntervalInvalid     = errors.New("maxInterval must be >= initialInterval")
	errMultiplierInvalid      = errors.New("multiplier must be >= 1.0")
)

// RetryConfig controls exponential backoff between provider attempts.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" validate:"min=1"`
	InitialInterval time.Duration `yaml:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `yaml:"max_interval" validate:"gtefield=InitialInterval"`
	Multiplier      float64       `yaml:"multiplier" validate:"gte=1"`
	UseJitter       bool          `yaml:"use_jitter"`
}

// DefaultRetryConfig returns three attempts starting at one second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		UseJitter:       true,
	}
}

func (c RetryConfig) validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, c.MaxAttempts)
	}
	if c.InitialInterval <= 0 {
		return fmt.Errorf("%w, got %v", errInitialIntervalInvalid, c.InitialInterval)
	}
	if c.MaxInterval < c.InitialInterval {
		return fmt.Errorf("%w, MaxInterval: %v, InitialInterval: %v", errMaxIntervalInvalid, c.MaxInterval, c.InitialInterval)
	}
	if c.Multiplier < 1.0 {
		return fmt.Errorf("%w, got %f", errMultiplierInvalid, c.Multiplier)
	}
	return nil
}

// WithRetry retries transient provider failures with exponential backoff.
// A Retry-After hint from the provider takes precedence over the computed
// delay, capped at MaxInterval.
func WithRetry(cfg RetryConfig) (Middleware, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := slog.Default().With("component", "retry")

	return func(next Provider) Provider {
		return ProviderFunc(func(ctx context.Context, prompt string, mc domain.ModelConfig) (string, error) {
			var lastErr error
			for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
				if err := ctx.Err(); err != nil {
					if lastErr != nil {
						return "", fmt.Errorf("context done after %d attempts: %w", attempt-1, lastErr)
					}
					return "", err
				}

				text, err := next.Generate(ctx, prompt, mc)
				if err == nil {
					return text, nil
				}
				lastErr = err

				if !IsRetryable(err) || attempt == cfg.MaxAttempts {
					break
				}

				delay := backoff(cfg, attempt, err)
				logger.DebugContext(ctx, "retrying provider call",
					"model", mc.ModelName,
					"attempt", attempt,
					"delay", delay,
					"error", err)

				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return "", fmt.Errorf("context done during retry backoff: %w", lastErr)
				case <-timer.C:
				}
			}
			return "", lastErr
		})
	}, nil
}

// backoff computes the delay before attempt+1 using full jitter.
func backoff(cfg RetryConfig, attempt int, err error) time.Duration {
	if hint := retryAfter(err); hint > 0 {
		return min(hint, cfg.MaxInterval)
	}

	delay := cfg.InitialInterval
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxInterval {
			delay = cfg.MaxInterval
			break
		}
	}

	if cfg.UseJitter {
		jitterMs := rand.Int64N(delay.Milliseconds() + 1) // #nosec G404 -- non-cryptographic jitter is appropriate here
		return time.Duration(jitterMs) * time.Millisecond
	}
	return delay
}

package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahrav/go-simjudge/internal/domain"
)

// WithLogging logs every call's model, latency and outcome at debug level,
// and failures at warn.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "llm")

	return func(next Provider) Provider {
		return ProviderFunc(func(ctx context.Context, prompt string, mc domain.ModelConfig) (string, error) {
			start := time.Now()
			text, err := next.Generate(ctx, prompt, mc)
			attrs := []any{
				"model", mc.ModelName,
				"prompt_chars", len(prompt),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.WarnContext(ctx, "provider call failed", append(attrs, "error", err)...)
				return "", err
			}
			logger.DebugContext(ctx, "provider call completed", append(attrs, "response_chars", len(text))...)
			return text, nil
		})
	}
}

package llm

import (
	"context"
	"time"

	"github.com/ahrav/go-simjudge/internal/domain"
)

// WithTimeout bounds every call to next by d. Non-positive d disables it.
func WithTimeout(d time.Duration) Middleware {
	if d <= 0 {
		return nil
	}
	return func(next Provider) Provider {
		return ProviderFunc(func(ctx context.Context, prompt string, mc domain.ModelConfig) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Generate(ctx, prompt, mc)
		})
	}
}

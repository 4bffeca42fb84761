package llm

import (
	"context"
	"math"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-simjudge/internal/domain"
)

// RateLimitConfig sets a token bucket per model.
type RateLimitConfig struct {
	TokensPerSecond float64 `yaml:"tokens_per_second" validate:"gte=0"`
	Burst           int     `yaml:"burst" validate:"gte=0"`
}

// rateLimiter keeps one token bucket per model name so a slow judge model
// does not starve execution calls and vice versa.
type rateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func (r *rateLimiter) limiterFor(model string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[model]
	if !ok {
		burst := max(r.cfg.Burst, 1)
		l = rate.NewLimiter(rate.Limit(r.cfg.TokensPerSecond), burst)
		r.limiters[model] = l
	}
	return l
}

// WithRateLimit blocks each call until the model's bucket has a token. A
// zero TokensPerSecond disables limiting. When the wait cannot complete
// before the context deadline a *RateLimitError is returned.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.TokensPerSecond <= 0 {
		return nil
	}
	rl := &rateLimiter{cfg: cfg, limiters: make(map[string]*rate.Limiter)}

	return func(next Provider) Provider {
		return ProviderFunc(func(ctx context.Context, prompt string, mc domain.ModelConfig) (string, error) {
			if err := rl.limiterFor(mc.ModelName).Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				return "", &RateLimitError{
					Provider:   "local",
					Limit:      int(math.Ceil(cfg.TokensPerSecond)),
					RetryAfter: max(1, int(math.Ceil(1/cfg.TokensPerSecond))),
				}
			}
			return next.Generate(ctx, prompt, mc)
		})
	}
}

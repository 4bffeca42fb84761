// Package llm defines the text-generation seam used by the execution and
// judging stages, together with composable middleware for timeouts, retries,
// rate limiting, response caching and logging.
//
// Concrete vendor adapters live in the providers subpackage; llmtest holds a
// deterministic stub for tests.
package llm

import (
	"context"
	"errors"

	"github.com/ahrav/go-simjudge/internal/domain"
)

// ErrEmptyPrompt is returned when a provider is asked to complete nothing.
var ErrEmptyPrompt = errors.New("empty prompt")

// Provider produces a completion for a single-turn prompt. Implementations
// must be safe for concurrent use; stages call Generate from many goroutines.
type Provider interface {
	Generate(ctx context.Context, prompt string, cfg domain.ModelConfig) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, prompt string, cfg domain.ModelConfig) (string, error)

// Generate calls f.
func (f ProviderFunc) Generate(ctx context.Context, prompt string, cfg domain.ModelConfig) (string, error) {
	return f(ctx, prompt, cfg)
}

// Middleware wraps a Provider with cross-cutting behavior.
type Middleware func(Provider) Provider

// Chain wraps p so that the first middleware is the outermost.
func Chain(p Provider, mws ...Middleware) Provider {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			p = mws[i](p)
		}
	}
	return p
}

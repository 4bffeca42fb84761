// Package providers adapts vendor SDKs to llm.Provider and routes each call
// to the vendor that serves the requested model.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/llm"
)

// Supported provider identifiers. These match the configuration keys.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var (
	// ErrUnknownProvider indicates a configuration names an unsupported vendor.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrMissingAPIKey indicates a provider was configured without credentials.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Config holds one vendor's connection settings.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// modelPrefixes maps model-name prefixes onto the vendor serving them.
var modelPrefixes = []struct {
	prefix   string
	provider string
}{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"chatgpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
}

// Router is an llm.Provider that dispatches on the model name. A model may
// also be addressed explicitly as "{provider}/{model}".
type Router struct {
	providers map[string]llm.Provider
}

// NewRouter builds vendor clients for every entry of configs.
func NewRouter(configs map[string]Config) (*Router, error) {
	r := &Router{providers: make(map[string]llm.Provider, len(configs))}
	for name, cfg := range configs {
		var (
			p   llm.Provider
			err error
		)
		switch name {
		case ProviderAnthropic:
			p, err = NewAnthropic(cfg)
		case ProviderOpenAI:
			p, err = NewOpenAI(cfg)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
		}
		if err != nil {
			return nil, err
		}
		r.providers[name] = p
	}
	return r, nil
}

// NewRouterWith builds a router over prebuilt providers, keyed by vendor name.
func NewRouterWith(providers map[string]llm.Provider) *Router {
	return &Router{providers: providers}
}

// Providers lists the configured vendor names.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pick returns the provider for model and the model name to send to it.
func (r *Router) Pick(model string) (llm.Provider, string, error) {
	if vendor, rest, ok := strings.Cut(model, "/"); ok {
		if p, found := r.providers[vendor]; found {
			return p, rest, nil
		}
	}

	lower := strings.ToLower(model)
	for _, mp := range modelPrefixes {
		if !strings.HasPrefix(lower, mp.prefix) {
			continue
		}
		if p, ok := r.providers[mp.provider]; ok {
			return p, model, nil
		}
		return nil, "", fmt.Errorf("%w: %s is served by %s, which is not configured",
			llm.ErrUnknownModel, model, mp.provider)
	}
	return nil, "", fmt.Errorf("%w: %s", llm.ErrUnknownModel, model)
}

// Generate implements llm.Provider.
func (r *Router) Generate(ctx context.Context, prompt string, cfg domain.ModelConfig) (string, error) {
	p, model, err := r.Pick(cfg.ModelName)
	if err != nil {
		return "", err
	}
	cfg.ModelName = model
	return p.Generate(ctx, prompt, cfg)
}

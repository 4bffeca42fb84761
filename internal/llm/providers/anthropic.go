package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/llm"
)

// Anthropic serves Claude models through the Messages API.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic creates an Anthropic provider. The SDK's own retries are
// disabled; llm.WithRetry owns retry policy.
func NewAnthropic(cfg Config) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", ProviderAnthropic, ErrMissingAPIKey)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Anthropic{client: anthropic.NewClient(opts...)}, nil
}

// Generate implements llm.Provider.
func (a *Anthropic) Generate(ctx context.Context, prompt string, cfg domain.ModelConfig) (string, error) {
	if prompt == "" {
		return "", llm.ErrEmptyPrompt
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(cfg.ModelName),
		MaxTokens:   int64(cfg.MaxTokens),
		Temperature: anthropic.Float(cfg.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", wrapAnthropicError(err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%s: %w: no text content (stop reason %q)",
			ProviderAnthropic, llm.ErrInvalidResponse, resp.StopReason)
	}
	return b.String(), nil
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	code, message := "", apiErr.Error()
	var payload anthropicErrorPayload
	if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &payload) == nil {
		code = payload.Error.Type
		if payload.Error.Message != "" {
			message = payload.Error.Message
		}
	}

	pe := llm.NewProviderError(ProviderAnthropic, apiErr.StatusCode, code, message, err)
	if apiErr.Response != nil {
		if secs, convErr := strconv.Atoi(apiErr.Response.Header.Get("retry-after")); convErr == nil {
			pe.RetryAfter = secs
		}
	}
	return pe
}

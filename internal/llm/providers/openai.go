package providers

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/llm"
)

// OpenAI serves GPT and o-series models through Chat Completions.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", ProviderOpenAI, ErrMissingAPIKey)
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	return &OpenAI{client: openai.NewClientWithConfig(oc)}, nil
}

// Generate implements llm.Provider.
func (o *OpenAI) Generate(ctx context.Context, prompt string, cfg domain.ModelConfig) (string, error) {
	if prompt == "" {
		return "", llm.ErrEmptyPrompt
	}

	temperature := float32(cfg.Temperature)
	if temperature == 0 {
		// The client drops a zero temperature as omitempty, which the API
		// reads as 1.0.
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       cfg.ModelName,
		MaxTokens:   cfg.MaxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%s: %w: no choices", ProviderOpenAI, llm.ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Type
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		return llm.NewProviderError(ProviderOpenAI, apiErr.HTTPStatusCode, code, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.NewProviderError(ProviderOpenAI, reqErr.HTTPStatusCode, "", reqErr.Error(), err)
	}
	return err
}

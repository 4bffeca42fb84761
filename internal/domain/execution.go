package domain

import "time"

// Model configuration defaults applied per absent field.
const (
	DefaultModelName   = "claude-3-5-sonnet-latest"
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.1
)

// ModelConfig is the flat set of generation parameters passed verbatim to
// every provider call and recorded with each result for reproducibility.
type ModelConfig struct {
	ModelName   string  `json:"model_name" yaml:"model_name" validate:"required"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" validate:"min=1"`
	Temperature float64 `json:"temperature" yaml:"temperature" validate:"min=0,max=2"`
}

// Validate checks field ranges.
func (c ModelConfig) Validate() error { return validate.Struct(c) }

// DefaultModelConfig returns the generation parameters used when a request
// supplies none.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		ModelName:   DefaultModelName,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// ModelConfigInput is the request-side shape of ModelConfig. Pointer fields
// distinguish an absent value from an explicit zero temperature.
type ModelConfigInput struct {
	ModelName   *string  `json:"model_name,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Resolve fills absent fields from base and validates the result.
func (in *ModelConfigInput) Resolve(base ModelConfig) (ModelConfig, error) {
	cfg := base
	if in != nil {
		if in.ModelName != nil {
			cfg.ModelName = *in.ModelName
		}
		if in.MaxTokens != nil {
			cfg.MaxTokens = *in.MaxTokens
		}
		if in.Temperature != nil {
			cfg.Temperature = *in.Temperature
		}
	}
	if err := validateStruct(cfg); err != nil {
		return ModelConfig{}, err
	}
	return cfg, nil
}

// ExecutionResult is the outcome of sending one processed case to the model.
// A failed call is recorded with Success false and no ModelResponse.
type ExecutionResult struct {
	CaseID            string            `json:"case_id" validate:"required"`
	Index             int               `json:"index" validate:"min=0"`
	Success           bool              `json:"success"`
	Error             string            `json:"error,omitempty"`
	OriginalQuery     string            `json:"original_query"`
	ExpectedResponse  string            `json:"expected_response"`
	ProcessedPrompt   string            `json:"processed_prompt"`
	ModelResponse     *string           `json:"model_response"`
	LatencyMs         int64             `json:"latency_ms" validate:"min=0"`
	ModelConfig       ModelConfig       `json:"model_config"`
	TemplateVariables map[string]string `json:"template_variables,omitempty"`
}

// Usable reports whether the result carries a non-empty response worth judging.
func (r *ExecutionResult) Usable() bool {
	return r.Success && r.ModelResponse != nil && *r.ModelResponse != ""
}

// ExecutionBatch is the execution-results namespace entry of a run.
type ExecutionBatch struct {
	EvaluationID    string            `json:"evaluation_id" validate:"required"`
	TotalCases      int               `json:"total_cases" validate:"min=0"`
	SuccessfulCases int               `json:"successful_cases" validate:"min=0"`
	FailedCases     int               `json:"failed_cases" validate:"min=0"`
	ModelConfig     ModelConfig       `json:"model_config"`
	Results         []ExecutionResult `json:"results" validate:"dive"`
	CompletedAt     time.Time         `json:"completed_at" validate:"required"`
}

// Validate checks required fields and that the counters agree with the results.
func (b *ExecutionBatch) Validate() error {
	if err := validate.Struct(b); err != nil {
		return err
	}
	if b.TotalCases != len(b.Results) || b.SuccessfulCases+b.FailedCases != b.TotalCases {
		return errBatchCounters
	}
	return nil
}

// Summary derives the metadata summary of the batch.
func (b *ExecutionBatch) Summary() *ExecutionSummary {
	s := &ExecutionSummary{
		TotalCases:      b.TotalCases,
		SuccessfulCases: b.SuccessfulCases,
		FailedCases:     b.FailedCases,
		ModelName:       b.ModelConfig.ModelName,
	}
	if b.TotalCases > 0 {
		s.SuccessRate = roundTo(float64(b.SuccessfulCases)/float64(b.TotalCases)*100, 1)
	}
	return s
}

// ExecutionSummary is stamped into run metadata when execution completes.
type ExecutionSummary struct {
	TotalCases      int     `json:"total_cases"`
	SuccessfulCases int     `json:"successful_cases"`
	FailedCases     int     `json:"failed_cases"`
	SuccessRate     float64 `json:"success_rate"`
	ModelName       string  `json:"model_name"`
}

package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIngestRequest() IngestRequest {
	return IngestRequest{
		EvaluationID:   "eval-1",
		PromptTemplate: &PromptTemplate{Template: "{{query}}", Variables: []string{"query"}},
		DatasetJSON:    json.RawMessage(`[{"query":"q","response":"r"}]`),
	}
}

func TestIngestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *IngestRequest)
		wantErr bool
	}{
		{"valid", func(*IngestRequest) {}, false},
		{"missing evaluation id", func(r *IngestRequest) { r.EvaluationID = "" }, true},
		{"missing template", func(r *IngestRequest) { r.PromptTemplate = nil }, true},
		{"empty template text", func(r *IngestRequest) { r.PromptTemplate.Template = "" }, true},
		{"nil variables", func(r *IngestRequest) { r.PromptTemplate.Variables = nil }, true},
		{"blank variable name", func(r *IngestRequest) { r.PromptTemplate.Variables = []string{""} }, true},
		{"malformed url", func(r *IngestRequest) { r.DatasetURL = "not a url" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validIngestRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidRequest)
				assert.Equal(t, ClassValidation, Classify(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestIngestRequest_HasInlineDataset(t *testing.T) {
	assert.True(t, (&IngestRequest{DatasetJSON: json.RawMessage(`[]`)}).HasInlineDataset())
	assert.False(t, (&IngestRequest{DatasetJSON: json.RawMessage(` null `)}).HasInlineDataset())
	assert.False(t, (&IngestRequest{}).HasInlineDataset())
}

// TestModelConfigInput_Resolve checks per-field defaults, including that an
// explicit zero temperature is not replaced by the default.
func TestModelConfigInput_Resolve(t *testing.T) {
	zero := 0.0
	name := "claude-3-opus-latest"
	negative := -1

	cfg, err := (*ModelConfigInput)(nil).Resolve(DefaultModelConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultModelConfig(), cfg)

	cfg, err = (&ModelConfigInput{Temperature: &zero, ModelName: &name}).Resolve(DefaultModelConfig())
	require.NoError(t, err)
	assert.Equal(t, ModelConfig{ModelName: name, MaxTokens: DefaultMaxTokens, Temperature: 0}, cfg)

	_, err = (&ModelConfigInput{MaxTokens: &negative}).Resolve(DefaultModelConfig())
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestModelConfigInput_JSONAbsentFields(t *testing.T) {
	var in ModelConfigInput
	require.NoError(t, json.Unmarshal([]byte(`{"max_tokens": 256}`), &in))

	cfg, err := in.Resolve(DefaultModelConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultModelName, cfg.ModelName)
	assert.Equal(t, 256, cfg.MaxTokens)
	assert.InDelta(t, DefaultTemperature, cfg.Temperature, 1e-9)
}

func TestEvaluationRequest_FlattenedJSON(t *testing.T) {
	raw := `{
		"evaluation_id": "eval-9",
		"prompt_template": {"template": "Q: {{query}}", "variables": ["query"]},
		"dataset_path": "data.json",
		"model_config": {"temperature": 0},
		"judge_model": "claude-3-5-haiku-latest",
		"similarity_threshold": 70
	}`

	var req EvaluationRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	require.NoError(t, req.Validate())

	assert.Equal(t, "eval-9", req.EvaluationID)
	assert.Equal(t, "data.json", req.DatasetPath)

	h := &Handoff{EvaluationID: "eval-9", NextStage: StageProcessing}
	pr := req.ProcessRequestFor(h)
	require.NotNil(t, pr.ModelConfig)
	require.NotNil(t, pr.ModelConfig.Temperature)
	assert.Zero(t, *pr.ModelConfig.Temperature)

	jr := req.JudgeRequestFor(h)
	require.NotNil(t, jr.SimilarityThreshold)
	assert.Equal(t, 70, *jr.SimilarityThreshold)
}

func TestEvaluationRequest_RejectsBadThreshold(t *testing.T) {
	bad := 120
	req := EvaluationRequest{IngestRequest: validIngestRequest(), SimilarityThreshold: &bad}
	require.ErrorIs(t, req.Validate(), ErrInvalidRequest)
}

func TestRecord_Field(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"query":"q","n":12.50,"tags":["a","b"],"flag":true}`), &rec))

	v, ok := rec.Field("query")
	assert.True(t, ok)
	assert.Equal(t, "q", v)

	v, _ = rec.Field("n")
	assert.Equal(t, "12.50", v)

	v, _ = rec.Field("tags")
	assert.Equal(t, `["a","b"]`, v)

	v, _ = rec.Field("flag")
	assert.Equal(t, "true", v)

	_, ok = rec.Field("missing")
	assert.False(t, ok)
}

// Package domain provides the core types of the evaluation pipeline: stage
// requests and hand-offs, the records each stage persists, the run status
// lifecycle, and the error taxonomy shared by every stage.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IngestRequest starts a run by loading its dataset and prompt template.
// Exactly one of DatasetPath, DatasetURL and DatasetJSON must be set.
type IngestRequest struct {
	EvaluationID   string          `json:"evaluation_id" validate:"required"`
	PromptTemplate *PromptTemplate `json:"prompt_template" validate:"required"`
	Format         DatasetFormat   `json:"format,omitempty"`
	DatasetPath    string          `json:"dataset_path,omitempty"`
	DatasetURL     string          `json:"dataset_url,omitempty" validate:"omitempty,url"`
	DatasetJSON    json.RawMessage `json:"dataset_json,omitempty"`

	// Replace allows re-ingesting an existing evaluation id with different input.
	Replace bool `json:"replace,omitempty"`
}

// Validate checks required fields. Source selection is left to the ingestor.
func (r *IngestRequest) Validate() error {
	return validateStruct(r)
}

// HasInlineDataset reports whether DatasetJSON carries a value. An explicit
// JSON null counts as absent.
func (r *IngestRequest) HasInlineDataset() bool {
	trimmed := bytes.TrimSpace(r.DatasetJSON)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ProcessRequest asks the case processor to render prompts for a run.
// ModelConfig, when present, is carried forward to the execution stage.
type ProcessRequest struct {
	EvaluationID string            `json:"evaluation_id" validate:"required"`
	ModelConfig  *ModelConfigInput `json:"model_config,omitempty"`
}

// Validate checks required fields.
func (r *ProcessRequest) Validate() error { return validateStruct(r) }

// ExecuteRequest asks the execution stage to run every processed case.
type ExecuteRequest struct {
	EvaluationID string            `json:"evaluation_id" validate:"required"`
	ModelConfig  *ModelConfigInput `json:"model_config,omitempty"`
}

// Validate checks required fields.
func (r *ExecuteRequest) Validate() error { return validateStruct(r) }

// JudgeRequest asks the judging stage to score a run's execution results.
// Zero values fall back to the configured judge model and threshold.
type JudgeRequest struct {
	EvaluationID        string `json:"evaluation_id" validate:"required"`
	JudgeModel          string `json:"judge_model,omitempty"`
	SimilarityThreshold *int   `json:"similarity_threshold,omitempty" validate:"omitempty,min=0,max=100"`
}

// Validate checks required fields.
func (r *JudgeRequest) Validate() error { return validateStruct(r) }

// Handoff is a stage's success response. NextStage names the stage to invoke
// next and is empty after judging, whose hand-off carries the run summary.
type Handoff struct {
	EvaluationID string             `json:"evaluation_id"`
	NextStage    Stage              `json:"next_stage,omitempty"`
	ModelConfig  *ModelConfigInput  `json:"model_config,omitempty"`
	Summary      *ComparisonSummary `json:"summary,omitempty"`
}

// Done reports whether the hand-off ends the pipeline.
func (h *Handoff) Done() bool { return h.NextStage == "" }

// EvaluationRequest drives a whole run through all four stages.
type EvaluationRequest struct {
	IngestRequest

	ModelConfig         *ModelConfigInput `json:"model_config,omitempty"`
	JudgeModel          string            `json:"judge_model,omitempty"`
	SimilarityThreshold *int              `json:"similarity_threshold,omitempty" validate:"omitempty,min=0,max=100"`
}

// Validate checks the ingestion fields and the judging overrides.
func (r *EvaluationRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.ModelConfig != nil {
		if _, err := r.ModelConfig.Resolve(DefaultModelConfig()); err != nil {
			return err
		}
	}
	return nil
}

// ProcessRequestFor builds the processing request that follows h.
func (r *EvaluationRequest) ProcessRequestFor(h *Handoff) ProcessRequest {
	return ProcessRequest{EvaluationID: h.EvaluationID, ModelConfig: r.modelConfig(h)}
}

// ExecuteRequestFor builds the execution request that follows h.
func (r *EvaluationRequest) ExecuteRequestFor(h *Handoff) ExecuteRequest {
	return ExecuteRequest{EvaluationID: h.EvaluationID, ModelConfig: r.modelConfig(h)}
}

// JudgeRequestFor builds the judging request that follows h.
func (r *EvaluationRequest) JudgeRequestFor(h *Handoff) JudgeRequest {
	return JudgeRequest{
		EvaluationID:        h.EvaluationID,
		JudgeModel:          r.JudgeModel,
		SimilarityThreshold: r.SimilarityThreshold,
	}
}

func (r *EvaluationRequest) modelConfig(h *Handoff) *ModelConfigInput {
	if h.ModelConfig != nil {
		return h.ModelConfig
	}
	return r.ModelConfig
}

// String renders the request for logs without the dataset payload.
func (r *EvaluationRequest) String() string {
	return fmt.Sprintf("EvaluationRequest{id=%s format=%s path=%q url=%q inline=%t}",
		r.EvaluationID, r.Format, r.DatasetPath, r.DatasetURL, r.HasInlineDataset())
}

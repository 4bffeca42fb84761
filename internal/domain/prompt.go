package domain

// PromptTemplate is a prompt with double-brace placeholders and the set of
// variable names it declares. The placeholders present in Template must equal
// Variables exactly; that is checked once, when the template is ingested.
type PromptTemplate struct {
	// Template is the prompt text, e.g. "Answer briefly: {{query}}".
	Template string `json:"template" validate:"required"`

	// Variables lists the declared placeholder names in binding order.
	Variables []string `json:"variables" validate:"required,dive,required"`
}

// Validate checks required fields.
func (p *PromptTemplate) Validate() error { return validate.Struct(p) }

// TemplateEntry is the template namespace entry of a run.
type TemplateEntry struct {
	EvaluationID string         `json:"evaluation_id" validate:"required"`
	Template     PromptTemplate `json:"prompt_template"`
}

// Validate checks required fields.
func (t *TemplateEntry) Validate() error { return validate.Struct(t) }

// ProcessedCase is one dataset record bound to the run's template.
type ProcessedCase struct {
	CaseID            string            `json:"case_id" validate:"required"`
	Index             int               `json:"index" validate:"min=0"`
	OriginalQuery     string            `json:"original_query"`
	ExpectedResponse  string            `json:"expected_response"`
	ProcessedPrompt   string            `json:"processed_prompt"`
	TemplateVariables map[string]string `json:"template_variables"`
}

// ProcessedBatch is the processed-cases namespace entry of a run.
type ProcessedBatch struct {
	EvaluationID string          `json:"evaluation_id" validate:"required"`
	Cases        []ProcessedCase `json:"cases" validate:"required,dive"`
}

// Validate checks required fields of the batch and every case.
func (b *ProcessedBatch) Validate() error { return validate.Struct(b) }

// NewProcessedCase builds a case, copying the bindings so callers cannot
// mutate the stored value afterwards.
func NewProcessedCase(caseID string, index int, rec Record, prompt string, bindings map[string]string) ProcessedCase {
	return ProcessedCase{
		CaseID:            caseID,
		Index:             index,
		OriginalQuery:     rec.Query(),
		ExpectedResponse:  rec.Response(),
		ProcessedPrompt:   prompt,
		TemplateVariables: cloneStringMap(bindings),
	}
}

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DatasetFormat tags the structural contract a dataset is validated against.
type DatasetFormat string

// FormatQueryResponsePairs requires every record to carry string query and response fields.
const FormatQueryResponsePairs DatasetFormat = "query_response_pairs"

// DefaultFormat is applied when a request omits the format.
const DefaultFormat = FormatQueryResponsePairs

// Record is one dataset element. Field values are kept as raw JSON so
// pass-through fields survive storage without numeric or ordering drift.
type Record map[string]json.RawMessage

// Field returns the textual value of a field for template binding.
// JSON strings bind their unquoted text, anything else its compact JSON text.
func (r Record) Field(name string) (string, bool) {
	raw, ok := r[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

// Query returns the record's query text.
func (r Record) Query() string {
	s, _ := r.Field("query")
	return s
}

// Response returns the record's ground-truth response text.
func (r Record) Response() string {
	s, _ := r.Field("response")
	return s
}

// SourceKind identifies where a dataset was loaded from.
type SourceKind string

const (
	SourceLocalFile   SourceKind = "local_file"
	SourceExternalURL SourceKind = "external_url"
	SourceInlineJSON  SourceKind = "inline_json"
)

// SourceDescriptor records dataset provenance for auditability.
type SourceDescriptor struct {
	Kind         SourceKind `json:"type" validate:"required,oneof=local_file external_url inline_json"`
	Location     string     `json:"location" validate:"required"`
	AbsolutePath string     `json:"absolute_path,omitempty"`
	StatusCode   int        `json:"status_code,omitempty"`
	SizeBytes    int64      `json:"size_bytes"`
}

// Dataset is the dataset namespace entry of a run.
type Dataset struct {
	EvaluationID string           `json:"evaluation_id" validate:"required"`
	Format       DatasetFormat    `json:"format" validate:"required"`
	Source       SourceDescriptor `json:"source"`
	Records      []Record         `json:"data" validate:"required,min=1"`
}

// Validate checks required fields.
func (d *Dataset) Validate() error {
	if err := validate.Struct(d); err != nil {
		return err
	}
	for i, rec := range d.Records {
		if _, ok := rec["query"]; !ok {
			return fmt.Errorf("record %d: %w", i, errMissingQueryResponse)
		}
		if _, ok := rec["response"]; !ok {
			return fmt.Errorf("record %d: %w", i, errMissingQueryResponse)
		}
	}
	return nil
}

var errMissingQueryResponse = errors.New("missing query or response")

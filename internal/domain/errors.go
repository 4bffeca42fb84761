package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest indicates that a stage request contains invalid data.
var ErrInvalidRequest = errors.New("invalid request")

// ErrSourceSelection indicates that zero or several dataset sources were supplied.
var ErrSourceSelection = errors.New("exactly one of dataset_path, dataset_url, or dataset_json must be provided")

// ErrSourceNotFound indicates that a local dataset file does not exist.
var ErrSourceNotFound = errors.New("dataset source not found")

// ErrSourceFetch indicates that a remote dataset could not be retrieved.
var ErrSourceFetch = errors.New("dataset fetch failed")

// ErrSourceShape indicates that an inline dataset payload is not a sequence.
var ErrSourceShape = errors.New("dataset_json must be a list")

// ErrUnsupportedFormat indicates that the requested dataset format is unknown.
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// ErrNotFound indicates that a run or one of its namespace entries is absent.
var ErrNotFound = errors.New("not found")

// ErrRunExists indicates that an evaluation id is already bound to different input.
var ErrRunExists = errors.New("evaluation already exists with different input")

// ErrIllegalTransition indicates that a stage was invoked out of lifecycle order.
var ErrIllegalTransition = errors.New("illegal run status transition")

// UnboundVariableError is returned when a declared template variable has no binding.
type UnboundVariableError struct {
	Variable string
}

func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("template variable %q has no binding", e.Variable)
}

// UnsubstitutedPlaceholderError is returned when rendering leaves placeholders behind.
type UnsubstitutedPlaceholderError struct {
	Names []string
}

func (e *UnsubstitutedPlaceholderError) Error() string {
	return "rendered prompt still contains placeholders: " + strings.Join(e.Names, ", ")
}

// TemplateMismatchError reports the symmetric difference between the placeholders
// used in a template and the variables declared for it.
type TemplateMismatchError struct {
	Undeclared []string // used in the template but not declared
	Unused     []string // declared but never used
}

func (e *TemplateMismatchError) Error() string {
	var parts []string
	if len(e.Undeclared) > 0 {
		parts = append(parts, "undeclared variables: "+strings.Join(e.Undeclared, ", "))
	}
	if len(e.Unused) > 0 {
		parts = append(parts, "unused variables: "+strings.Join(e.Unused, ", "))
	}
	return "template declaration mismatch: " + strings.Join(parts, "; ")
}

// DatasetShapeError reports the first dataset element that failed format validation.
// Index is -1 when the failure concerns the dataset as a whole.
type DatasetShapeError struct {
	Index  int
	Reason string
}

func (e *DatasetShapeError) Error() string {
	if e.Index < 0 {
		return "invalid dataset: " + e.Reason
	}
	return fmt.Sprintf("invalid dataset: item %d %s", e.Index, e.Reason)
}

// MissingVariableError is returned when a dataset record lacks a field the
// template needs.
type MissingVariableError struct {
	Variable string
	Index    int
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("variable %q not found in case %d", e.Variable, e.Index)
}

// SchemaMismatchError is returned when a stored record does not decode into
// its expected type or fails required-field validation.
type SchemaMismatchError struct {
	Namespace string
	Key       string
	Cause     error
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("stored record %s/%s does not match schema: %v", e.Namespace, e.Key, e.Cause)
}

func (e *SchemaMismatchError) Unwrap() error { return e.Cause }

// ErrorClass groups errors by how they are reported to a caller.
type ErrorClass string

const (
	// ClassValidation covers bad input; surfaced verbatim and never retried.
	ClassValidation ErrorClass = "Validation"
	// ClassSource covers dataset acquisition failures; surfaced verbatim.
	ClassSource ErrorClass = "Source"
	// ClassNotFound covers absent runs or namespace entries.
	ClassNotFound ErrorClass = "NotFound"
	// ClassInternal covers everything else.
	ClassInternal ErrorClass = "Internal"
)

// Classify maps an error onto its reporting class.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	// A corrupt stored record is never the caller's fault, even though its
	// cause may be a validation failure.
	var schema *SchemaMismatchError
	if errors.As(err, &schema) {
		return ClassInternal
	}

	var (
		unbound    *UnboundVariableError
		unsubst    *UnsubstitutedPlaceholderError
		mismatch   *TemplateMismatchError
		shape      *DatasetShapeError
		missingVar *MissingVariableError
	)
	switch {
	case errors.As(err, &unbound), errors.As(err, &unsubst), errors.As(err, &mismatch),
		errors.As(err, &shape), errors.As(err, &missingVar),
		errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrSourceSelection),
		errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrRunExists),
		errors.Is(err, ErrIllegalTransition):
		return ClassValidation
	case errors.Is(err, ErrSourceNotFound), errors.Is(err, ErrSourceFetch), errors.Is(err, ErrSourceShape):
		return ClassSource
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	default:
		return ClassInternal
	}
}

// ErrorResponse is the single-field error shape returned by every stage.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewErrorResponse builds the caller-facing error. Internal errors are reduced
// to a generic message so storage or provider details do not leak.
func NewErrorResponse(err error) ErrorResponse {
	if Classify(err) == ClassInternal {
		return ErrorResponse{Error: "internal error"}
	}
	return ErrorResponse{Error: err.Error()}
}

package domain

import (
	"fmt"
	"maps"

	"github.com/go-playground/validator/v10"
)

// validate is the package-level validator instance used for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validatable is implemented by every record persisted in the run state store.
type Validatable interface {
	Validate() error
}

// validateStruct runs tag validation and wraps failures so callers can match
// ErrInvalidRequest.
func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// cloneStringMap creates a copy of a string map to prevent aliasing.
// Returns nil for nil input to maintain consistency.
func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	result := make(map[string]string, len(m))
	maps.Copy(result, m)
	return result
}

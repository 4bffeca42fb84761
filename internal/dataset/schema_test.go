package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-simjudge/internal/domain"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

func TestValidator_Parse(t *testing.T) {
	v := newTestValidator(t)

	records, err := v.Parse(domain.FormatQueryResponsePairs,
		[]byte(`[{"query":"q1","response":"r1","context":{"k":1}},{"query":"q2","response":"r2"}]`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "q1", records[0].Query())
	assert.Equal(t, "r2", records[1].Response())

	ctx, ok := records[0].Field("context")
	require.True(t, ok)
	assert.JSONEq(t, `{"k":1}`, ctx)
}

// TestValidator_RejectsMalformed checks that every malformed dataset is wholly
// rejected and that the first offending index is reported.
func TestValidator_RejectsMalformed(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name       string
		data       string
		wantIndex  int
		wantReason string
	}{
		{"empty list", `[]`, -1, "empty"},
		{"not a list", `{"query":"q","response":"r"}`, -1, "list"},
		{"invalid json", `[{"query":`, -1, "invalid JSON"},
		{"missing response", `[{"query":"q"}]`, 0, "response"},
		{"missing query in second", `[{"query":"q","response":"r"},{"response":"r"}]`, 1, "query"},
		{"non-string query", `[{"query":42,"response":"r"}]`, 0, "query"},
		{"non-string response", `[{"query":"q","response":["r"]}]`, 0, "response"},
		{"element not an object", `[{"query":"q","response":"r"},"text"]`, 1, "object"},
		{"first of several bad", `[{"query":"q","response":"r"},{"query":1},{"x":2}]`, 1, "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := v.Parse(domain.FormatQueryResponsePairs, []byte(tt.data))
			assert.Nil(t, records)

			var shape *domain.DatasetShapeError
			require.ErrorAs(t, err, &shape)
			assert.Equal(t, tt.wantIndex, shape.Index)
			assert.Contains(t, shape.Reason, tt.wantReason)
		})
	}
}

func TestValidator_DeterministicReason(t *testing.T) {
	v := newTestValidator(t)
	data := []byte(`[{"query":1,"response":2}]`)

	_, first := v.Parse(domain.FormatQueryResponsePairs, data)
	require.Error(t, first)
	for range 10 {
		_, again := v.Parse(domain.FormatQueryResponsePairs, data)
		assert.Equal(t, first.Error(), again.Error())
	}
}

func TestValidator_UnknownFormat(t *testing.T) {
	v := newTestValidator(t)
	_, err := v.Parse("question_only", []byte(`[{"query":"q"}]`))
	require.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ahrav/go-simjudge/internal/domain"
)

// printer formats schema validation messages.
var printer = message.NewPrinter(language.English)

// queryResponsePairSchema constrains one element of a query_response_pairs dataset.
const queryResponsePairSchema = `{
	"type": "object",
	"required": ["query", "response"],
	"properties": {
		"query": {"type": "string"},
		"response": {"type": "string"}
	}
}`

// Validator checks dataset bytes against the element schema of a format.
type Validator struct {
	schemas map[domain.DatasetFormat]*jsonschema.Schema
}

// NewValidator compiles the schemas of every supported format.
func NewValidator() (*Validator, error) {
	sch, err := compileSchema("query_response_pairs.schema.json", queryResponsePairSchema)
	if err != nil {
		return nil, err
	}
	return &Validator{schemas: map[domain.DatasetFormat]*jsonschema.Schema{
		domain.FormatQueryResponsePairs: sch,
	}}, nil
}

func compileSchema(name, raw string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing schema %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("adding schema %s: %w", name, err)
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", name, err)
	}
	return sch, nil
}

// Parse decodes data as a dataset of the given format. The first violation,
// by element index, aborts with a *domain.DatasetShapeError; nothing is
// partially accepted.
func (v *Validator) Parse(format domain.DatasetFormat, data []byte) ([]domain.Record, error) {
	sch, ok := v.schemas[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		if json.Valid(data) {
			return nil, &domain.DatasetShapeError{Index: -1, Reason: "dataset must be a list of objects"}
		}
		return nil, &domain.DatasetShapeError{Index: -1, Reason: "invalid JSON: " + err.Error()}
	}
	if len(items) == 0 {
		return nil, &domain.DatasetShapeError{Index: -1, Reason: "dataset cannot be empty"}
	}

	records := make([]domain.Record, len(items))
	for i, item := range items {
		inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(item))
		if err != nil {
			return nil, &domain.DatasetShapeError{Index: i, Reason: "invalid JSON: " + err.Error()}
		}
		if err := sch.Validate(inst); err != nil {
			return nil, &domain.DatasetShapeError{Index: i, Reason: firstViolation(err)}
		}
		if err := json.Unmarshal(item, &records[i]); err != nil {
			return nil, &domain.DatasetShapeError{Index: i, Reason: "must be an object"}
		}
	}
	return records, nil
}

// firstViolation picks a deterministic reason from a schema error tree: the
// leaf with the smallest instance location, ties broken by message.
func firstViolation(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}

	var leaves []string
	collectLeaves(ve, &leaves)
	sort.Strings(leaves)
	return leaves[0]
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		msg := ve.ErrorKind.LocalizedString(printer)
		if len(ve.InstanceLocation) > 0 {
			msg = fmt.Sprintf("field '%s': %s", strings.Join(ve.InstanceLocation, "/"), msg)
		}
		*out = append(*out, msg)
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, out)
	}
}

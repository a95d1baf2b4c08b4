package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v6"
)

// SuggestionSchema returns the JSON Schema an element must satisfy to be kept.
// Only the fields the merger relies on are constrained; name and reason are
// read when they are strings and ignored otherwise.
func SuggestionSchema() *jsonschema.Schema {
	minLen := uint64(1)

	props := jsonschema.NewProperties()
	props.Set("index", &jsonschema.Schema{
		Type:        "integer",
		Minimum:     json.Number("0"),
		Description: "Original field index echoed from the request",
	})
	props.Set("name", &jsonschema.Schema{
		Type:        "string",
		Description: "Field name, used when index is missing",
	})
	props.Set("suggestedType", &jsonschema.Schema{
		Type:        "string",
		MinLength:   &minLen,
		Description: "Semantic field type such as email, phone or firstName",
	})
	props.Set("confidence", &jsonschema.Schema{
		Type:    "number",
		Minimum: json.Number("0"),
		Maximum: json.Number("1"),
	})
	props.Set("reason", &jsonschema.Schema{Type: "string"})

	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   []string{"suggestedType", "confidence"},
	}
}

// elementSchema is the compiled SuggestionSchema used by Extract.
var elementSchema = mustCompileSchema(lenientSchema())

// lenientSchema drops the type constraints on name and reason so a stray
// non-string value does not discard an otherwise usable suggestion.
func lenientSchema() *jsonschema.Schema {
	s := SuggestionSchema()
	s.Properties.Delete("name")
	s.Properties.Delete("reason")
	return s
}

func mustCompileSchema(s *jsonschema.Schema) *validator.Schema {
	compiled, err := compileSchema(s)
	if err != nil {
		panic(fmt.Sprintf("suggestion schema: %v", err))
	}
	return compiled
}

func compileSchema(s *jsonschema.Schema) (*validator.Schema, error) {
	schemaJSON, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	schemaValue, err := validator.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshaling schema: %w", err)
	}

	compiler := validator.NewCompiler()
	if err := compiler.AddResource("suggestion.json", schemaValue); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	compiled, err := compiler.Compile("suggestion.json")
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return compiled, nil
}

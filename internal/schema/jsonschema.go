package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSONSchema returns the draft 2020-12 object schema for the record.
// Every field is required and nullable; no additional properties.
// Callers must not mutate the result.
func (s *Schema) JSONSchema() map[string]any {
	return s.json
}

func (s *Schema) buildJSONSchema() map[string]any {
	props := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		props[f.Name] = map[string]any{
			"type":        []string{"string", "null"},
			"description": f.Description,
		}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             s.Names(),
	}
}

type validator struct {
	compiled *jsonschema.Schema
}

func newValidator(schemaMap map[string]any) (*validator, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("record.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &validator{compiled: compiled}, nil
}

func (v *validator) validate(doc any) error {
	if err := v.compiled.Validate(doc); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

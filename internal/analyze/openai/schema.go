package openai

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// buildDocumentJSONSchema returns a JSON-Schema map used to validate model
// output locally before it is accepted as a job result. It pins the
// top-level shape and leaves inner profile sections loose so prompt
// revisions do not break validation.
func buildDocumentJSONSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"profile", "document_language"},
		"properties": map[string]any{
			"profile": map[string]any{
				"type":     "object",
				"required": []string{"basics"},
				"properties": map[string]any{
					"basics": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"profession": map[string]any{"type": "string"},
							"summary":    map[string]any{"type": "string"},
							"skills": map[string]any{
								"type":  "array",
								"items": map[string]any{"type": "string"},
							},
						},
					},
					"languages":                map[string]any{"type": "array"},
					"educations":               map[string]any{"type": "array"},
					"professional_experiences": map[string]any{"type": "array"},
					"awards":                   map[string]any{"type": "array"},
				},
			},
			"document_language": map[string]any{
				"type":    "string",
				"pattern": `^[A-Za-z]{2}$|^$`,
			},
		},
	}
}

// compileDocumentSchema compiles the document schema once so Analyze
// calls only pay for validation.
func compileDocumentSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(buildDocumentJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateAgainstSchema validates data against a compiled schema.
func validateAgainstSchema(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

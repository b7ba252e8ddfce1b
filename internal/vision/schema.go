package vision

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// extractionSchema is the structural contract the oracle's reply must satisfy.
// Unknown extra fields are tolerated; wrong types, out-of-range confidence and
// unrecognized enum values are hard failures.
func extractionSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"billType", "period", "cost", "consumption", "unit", "confidence"},
		"properties": map[string]any{
			"billType": map[string]any{
				"type": "string",
				"enum": []string{"energy", "gas"},
			},
			"period": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"cost": map[string]any{
				"type":             "number",
				"exclusiveMinimum": 0,
			},
			"consumption": map[string]any{
				"type":             "number",
				"exclusiveMinimum": 0,
			},
			"unit": map[string]any{
				"type": "string",
				"enum": []string{"kW", "m³"},
			},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
			"notes": map[string]any{
				"type": "string",
			},
		},
	}
}

// validateExtraction checks the raw JSON reply against extractionSchema.
func validateExtraction(data []byte) error {
	b, err := json.Marshal(extractionSchema())
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

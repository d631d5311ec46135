package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildReceiptJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// We include it in the instruction text and also use it locally to validate.
func BuildReceiptJSONSchema() map[string]any {
	props := map[string]any{
		"merchant_name":    map[string]any{"type": "string", "minLength": 1},
		"tx_date":          map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"tx_time":          map[string]any{"type": "string", "pattern": `^\d{2}:\d{2}$`},
		"reference_number": map[string]any{"type": "string"},
		"subtotal":         decimalProp(),
		"tip":              decimalProp(),
		"total":            decimalProp(),
		"payment_method":   map[string]any{"type": "string"},
		"names": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"confidence": map[string]any{
			"type": "object",
			"additionalProperties": map[string]any{
				"type": "number", "minimum": 0.0, "maximum": 1.0,
			},
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"merchant_name", "total"},
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+\.\d{2}$`, // two decimals, enforced by sanitize
	}
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaCompile  error
)

// ValidateReceiptJSON validates sanitized model output against the
// receipt schema. The schema is fixed, so it is compiled once.
func ValidateReceiptJSON(data []byte) error {
	schemaOnce.Do(func() {
		b, err := json.Marshal(BuildReceiptJSONSchema())
		if err != nil {
			schemaCompile = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
			schemaCompile = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaCompile = compiler.Compile("schema.json")
	})
	if schemaCompile != nil {
		return schemaCompile
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

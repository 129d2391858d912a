package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ppiankov/caseextract/internal/model"
)

// ResultSchema is the JSON Schema every normalized result satisfies
const ResultSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["case_results"],
  "properties": {
    "case_results": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": {"$ref": "#/definitions/field"}
      }
    },
    "instruction": {"$ref": "#/definitions/field"},
    "low confidence explanation": {"$ref": "#/definitions/field"}
  },
  "definitions": {
    "field": {
      "type": "object",
      "required": ["value", "confidence"],
      "additionalProperties": false,
      "properties": {
        "value": {"type": "string"},
        "confidence": {"type": "integer", "minimum": 1, "maximum": 5}
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", strings.NewReader(ResultSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("result.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// ValidateResult checks res against ResultSchema
func ValidateResult(res *model.ExtractionResult) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("result does not match schema: %w", err)
	}
	return nil
}

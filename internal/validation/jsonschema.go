package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/pathway/pkg/schema"
)

const nodeListSchemaURL = "https://pathway.dev/schemas/node-list.json"

// nodeListSchemaJSON is the JSON Schema every generated candidate must satisfy
// before it is decoded into a graph. Unknown properties are tolerated.
const nodeListSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://pathway.dev/schemas/node-list.json",
  "type": "array",
  "minItems": 1,
  "items": { "$ref": "#/$defs/node" },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["type", "label"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": {
          "type": "string",
          "enum": ["Start", "Decision", "Process", "End"]
        },
        "label": { "type": "string" },
        "evidence": { "type": ["string", "null"] },
        "detail": { "type": ["string", "null"] },
        "notes": { "type": ["string", "null"] },
        "tags": {
          "type": "array",
          "items": { "type": "string" }
        },
        "branches": {
          "type": "array",
          "items": { "$ref": "#/$defs/branch" }
        },
        "next": { "type": "string", "minLength": 1 },
        "target": { "type": "integer", "minimum": 0 },
        "role": { "type": ["string", "null"] }
      }
    },
    "branch": {
      "type": "object",
      "required": ["label"],
      "properties": {
        "label": { "type": "string" },
        "nodes": {
          "type": "array",
          "minItems": 1,
          "items": { "type": "string", "minLength": 1 }
        },
        "target": { "type": "integer", "minimum": 0 }
      },
      "oneOf": [
        { "required": ["nodes"] },
        { "required": ["target"] }
      ]
    }
  }
}`

// NodeListSchema validates untyped candidate payloads against the node-list
// JSON Schema (Draft 2020-12). It is safe for concurrent use.
type NodeListSchema struct {
	compiled *jsonschema.Schema
}

// NewNodeListSchema compiles the embedded node-list schema.
func NewNodeListSchema() (*NodeListSchema, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(nodeListSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal node-list schema: %w", err)
	}
	if err := c.AddResource(nodeListSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add node-list schema resource: %w", err)
	}

	compiled, err := c.Compile(nodeListSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile node-list schema: %w", err)
	}
	return &NodeListSchema{compiled: compiled}, nil
}

// Validate checks a decoded JSON value (as produced by encoding/json or gojq)
// and returns every violation with its instance location.
func (s *NodeListSchema) Validate(v any) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	doc, err := toJSONValue(v)
	if err != nil {
		result.AddError("/", schema.ErrCodeSchema, fmt.Sprintf("candidate is not JSON-encodable: %v", err))
		return result
	}

	if err := s.compiled.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			result.AddError("/", schema.ErrCodeSchema, err.Error())
			return result
		}
		for _, violation := range collectViolations(verr) {
			result.AddError(violation.path, schema.ErrCodeSchema, violation.message)
		}
	}
	return result
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

type schemaViolation struct {
	path    string
	message string
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []schemaViolation {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []schemaViolation{{path: loc, message: verr.Error()}}
	}

	var out []schemaViolation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}

package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"compliance-extraction-engine/internal/domain"
	"compliance-extraction-engine/internal/domain/model"
)

// payloadSchema is the fixed output contract for one extraction call. The
// inference boundary is non-deterministic; nothing it returns is trusted
// until it passes this schema.
const payloadSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["controls"],
  "properties": {
    "controls": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["control_id", "description", "evidence"],
        "properties": {
          "control_id": {"type": "string", "minLength": 1},
          "description": {"type": "string", "minLength": 1},
          "topic": {"type": "string"},
          "evidence": {"$ref": "#/$defs/evidence"}
        }
      }
    },
    "exceptions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["control_id", "summary"],
        "properties": {
          "control_id": {"type": "string", "minLength": 1},
          "summary": {"type": "string", "minLength": 1},
          "evidence": {"$ref": "#/$defs/evidence"}
        }
      }
    },
    "cuecs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["summary"],
        "properties": {
          "summary": {"type": "string", "minLength": 1},
          "evidence": {"$ref": "#/$defs/evidence"}
        }
      }
    }
  },
  "$defs": {
    "evidence": {
      "type": "object",
      "required": ["page"],
      "properties": {
        "page": {"type": "integer", "minimum": 1, "maximum": 100000},
        "anchor": {"type": "string"}
      }
    }
  }
}`

// Validator checks call payloads against the fixed output schema. Compiled
// once at construction; safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("payload.json", strings.NewReader(payloadSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := compiler.Compile("payload.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Decode validates raw payload bytes and decodes them into a RangePayload.
// A payload failing validation is indistinguishable from a failed call to
// the rest of the pipeline: callers get domain.ErrSchemaInvalid.
func (v *Validator) Decode(raw []byte) (*model.RangePayload, error) {
	var any interface{}
	if err := json.Unmarshal(raw, &any); err != nil {
		return nil, fmt.Errorf("%w: not valid JSON: %v", domain.ErrSchemaInvalid, err)
	}
	if err := v.schema.Validate(any); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	var p model.RangePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrSchemaInvalid, err)
	}
	return &p, nil
}

// ValidateRange rejects payloads whose evidence pages fall outside the
// sub-range that was requested, a cheap plausibility bound on top of the
// structural schema.
func (v *Validator) ValidateRange(p *model.RangePayload, r model.SubRange) error {
	for _, c := range p.Controls {
		if c.Evidence.Page < r.FirstPage || c.Evidence.Page > r.LastPage {
			return fmt.Errorf("%w: control %s cites page %d outside %s",
				domain.ErrSchemaInvalid, c.ControlID, c.Evidence.Page, r)
		}
	}
	return nil
}

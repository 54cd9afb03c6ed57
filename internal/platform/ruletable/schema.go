package ruletable

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "schema://comorbidity-ruletable.json"

// documentSchema constrains the shape of a rule table before it is decoded.
// Semantic checks (dangling overrides, cycles) happen in comorbidity.NewRuleSet.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["scheme", "version", "year", "categories"],
  "additionalProperties": false,
  "properties": {
    "scheme":  {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "year": {
      "oneOf": [
        {"type": "integer", "minimum": 1},
        {"type": "string", "pattern": "^[0-9]{4}$"}
      ]
    },
    "categories": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/category"}
    }
  },
  "$defs": {
    "codes": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    },
    "category": {
      "type": "object",
      "required": ["name", "weight"],
      "additionalProperties": false,
      "properties": {
        "name":        {"type": "string", "pattern": "^[a-z][a-z0-9_]*$"},
        "description": {"type": "string"},
        "weight":      {"type": "integer", "minimum": 0},
        "codes":       {"$ref": "#/$defs/codes"},
        "both": {
          "type": "object",
          "required": ["group_a", "group_b"],
          "additionalProperties": false,
          "properties": {
            "group_a": {"$ref": "#/$defs/codes"},
            "group_b": {"$ref": "#/$defs/codes"}
          }
        },
        "overridden_by": {
          "type": "array",
          "items": {"type": "string", "minLength": 1}
        }
      },
      "oneOf": [
        {"required": ["codes"]},
        {"required": ["both"]}
      ]
    }
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		def, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchema))
		if err != nil {
			compileErr = fmt.Errorf("parse schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, def); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(schemaURL)
	})
	return compiledSchema, compileErr
}

// ValidateDocument checks a decoded YAML or JSON value against the rule table
// schema. The value is round-tripped through JSON so YAML maps and numbers
// reach the validator in JSON form.
func ValidateDocument(raw any) error {
	sch, err := schema()
	if err != nil {
		return fmt.Errorf("compile rule table schema: %w", err)
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}

	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

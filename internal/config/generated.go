package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// generatedSchema constrains the rule-set document returned by the
// one-time rule-generation collaborator before it is decoded. Structural
// checks (regex compilation, interval bounds) happen afterward in
// Validate; the schema only guards shape and enum membership.
const generatedSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["rules"],
  "properties": {
    "rules": {
      "type": "object",
      "properties": {
        "keywords": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "keyword", "severity", "enabled"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "keyword": {"type": "string"},
              "case_sensitive": {"type": "boolean"},
              "severity": {"enum": ["info", "warning", "critical"]},
              "enabled": {"type": "boolean"}
            }
          }
        },
        "patterns": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "pattern", "severity", "enabled"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "name": {"type": "string"},
              "pattern": {"type": "string", "maxLength": 500},
              "description": {"type": "string"},
              "severity": {"enum": ["info", "warning", "critical"]},
              "enabled": {"type": "boolean"}
            }
          }
        },
        "conditions": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "field", "operator", "value", "severity", "enabled"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "field": {"type": "string", "minLength": 1},
              "operator": {"enum": ["equals", "contains", "includes", "starts-with", "ends-with", "greater-than", "less-than", "matches"]},
              "value": {"type": "string"},
              "severity": {"enum": ["info", "warning", "critical"]},
              "enabled": {"type": "boolean"}
            }
          }
        },
        "logic": {"enum": ["any", "all"]}
      }
    },
    "templates": {
      "type": "array",
      "maxItems": 3,
      "items": {
        "type": "object",
        "required": ["severity", "title", "message", "action"],
        "properties": {
          "severity": {"enum": ["info", "warning", "critical"]},
          "title": {"type": "string"},
          "message": {"type": "string"},
          "action": {"enum": ["log", "alert", "forward-to-ai", "send-reply", "log-to-sheets"]}
        }
      }
    }
  }
}`

// ValidateGenerated checks a model-proposed rule-set document against the
// JSON schema, decodes it, and runs the structural validator over the
// result merged into a copy of the current config. The engine never calls
// the model API itself. This is the acceptance gate for what comes back.
func ValidateGenerated(data []byte, current *MonitorConfig) (*MonitorConfig, Result) {
	var res Result

	sch, err := compileGeneratedSchema()
	if err != nil {
		// Compile failure of the embedded schema is a programming error,
		// but validation must not panic: surface it as a hard error.
		res.fail("schema", err.Error())
		return nil, res
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		res.fail("document", fmt.Sprintf("not valid JSON: %v", err))
		return nil, res
	}
	if err := sch.Validate(inst); err != nil {
		res.fail("document", schemaErrorDetail(err))
		return nil, res
	}

	merged := *current
	var decoded MonitorConfig
	if err := json.Unmarshal(data, &decoded); err != nil {
		res.fail("document", fmt.Sprintf("decode failed: %v", err))
		return nil, res
	}
	merged.Rules = decoded.Rules
	if len(decoded.Templates) > 0 {
		merged.Templates = decoded.Templates
	}

	structural := Validate(&merged)
	if !structural.Valid {
		return nil, structural
	}
	return &merged, structural
}

func compileGeneratedSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(generatedSchema))
	if err != nil {
		return nil, fmt.Errorf("compileGeneratedSchema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("ruleset.json", doc); err != nil {
		return nil, fmt.Errorf("compileGeneratedSchema: %w", err)
	}
	sch, err := c.Compile("ruleset.json")
	if err != nil {
		return nil, fmt.Errorf("compileGeneratedSchema: %w", err)
	}
	return sch, nil
}

func schemaErrorDetail(err error) string {
	return "schema validation failed: " + err.Error()
}

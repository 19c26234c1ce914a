// Package schema validates inbound grading payloads against a JSON Schema
// before any field is interpreted.
package schema

import "github.com/santhosh-tekuri/jsonschema/v5"

const feedbackSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["ret_code", "grader_sha", "feedback"],
  "properties": {
    "ret_code": {"type": "integer"},
    "output": {"type": "string"},
    "execution_time": {"type": "number", "minimum": 0},
    "grader_sha": {"type": "string", "minLength": 1},
    "feedback": {
      "type": "object",
      "properties": {
        "score": {"type": "number"},
        "max_score": {"type": "number"},
        "output_format": {"type": "string"},
        "output": {
          "type": "object",
          "properties": {
            "hidden": {"type": "string"},
            "visible": {"type": "string"},
            "after_due_date": {"type": "string"},
            "after_published": {"type": "string"}
          },
          "additionalProperties": false
        },
        "lint": {
          "type": "object",
          "required": ["status"],
          "properties": {
            "status": {"type": "string", "enum": ["pass", "fail", "skipped"]},
            "output": {"type": "string"},
            "output_format": {"type": "string"}
          }
        },
        "tests": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "output": {"type": "string"},
              "score": {"type": "number"},
              "max_score": {"type": "number"},
              "part": {"type": "string"},
              "extra_data": {},
              "output_format": {"type": "string"},
              "name_format": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

var feedbackSchema = jsonschema.MustCompileString("feedback.json", feedbackSchemaJSON)

// ValidateFeedback checks a decoded feedback document against the schema.
func ValidateFeedback(doc interface{}) error {
	return feedbackSchema.Validate(doc)
}

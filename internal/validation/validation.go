// Package validation enforces the two external JSON contracts: the goal
// request accepted by the service boundary and the success document returned
// by container backends. Schemas are embedded JSON Schema Draft 2020-12
// documents compiled once at construction.
package validation

import (
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/fabriqa/takt/pkg/schema"
)

const goalRequestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://takt.fabriqa.io/schemas/goal-request.json",
  "type": "object",
  "required": ["goal"],
  "properties": {
    "goal": { "type": "string", "minLength": 1 },
    "date": { "type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$" },
    "product_id": { "type": "string", "minLength": 1 },
    "date_range": {
      "type": "object",
      "required": ["start", "end"],
      "properties": {
        "start": { "type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$" },
        "end": { "type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$" }
      },
      "additionalProperties": false
    },
    "target_machine": { "type": "string", "minLength": 1 },
    "quantity": { "type": "integer", "minimum": 1 }
  },
  "additionalProperties": false
}`

const containerResultSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://takt.fabriqa.io/schemas/container-result.json",
  "type": "object",
  "required": ["service", "total_jobs", "processed_jobs", "statistics"],
  "properties": {
    "service": { "type": "string", "minLength": 1 },
    "total_jobs": { "type": "integer", "minimum": 0 },
    "processed_jobs": { "type": "integer", "minimum": 0 },
    "statistics": {
      "type": "object",
      "required": ["failed_count", "completed_count", "cooling_required", "heating_required"],
      "properties": {
        "failed_count": { "type": "integer", "minimum": 0 },
        "completed_count": { "type": "integer", "minimum": 0 },
        "cooling_required": { "type": "integer", "minimum": 0 },
        "heating_required": { "type": "integer", "minimum": 0 }
      }
    }
  }
}`

// Validator validates external documents against the embedded contracts.
// Safe for concurrent use: compiled schemas are immutable after construction.
type Validator struct {
	goalRequest     *jsonschema.Schema
	containerResult *jsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	goalReq, err := compileEmbedded("https://takt.fabriqa.io/schemas/goal-request.json", goalRequestSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("goal request schema: %w", err)
	}
	containerRes, err := compileEmbedded("https://takt.fabriqa.io/schemas/container-result.json", containerResultSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("container result schema: %w", err)
	}
	return &Validator{goalRequest: goalReq, containerResult: containerRes}, nil
}

func compileEmbedded(url, schemaText string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaText))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(url)
}

// ValidateGoalRequest checks a goal request against the request schema plus
// the ordering constraint JSON Schema cannot express.
func (v *Validator) ValidateGoalRequest(req *schema.GoalRequest) error {
	if req == nil {
		return schema.NewError(schema.ErrCodeValidation, "goal request is nil")
	}

	doc, err := toJSONValue(req)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize goal request").WithCause(err)
	}
	if err := v.goalRequest.Validate(doc); err != nil {
		return toTaktError(err)
	}

	// ISO dates compare correctly as strings.
	if req.DateRange != nil && req.DateRange.Start > req.DateRange.End {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"date_range start %q is after end %q", req.DateRange.Start, req.DateRange.End)
	}

	return nil
}

// ValidateContainerResult checks a parsed container response against the
// success contract.
func (v *Validator) ValidateContainerResult(result any) error {
	if result == nil {
		return schema.NewError(schema.ErrCodeValidation, "container result is nil")
	}

	doc, err := toJSONValue(result)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize container result").WithCause(err)
	}
	if err := v.containerResult.Validate(doc); err != nil {
		return toTaktError(err)
	}
	return nil
}

// Package toolregistry holds the catalog of tools a caller may invoke and
// validates call arguments against each tool's declared parameter schema,
// per §4.4. Validation is built on gojsonschema, grounded on the teacher's
// internal/gateway/validation.RequestValidator.ValidateJSONSchema, which
// already uses gojsonschema.Validate and collects every schema error
// instead of stopping at the first — exactly the "no short-circuit"
// behavior §4.4 requires.
package toolregistry

import (
	"reflect"
	"time"
)

// ParamType is one of the primitive/structured JSON Schema types §4.4
// allows for a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// ParamSchema describes one parameter's type and constraints. Object and
// array parameters nest further ParamSchemas.
type ParamSchema struct {
	Type        ParamType              `json:"type"`
	Description string                 `json:"description,omitempty"`
	Enum        []interface{}          `json:"enum,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
	MinLength   *int                   `json:"minLength,omitempty"`
	MaxLength   *int                   `json:"maxLength,omitempty"`
	Items       *ParamSchema           `json:"items,omitempty"`
	Properties  map[string]*ParamSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"` // for nested object properties
}

// ToolSchema is the registered definition of one tool.
type ToolSchema struct {
	Name          string                  `json:"-"`
	Description   string                  `json:"-"`
	Parameters    map[string]*ParamSchema `json:"-"`
	RequiredParams []string               `json:"-"`
	RequiresAuth  bool                    `json:"-"`
	RequiredScopes []string               `json:"-"`
	// Timeout bounds a single call to this tool (§3 Tool Record, §4.7 step
	// 5). Zero means "use the executor's DefaultTimeoutMs".
	Timeout       time.Duration           `json:"-"`
}

// Equal reports whether two ToolSchemas describe the same contract,
// ignoring Description. Used to decide whether a re-registration under an
// existing name is a no-op or a SchemaConflict (§4.4).
func (s *ToolSchema) Equal(other *ToolSchema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.RequiresAuth != other.RequiresAuth {
		return false
	}
	if s.Timeout != other.Timeout {
		return false
	}
	if !stringSetEqual(s.RequiredScopes, other.RequiredScopes) {
		return false
	}
	if !stringSetEqual(s.RequiredParams, other.RequiredParams) {
		return false
	}
	return reflect.DeepEqual(s.Parameters, other.Parameters)
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		seen[v]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

// toJSONSchemaDoc renders the tool's parameter schema as a JSON-Schema
// document gojsonschema.Validate can consume.
func (s *ToolSchema) toJSONSchemaDoc() map[string]interface{} {
	doc := map[string]interface{}{
		"type":       "object",
		"properties": paramsToProperties(s.Parameters),
	}
	if len(s.RequiredParams) > 0 {
		doc["required"] = s.RequiredParams
	}
	return doc
}

func paramsToProperties(params map[string]*ParamSchema) map[string]interface{} {
	props := make(map[string]interface{}, len(params))
	for name, p := range params {
		props[name] = paramToJSONSchema(p)
	}
	return props
}

func paramToJSONSchema(p *ParamSchema) map[string]interface{} {
	doc := map[string]interface{}{"type": string(p.Type)}
	if len(p.Enum) > 0 {
		doc["enum"] = p.Enum
	}
	if p.Minimum != nil {
		doc["minimum"] = *p.Minimum
	}
	if p.Maximum != nil {
		doc["maximum"] = *p.Maximum
	}
	if p.MinLength != nil {
		doc["minLength"] = *p.MinLength
	}
	if p.MaxLength != nil {
		doc["maxLength"] = *p.MaxLength
	}
	if p.Items != nil {
		doc["items"] = paramToJSONSchema(p.Items)
	}
	if len(p.Properties) > 0 {
		doc["properties"] = paramsToProperties(p.Properties)
		if len(p.Required) > 0 {
			doc["required"] = p.Required
		}
	}
	return doc
}

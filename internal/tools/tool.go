// Package tools implements the external-API capabilities the assistant can
// invoke: clock, geocoding, weather, trip planning, and transit alerts.
//
// Handlers are stateless: each one maps (arguments) → (one upstream HTTP
// call) → (normalized result). The HTTP client is injected so tests can
// substitute an httptest transport.
package tools

import (
	"context"
	"encoding/json"
)

// Property describes one parameter in a tool's JSON Schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema is a JSON Schema object for a tool's parameters.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Declaration describes a tool to the language model. Declarations are
// immutable and defined at process start.
type Declaration struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// Tool is a capability the assistant can invoke during a conversation.
type Tool interface {
	// Declaration returns the tool's model-facing contract.
	Declaration() Declaration

	// Execute runs the tool with the given JSON arguments and returns a
	// JSON-serializable result.
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// ObjectSchema builds a Schema with the standard object wrapper.
func ObjectSchema(props map[string]Property, required ...string) Schema {
	if required == nil {
		required = []string{}
	}
	return Schema{Type: "object", Properties: props, Required: required}
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mtlfinder/voyago/internal/llm"
	"github.com/mtlfinder/voyago/internal/logging"
)

// Registry is a closed mapping from tool names to handlers, built at process
// start. Declaration order is registration order and is stable for the
// process lifetime.
type Registry struct {
	order []string
	tools map[string]Tool
	log   *logging.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		log:   log.Component("tools"),
	}
}

// Register adds a tool. Registering a duplicate name panics: the registry is
// assembled once in wiring code and a collision is a programming error.
func (r *Registry) Register(t Tool) {
	name := t.Declaration().Name
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("tools: duplicate registration of %q", name))
	}
	r.order = append(r.order, name)
	r.tools[name] = t
}

// Declarations returns all tool declarations in registration order.
func (r *Registry) Declarations() []Declaration {
	decls := make([]Declaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Declaration())
	}
	return decls
}

// ModelTools converts the declarations to the model-facing format.
func (r *Registry) ModelTools() []llm.ToolDefinition {
	decls := r.Declarations()
	defs := make([]llm.ToolDefinition, 0, len(decls))
	for _, d := range decls {
		params, _ := json.Marshal(d.Parameters)
		defs = append(defs, llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		})
	}
	return defs
}

// Execute looks up and runs a tool, returning its result serialized to JSON.
// Errors are ErrUnknownTool, *InvalidArgumentsError, or *UpstreamError.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	t, ok := r.tools[name]
	if !ok {
		r.log.Warn().Str("tool", name).Msg("unknown tool requested")
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	r.log.Debug().Str("tool", name).RawJSON("args", normalizeArgs(args)).Msg("executing tool")

	result, err := t.Execute(ctx, args)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("serializing %s result: %w", name, err)
	}
	return out, nil
}

func normalizeArgs(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage("{}")
	}
	return args
}

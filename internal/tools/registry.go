package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/docent-ai/docent/internal/llm"
)

// ErrUnknownTool indicates a dispatch to a name that was never registered.
var ErrUnknownTool = errors.New("unknown tool")

// ErrDuplicateTool indicates two registrations under the same name.
var ErrDuplicateTool = errors.New("duplicate tool name")

// Registry holds the tools offered to the model.
//
// Definitions() preserves registration order so the model always sees a
// stable tool list. The registry is populated once at startup and read-only
// afterwards, which makes it safe for concurrent use without locking.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	name := t.Definition().Name
	if name == "" {
		return errors.New("tool has empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Definitions returns all tool specs in registration order.
func (r *Registry) Definitions() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Definition())
	}
	return specs
}

// Execute dispatches by name. Unregistered names fail with ErrUnknownTool.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t.Execute(ctx, args)
}

// Package tools provides the tool registry consumed by the step
// executor and the skill delegation loop.
package tools

import (
	"context"

	"github.com/vinayprograms/agentkit/llm"
)

// Tool represents an executable tool.
type Tool interface {
	// Name returns the tool name.
	Name() string
	// Description returns a description for the LLM.
	Description() string
	// Parameters returns the JSON schema for parameters.
	Parameters() map[string]interface{}
	// RequiresConfirmation reports whether explicit user approval is
	// needed before the tool may run.
	RequiresConfirmation() bool
	// Execute runs the tool with the given arguments. Output is text
	// in all cases; it is fed back to the model verbatim.
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry holds registered tools. A registry is cloned and filtered
// once per tenant and treated as immutable afterwards; Register must
// not be called on a registry that is already shared.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Clone returns a new registry holding the same tools. Tools themselves
// are shared; they are expected to be stateless.
func (r *Registry) Clone() *Registry {
	out := NewRegistry()
	for name, t := range r.tools {
		out.tools[name] = t
	}
	return out
}

// FilterByPermissions removes tools that are not explicitly allowed.
// Tools absent from the permission map are removed. Meant to be called
// on a fresh clone during tenant construction, before the registry is
// shared.
func (r *Registry) FilterByPermissions(allowed map[string]bool) *Registry {
	for name := range r.tools {
		if !allowed[name] {
			delete(r.tools, name)
		}
	}
	return r
}

// Subset returns a clone restricted to the named tools. Unknown names
// are ignored.
func (r *Registry) Subset(names []string) *Registry {
	out := NewRegistry()
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			out.tools[name] = t
		}
	}
	return out
}

// Definitions returns LLM-facing definitions for all registered tools.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, llm.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// AcceptsParam reports whether the tool's parameter schema declares the
// named parameter, or accepts open-ended keyword arguments via
// additionalProperties.
func AcceptsParam(t Tool, name string) bool {
	schema := t.Parameters()
	if schema == nil {
		return false
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		if _, ok := props[name]; ok {
			return true
		}
	}
	if ap, ok := schema["additionalProperties"].(bool); ok && ap {
		return true
	}
	return false
}

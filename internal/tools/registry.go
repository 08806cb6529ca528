// Package tools holds the callable tools the model can invoke through the
// TOOL_CALL protocol, and the two-pass loop that drives an invocation.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Tool is one model-callable function. Schema documents the arguments as a
// JSON Schema fragment shown to the model verbatim.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Run         func(ctx context.Context, args map[string]any) (string, error)
}

// Registry is the set of registered tools. Registration happens at startup;
// after that the registry is read-only.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("tool must have a name and a run function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs a named tool. Unknown tools are an error so the loop can fall
// back to the model's first reply.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return t.Run(ctx, args)
}

// Preamble renders the system message describing the tools and the
// invocation marker the model must emit.
func (r *Registry) Preamble() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("You can call tools. Available tools:\n")
	for _, name := range names {
		t := r.tools[name]
		fmt.Fprintf(&b, "- %s: %s\n  schema: %s\n", t.Name, t.Description, string(t.Schema))
	}
	b.WriteString("\nTo call a tool, reply with exactly one line of the form:\n")
	b.WriteString(`TOOL_CALL: {"tool": "<name>", "arguments": {...}}`)
	b.WriteString("\nOnly call a tool when it is needed to answer. Otherwise answer directly.")
	return b.String()
}

// Package tools holds the tool capability contract and the registry the
// planner and executor resolve tool names against.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Handler executes one tool call using parsed arguments.
//
// A handler either returns a JSON-compatible value or fails with an error.
// Handlers that block must respect ctx.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named, invocable capability.
type Tool struct {
	Name        string
	Description string
	Handler     Handler
}

// Registry maps tool names to tools. Safe for concurrent use.
//
// Registries are explicitly constructed and passed into each agent context;
// there is no process-wide registry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering a name replaces the previous tool
// (last write wins).
func (r *Registry) Register(t Tool) error {
	if r == nil {
		return errors.New("nil tool registry")
	}
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return errors.New("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s missing handler", name)
	}
	t.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
	return nil
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return Tool{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Tool{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools in unspecified order.
func (r *Registry) List() []Tool {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Invoke runs the tool with the given arguments, converting handler panics
// into errors so a misbehaving tool cannot take down the run.
func (t Tool) Invoke(ctx context.Context, args map[string]any) (out any, err error) {
	if t.Handler == nil {
		return nil, fmt.Errorf("tool %s missing handler", t.Name)
	}
	if args == nil {
		args = map[string]any{}
	}
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("tool %s panicked: %v", t.Name, r)
		}
	}()
	return t.Handler(ctx, args)
}

package tools

import (
	"sort"
	"sync"

	"github.com/introspectai/learnloop/pkg/errors"
)

func missingParamError(name string) error {
	return errors.WithFields(errors.New(errors.InvalidInput, "missing required parameter"),
		errors.Fields{"parameter": name})
}

// Registry is an in-memory, name-keyed tool collection.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering the same name twice is an error.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tool == nil {
		return errors.New(errors.InvalidInput, "cannot register a nil tool")
	}
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return errors.WithFields(errors.New(errors.InvalidInput, "tool already registered"),
			errors.Fields{"tool_name": name})
	}
	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name. A miss is UnknownTool, which the
// orchestrator treats as non-retryable.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, errors.WithFields(errors.New(errors.UnknownTool, "tool not found"),
			errors.Fields{"tool_name": name})
	}
	return tool, nil
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

// List returns all registered tools in name order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]Tool, 0, len(names))
	for _, name := range names {
		list = append(list, r.tools[name])
	}
	return list
}

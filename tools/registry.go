// Package tools keeps the catalog of tool definitions an agent advertises
// in its Tools section. Only metadata is held; invoking a tool is the
// caller's concern.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/tinyagent/core/protocol"
)

var (
	ErrNotFound      = errors.New("tool not registered")
	ErrAlreadyExists = errors.New("tool name already taken")
	ErrEmptyName     = errors.New("tool has no name")
)

// Registry is a set of tool definitions keyed by name.
// All methods are safe for concurrent use.
type Registry struct {
	tools map[string]protocol.Tool
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]protocol.Tool)}
}

// Register adds a new tool.
// Returns ErrAlreadyExists if a tool with the same name is already registered.
// Use Replace to update an existing definition.
func (r *Registry) Register(tool protocol.Tool) error {
	if strings.TrimSpace(tool.Name) == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, tool.Name)
	}

	r.tools[tool.Name] = tool
	return nil
}

// Replace updates an existing tool's definition.
// Returns ErrNotFound if no tool with the given name is registered.
func (r *Registry) Replace(tool protocol.Tool) error {
	if strings.TrimSpace(tool.Name) == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, tool.Name)
	}

	r.tools[tool.Name] = tool
	return nil
}

// Get retrieves a definition by tool name.
func (r *Registry) Get(name string) (protocol.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered definitions sorted by name.
func (r *Registry) List() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]protocol.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		list = append(list, tool)
	}
	slices.SortFunc(list, func(a, b protocol.Tool) int {
		return strings.Compare(a.Name, b.Name)
	})
	return list
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// LoadFile registers every tool in a JSON file holding an array of tool
// definitions. Existing definitions with the same name are replaced.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read tools file: %w", err)
	}

	var defs []protocol.Tool
	if err := json.Unmarshal(data, &defs); err != nil {
		return fmt.Errorf("failed to parse tools file: %w", err)
	}

	for _, tool := range defs {
		if strings.TrimSpace(tool.Name) == "" {
			return fmt.Errorf("tools file %s: %w", path, ErrEmptyName)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tool := range defs {
		r.tools[tool.Name] = tool
	}
	return nil
}

// Render encodes tools as the indented JSON array placed in a prompt.
func Render(list []protocol.Tool) (string, error) {
	if list == nil {
		list = []protocol.Tool{}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render tools: %w", err)
	}
	return string(data), nil
}

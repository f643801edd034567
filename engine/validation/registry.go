package validation

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/compozy/relay/engine/core"
)

// Factory turns a prepared Base into a concrete validator. It may read and
// check the parameters and returns an error for invalid ones.
type Factory func(b *Base) (Validator, error)

// Definition binds a class name to a factory and default parameters.
type Definition struct {
	Class    string
	Factory  Factory
	Defaults core.Params
}

// Registry maps validator class names to their definitions.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]*Definition)}
}

// DefaultRegistry returns a registry holding the built-in classes under
// their short names.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	builtins := []struct {
		class    string
		factory  Factory
		defaults core.Params
	}{
		{"and", NewAnd, core.Params{"break": true}},
		{"or", NewOr, core.Params{"break": true}},
		{"xor", NewXor, nil},
		{"not", NewNot, nil},
		{"number", NewNumber, core.Params{"type": "int"}},
		{"email", NewEmail, nil},
		{"string", NewString, core.Params{"min": 1}},
		{"regex", NewRegex, core.Params{"match": true}},
		{"isset", NewIsset, nil},
		{"equals", NewEquals, nil},
		{"inarray", NewInArray, core.Params{"sep": ","}},
		{"set", NewSet, nil},
	}
	for _, b := range builtins {
		// built-in names are unique
		_ = r.Register(b.class, b.factory, b.defaults)
	}
	return r
}

func normalizeClass(class string) string {
	return strings.ToLower(strings.TrimSpace(class))
}

// Register adds a class. Registering a taken name fails.
func (r *Registry) Register(class string, factory Factory, defaults core.Params) error {
	key := normalizeClass(class)
	if key == "" || factory == nil {
		return fmt.Errorf("%w: class name and factory are required", ErrInvalidParameter)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[key]; exists {
		return fmt.Errorf("validator class %q already registered", key)
	}
	r.definitions[key] = &Definition{Class: key, Factory: factory, Defaults: defaults.Clone()}
	return nil
}

// Define registers class as a variant of an existing class with extra
// default parameters. A redefinition replaces the previous one.
func (r *Registry) Define(class, parent string, defaults core.Params) error {
	base, err := r.Lookup(parent)
	if err != nil {
		return err
	}
	key := normalizeClass(class)
	if key == "" {
		return fmt.Errorf("%w: class name is required", ErrInvalidParameter)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[key] = &Definition{
		Class:    key,
		Factory:  base.Factory,
		Defaults: base.Defaults.Merge(defaults),
	}
	return nil
}

// Lookup returns the definition of class.
func (r *Registry) Lookup(class string) (*Definition, error) {
	key := normalizeClass(class)
	r.mu.RLock()
	def, ok := r.definitions[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownValidator, class)
	}
	return def, nil
}

// Classes returns the sorted registered class names.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.definitions))
	for k := range r.definitions {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

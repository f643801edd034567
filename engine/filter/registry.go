package filter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/pkg/config"
	"github.com/compozy/relay/pkg/logger"
)

// Phases a filter definition can apply to.
const (
	// PhaseController filters wrap every controller execution.
	PhaseController = "controller"
	// PhaseGlobal filters wrap a whole dispatch.
	PhaseGlobal = "global"
)

var (
	ErrUnknownFilter = errors.New("unknown filter")
	ErrDuplicate     = errors.New("filter already registered")
)

// Factory creates a filter from its parameters.
type Factory[S any] func(params core.Params) (Filter[S], error)

// Definition declares one filter to load into matching chains. A
// definition without module applies to every module.
type Definition struct {
	Name    string
	Phase   string
	Module  string
	Enabled bool
	Params  core.Params
}

// DefinitionsFromConfig converts the configured filters.
func DefinitionsFromConfig(cfgs []config.FilterConfig) []Definition {
	out := make([]Definition, 0, len(cfgs))
	for _, c := range cfgs {
		phase := c.Phase
		if phase == "" {
			phase = PhaseController
		}
		out = append(out, Definition{
			Name:    c.Name,
			Phase:   phase,
			Module:  c.Module,
			Enabled: c.IsEnabled(),
			Params:  core.Params(core.CloneMap(c.Parameters)),
		})
	}
	return out
}

// Registry maps filter names to factories.
type Registry[S any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[S]
}

// NewRegistry creates an empty registry.
func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{factories: make(map[string]Factory[S])}
}

// Register adds a factory under name.
func (r *Registry[S]) Register(name string, f Factory[S]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.factories[name] = f
	return nil
}

// Names returns the sorted registered names.
func (r *Registry[S]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Create builds the filter registered under name.
func (r *Registry[S]) Create(name string, params core.Params) (Filter[S], error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
	}
	filter, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", name, err)
	}
	return filter, nil
}

// Load registers into chain every enabled definition of phase. With an
// empty module only definitions without module are loaded; otherwise only
// the definitions scoped to module.
func (r *Registry[S]) Load(ctx context.Context, chain *Chain[S], defs []Definition, phase, module string) error {
	log := logger.FromContext(ctx).With("component", "filter_registry")
	for _, d := range defs {
		if !d.Enabled || d.Phase != phase || d.Module != module {
			continue
		}
		f, err := r.Create(d.Name, d.Params)
		if err != nil {
			return err
		}
		chain.Register(f)
		log.Debug("Filter registered", "filter", d.Name, "phase", phase, "module", module)
	}
	return nil
}

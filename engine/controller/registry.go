package controller

import (
	"fmt"
	"slices"
	"sync"

	"github.com/compozy/relay/engine/core"
)

// Factory creates a controller instance.
type Factory func() Controller

// ViewFactory creates a view instance.
type ViewFactory func() View

// Module groups the controllers and views of one application module.
type Module struct {
	name        string
	enabled     bool
	controllers map[string]Factory
	views       map[string]ViewFactory
}

// NewModule creates an enabled, empty module.
func NewModule(name string) *Module {
	return &Module{
		name:        name,
		enabled:     true,
		controllers: make(map[string]Factory),
		views:       make(map[string]ViewFactory),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return m.name
}

// Enabled reports whether the module serves requests.
func (m *Module) Enabled() bool {
	return m.enabled
}

// SetEnabled toggles the module.
func (m *Module) SetEnabled(v bool) *Module {
	m.enabled = v
	return m
}

// Controller registers a controller under its canonical name.
func (m *Module) Controller(name string, f Factory) *Module {
	m.controllers[core.CanonicalName(name)] = f
	return m
}

// View registers a view under its canonical name.
func (m *Module) View(name string, f ViewFactory) *Module {
	m.views[core.CanonicalName(name)] = f
	return m
}

// Controllers returns the sorted controller names.
func (m *Module) Controllers() []string {
	out := make([]string, 0, len(m.controllers))
	for name := range m.controllers {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Registry resolves controllers and views by module.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*Module)}
}

// Register adds modules. Module names must be valid and unique.
func (r *Registry) Register(mods ...*Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range mods {
		if err := core.CheckName(core.NameModule, m.name); err != nil {
			return err
		}
		if _, ok := r.modules[m.name]; ok {
			return fmt.Errorf("module %s already registered", m.name)
		}
		r.modules[m.name] = m
	}
	return nil
}

// Module returns the module named name.
func (r *Registry) Module(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// HasController reports whether the controller exists, whether or not its
// module is enabled.
func (r *Registry) HasController(module, controller string) bool {
	m, ok := r.Module(module)
	if !ok {
		return false
	}
	_, ok = m.controllers[core.CanonicalName(controller)]
	return ok
}

// ResolveController creates the controller of module. It fails with
// core.ErrModuleDisabled for disabled modules and core.ErrControllerNotFound
// for unknown modules or controllers.
func (r *Registry) ResolveController(module, controller string) (Controller, error) {
	m, ok := r.Module(module)
	if !ok {
		return nil, &core.LookupError{Module: module, Name: controller, Err: core.ErrControllerNotFound}
	}
	if !m.enabled {
		return nil, &core.LookupError{Module: module, Name: controller, Err: core.ErrModuleDisabled}
	}
	f, ok := m.controllers[core.CanonicalName(controller)]
	if !ok {
		return nil, &core.LookupError{Module: module, Name: controller, Err: core.ErrControllerNotFound}
	}
	return f(), nil
}

// ResolveView creates the view of module.
func (r *Registry) ResolveView(module, view string) (View, error) {
	m, ok := r.Module(module)
	if !ok {
		return nil, &core.LookupError{Module: module, Name: view, Err: core.ErrViewNotFound}
	}
	f, ok := m.views[core.CanonicalName(view)]
	if !ok {
		return nil, &core.LookupError{Module: module, Name: view, Err: core.ErrViewNotFound}
	}
	return f(), nil
}

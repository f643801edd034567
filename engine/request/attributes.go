package request

import (
	"maps"
	"slices"
	"sync"
)

// DefaultNamespace is used when an attribute is set without a namespace.
const DefaultNamespace = "org.relay"

// AttributeHolder stores attributes grouped by namespace.
type AttributeHolder struct {
	mu    sync.RWMutex
	attrs map[string]map[string]any
}

// NewAttributeHolder creates an empty holder.
func NewAttributeHolder() *AttributeHolder {
	return &AttributeHolder{attrs: make(map[string]map[string]any)}
}

func nsOrDefault(ns string) string {
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

// Attribute returns the attribute name in ns.
func (a *AttributeHolder) Attribute(name, ns string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.attrs[nsOrDefault(ns)][name]
	return v, ok
}

// SetAttribute stores value under name in ns.
func (a *AttributeHolder) SetAttribute(name, ns string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ns = nsOrDefault(ns)
	bag, ok := a.attrs[ns]
	if !ok {
		bag = make(map[string]any)
		a.attrs[ns] = bag
	}
	bag[name] = value
}

// SetAttributes stores every entry of values in ns.
func (a *AttributeHolder) SetAttributes(ns string, values map[string]any) {
	for k, v := range values {
		a.SetAttribute(k, ns, v)
	}
}

// RemoveAttribute deletes name from ns.
func (a *AttributeHolder) RemoveAttribute(name, ns string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.attrs[nsOrDefault(ns)], name)
}

// Attributes returns a copy of every attribute in ns.
func (a *AttributeHolder) Attributes(ns string) map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.attrs[nsOrDefault(ns)])
}

// Namespaces returns the sorted namespace names.
func (a *AttributeHolder) Namespaces() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Sorted(maps.Keys(a.attrs))
}

// CopyFrom copies every attribute of other into a.
func (a *AttributeHolder) CopyFrom(other *AttributeHolder) {
	if other == nil {
		return
	}
	for _, ns := range other.Namespaces() {
		a.SetAttributes(ns, other.Attributes(ns))
	}
}

package dispatcher

import (
	"fmt"
	"slices"
	"sync"

	"github.com/compozy/relay/engine/core"
)

// Dispatchers are registered process wide by name so serialized containers
// can find their application again.
var contexts = struct {
	sync.RWMutex
	byName map[string]*Dispatcher
}{byName: make(map[string]*Dispatcher)}

// Register makes d resolvable by its name, replacing any dispatcher
// registered under the same name.
func Register(d *Dispatcher) {
	contexts.Lock()
	defer contexts.Unlock()
	contexts.byName[d.name] = d
}

// Unregister removes the dispatcher named name.
func Unregister(name string) {
	contexts.Lock()
	defer contexts.Unlock()
	delete(contexts.byName, name)
}

// Lookup returns the dispatcher registered under name.
func Lookup(name string) (*Dispatcher, error) {
	contexts.RLock()
	defer contexts.RUnlock()
	d, ok := contexts.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownContext, name)
	}
	return d, nil
}

// Registered returns the sorted names of every registered dispatcher.
func Registered() []string {
	contexts.RLock()
	defer contexts.RUnlock()
	out := make([]string, 0, len(contexts.byName))
	for name := range contexts.byName {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

package core

import (
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Params is a loosely typed parameter bag shared by containers, filters and
// validators.
type Params map[string]any

// Has reports whether name is set.
func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Get returns the raw value of name, or def when it is unset.
func (p Params) Get(name string, def any) any {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// GetString returns name converted to a string.
func (p Params) GetString(name, def string) string {
	v, ok := p[name]
	if !ok || v == nil {
		return def
	}
	var out string
	if err := mapstructure.WeakDecode(v, &out); err != nil {
		return def
	}
	return out
}

// GetBool returns name as a boolean. "yes" and "on" count as true.
func (p Params) GetBool(name string, def bool) bool {
	v, ok := p[name]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "on":
			return true
		case "no", "off", "":
			return false
		}
	}
	var out bool
	if err := mapstructure.WeakDecode(v, &out); err != nil {
		return def
	}
	return out
}

// GetInt returns name as an int.
func (p Params) GetInt(name string, def int) int {
	v, ok := p[name]
	if !ok || v == nil {
		return def
	}
	var out int
	if err := mapstructure.WeakDecode(v, &out); err != nil {
		return def
	}
	return out
}

// Set assigns value to name.
func (p Params) Set(name string, value any) {
	p[name] = value
}

// Remove deletes name.
func (p Params) Remove(name string) {
	delete(p, name)
}

// Clone deep copies the bag.
func (p Params) Clone() Params {
	return Params(CloneMap(p))
}

// Merge returns a copy of p overlaid with other.
func (p Params) Merge(other Params) Params {
	return Params(CopyMaps(p, other))
}

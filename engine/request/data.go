package request

import (
	"maps"
	"slices"
	"strings"

	"github.com/compozy/relay/engine/core"
)

// Source names one of the value bags of a DataHolder.
type Source string

const (
	SourceParameters Source = "parameters"
	SourceCookies    Source = "cookies"
	SourceFiles      Source = "files"
	SourceHeaders    Source = "headers"
)

// Sources lists every source in lookup order.
var Sources = []Source{SourceParameters, SourceCookies, SourceFiles, SourceHeaders}

// UploadedFile is a file received with the request.
type UploadedFile struct {
	Name        string
	ContentType string
	Size        int64
	Content     []byte
}

// DataHolder is the mutable multi-source bag of request values. Names may
// address nested values with bracket syntax, e.g. "user[address][zip]".
type DataHolder struct {
	sources map[Source]map[string]any
}

// NewDataHolder creates an empty holder.
func NewDataHolder() *DataHolder {
	d := &DataHolder{sources: make(map[Source]map[string]any, len(Sources))}
	for _, s := range Sources {
		d.sources[s] = make(map[string]any)
	}
	return d
}

// FromParameters creates a holder whose parameter source is params.
func FromParameters(params map[string]any) *DataHolder {
	d := NewDataHolder()
	for k, v := range params {
		d.sources[SourceParameters][k] = v
	}
	return d
}

func (d *DataHolder) bag(source Source) map[string]any {
	b, ok := d.sources[source]
	if !ok {
		b = make(map[string]any)
		d.sources[source] = b
	}
	return b
}

// Get returns the value stored under name in source.
func (d *DataHolder) Get(source Source, name string) (any, bool) {
	current := any(d.bag(source))
	for _, part := range splitPath(name) {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Has reports whether source holds name.
func (d *DataHolder) Has(source Source, name string) bool {
	_, ok := d.Get(source, name)
	return ok
}

// Set stores value under name in source, creating intermediate maps.
func (d *DataHolder) Set(source Source, name string, value any) {
	parts := splitPath(name)
	if len(parts) == 0 {
		return
	}
	current := d.bag(source)
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// Remove deletes name from source and returns the removed value.
func (d *DataHolder) Remove(source Source, name string) (any, bool) {
	parts := splitPath(name)
	if len(parts) == 0 {
		return nil, false
	}
	current := d.bag(source)
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	last := parts[len(parts)-1]
	v, ok := current[last]
	delete(current, last)
	return v, ok
}

// Names returns the sorted top level names of source.
func (d *DataHolder) Names(source Source) []string {
	return slices.Sorted(maps.Keys(d.bag(source)))
}

// All returns a deep copy of source.
func (d *DataHolder) All(source Source) map[string]any {
	return core.CloneMap(d.bag(source))
}

// Parameter is shorthand for Get(SourceParameters, name).
func (d *DataHolder) Parameter(name string) (any, bool) {
	return d.Get(SourceParameters, name)
}

// SetParameter is shorthand for Set(SourceParameters, name, value).
func (d *DataHolder) SetParameter(name string, value any) {
	d.Set(SourceParameters, name, value)
}

// Cookie returns a cookie value.
func (d *DataHolder) Cookie(name string) (any, bool) {
	return d.Get(SourceCookies, name)
}

// Header returns a header value.
func (d *DataHolder) Header(name string) (any, bool) {
	return d.Get(SourceHeaders, name)
}

// File returns an uploaded file.
func (d *DataHolder) File(name string) (*UploadedFile, bool) {
	v, ok := d.Get(SourceFiles, name)
	if !ok {
		return nil, false
	}
	f, ok := v.(*UploadedFile)
	return f, ok
}

// Clone returns a deep copy so mutations never leak across containers.
func (d *DataHolder) Clone() *DataHolder {
	out := &DataHolder{sources: make(map[Source]map[string]any, len(d.sources))}
	for s, bag := range d.sources {
		out.sources[s] = core.CloneMap(bag)
	}
	return out
}

// Export returns a deep copy of every non-empty source.
func (d *DataHolder) Export() map[Source]map[string]any {
	out := make(map[Source]map[string]any, len(d.sources))
	for s, bag := range d.sources {
		if len(bag) > 0 {
			out[s] = core.CloneMap(bag)
		}
	}
	return out
}

// Import creates a holder from the output of Export.
func Import(sources map[Source]map[string]any) *DataHolder {
	d := NewDataHolder()
	for s, bag := range sources {
		d.sources[s] = core.CloneMap(bag)
	}
	return d
}

// Merge overlays every source of other onto d. Nested maps are merged
// key by key; other values replace existing ones.
func (d *DataHolder) Merge(other *DataHolder) {
	if other == nil {
		return
	}
	for s, bag := range other.sources {
		mergeInto(d.bag(s), core.CloneMap(bag))
	}
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		sm, srcIsMap := v.(map[string]any)
		dm, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeInto(dm, sm)
			continue
		}
		dst[k] = v
	}
}

// splitPath turns "a[b][c]" into [a b c].
func splitPath(name string) []string {
	if name == "" {
		return nil
	}
	idx := strings.IndexByte(name, '[')
	if idx < 0 {
		return []string{name}
	}
	parts := []string{name[:idx]}
	rest := name[idx:]
	for len(rest) > 0 && rest[0] == '[' {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			parts[len(parts)-1] += rest
			break
		}
		parts = append(parts, rest[1:end])
		rest = rest[end+1:]
	}
	return parts
}

package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/engine/request"
)

// Snapshot is the serializable state of a container. Collaborators are
// kept by name only: the dispatcher by its context name and the output
// type by its name. Request data is never stored; it is taken from the
// global request again when the restored container executes.
type Snapshot struct {
	Context       string                            `json:"context"`
	Module        string                            `json:"module"`
	Controller    string                            `json:"controller"`
	ViewModule    string                            `json:"view_module,omitempty"`
	View          string                            `json:"view,omitempty"`
	RequestMethod string                            `json:"request_method"`
	OutputType    string                            `json:"output_type"`
	Parameters    map[string]any                    `json:"parameters,omitempty"`
	Arguments     map[request.Source]map[string]any `json:"arguments,omitempty"`
	Attributes    map[string]map[string]any         `json:"attributes,omitempty"`
	Next          *Snapshot                         `json:"next,omitempty"`
}

// Snapshot captures the state of c and of its pending forwards.
func (c *Container) Snapshot() *Snapshot {
	s := &Snapshot{
		Context:       c.dispatcher.name,
		Module:        c.moduleName,
		Controller:    c.controllerName,
		ViewModule:    c.viewModuleName,
		View:          c.viewName,
		RequestMethod: c.requestMethod,
		OutputType:    c.outputType.Name,
		Parameters:    core.CloneMap(c.parameters),
	}
	if c.arguments != nil {
		s.Arguments = c.arguments.Export()
	}
	for _, ns := range c.attributes.Namespaces() {
		if s.Attributes == nil {
			s.Attributes = make(map[string]map[string]any)
		}
		attrs := c.attributes.Attributes(ns)
		for k, v := range attrs {
			if err, ok := v.(error); ok {
				attrs[k] = err.Error()
			}
		}
		s.Attributes[ns] = attrs
	}
	if c.next != nil {
		s.Next = c.next.Snapshot()
	}
	return s
}

// Marshal encodes the snapshot as JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot decodes a snapshot produced by Marshal.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding container snapshot: %w", err)
	}
	return &s, nil
}

// Restore recreates a container from s for the request state of ex. It
// fails with core.ErrUnknownContext when no dispatcher is registered under
// the snapshot's context name.
func Restore(s *Snapshot, ex *Exchange) (*Container, error) {
	d, err := Lookup(s.Context)
	if err != nil {
		return nil, err
	}
	var args *request.DataHolder
	if s.Arguments != nil {
		args = request.Import(s.Arguments)
	}
	c, err := d.CreateContainer(ex, s.Module, s.Controller, args, s.OutputType, s.RequestMethod)
	if err != nil {
		return nil, err
	}
	if s.ViewModule != "" {
		if err := c.SetViewModuleName(s.ViewModule); err != nil {
			return nil, err
		}
	}
	if s.View != "" {
		if err := c.SetViewName(s.View); err != nil {
			return nil, err
		}
	}
	c.parameters = core.Params(core.CloneMap(s.Parameters))
	for ns, attrs := range s.Attributes {
		c.attributes.SetAttributes(ns, attrs)
	}
	if s.Next != nil {
		if c.next, err = Restore(s.Next, ex); err != nil {
			return nil, err
		}
	}
	return c, nil
}

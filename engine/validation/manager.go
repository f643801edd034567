package validation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/engine/request"
	"github.com/compozy/relay/pkg/logger"
	"github.com/google/uuid"
)

// Mode selects what happens to request data nobody validated.
type Mode string

const (
	// ModeRelaxed leaves unvalidated data in place.
	ModeRelaxed Mode = "relaxed"
	// ModeStrict removes parameters and files no validator succeeded on.
	ModeStrict Mode = "strict"
)

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry sets the validator class registry.
func WithRegistry(r *Registry) Option {
	return func(m *Manager) {
		m.registry = r
	}
}

// WithMode sets the cleanup mode.
func WithMode(mode Mode) Option {
	return func(m *Manager) {
		m.mode = mode
	}
}

// WithRequestMethod sets the request method used to filter validators by
// their method parameter.
func WithRequestMethod(method string) Option {
	return func(m *Manager) {
		m.method = method
	}
}

// WithSeverities sets the severity name table.
func WithSeverities(s *Severities) Option {
	return func(m *Manager) {
		m.severities = s
	}
}

// Manager owns a forest of validators and aggregates their results for one
// controller execution.
type Manager struct {
	registry   *Registry
	severities *Severities
	mode       Mode
	method     string

	children  []Validator
	names     map[string]Validator
	incidents []*Incident
	results   map[string]Severity
	succeeded map[string]Argument
	result    Severity
}

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		mode:   ModeRelaxed,
		result: NotProcessed,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = DefaultRegistry()
	}
	if m.severities == nil {
		m.severities = NewSeverities(nil)
	}
	m.reset()
	return m
}

func (m *Manager) reset() {
	m.names = make(map[string]Validator)
	m.results = make(map[string]Severity)
	m.succeeded = make(map[string]Argument)
	m.incidents = nil
}

// Registry returns the class registry validators are created from.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Severities returns the severity name table.
func (m *Manager) Severities() *Severities {
	return m.severities
}

// RequestMethod returns the request method validators are filtered by.
func (m *Manager) RequestMethod() string {
	return m.method
}

// SetRequestMethod changes the request method validators are filtered by.
func (m *Manager) SetRequestMethod(method string) {
	m.method = method
}

// Mode returns the cleanup mode.
func (m *Manager) Mode() Mode {
	return m.mode
}

// CreateValidator builds a validator of spec.Class and attaches it to
// parent, or to the manager itself when parent is nil. Severity, method
// and required are inherited from a parent validator unless spec sets them.
func (m *Manager) CreateValidator(spec Spec, parent Container) (Validator, error) {
	def, err := m.registry.Lookup(spec.Class)
	if err != nil {
		return nil, err
	}
	params := def.Defaults.Merge(spec.Params)
	if pv, ok := parent.(interface{ base() *Base }); ok {
		inherit(params, pv.base())
	}
	name := spec.Name
	if name == "" {
		name = params.GetString("name", "")
	}
	if name == "" {
		name = uuid.NewString()
	}
	if _, exists := m.names[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	severity, err := m.severities.Parse(params.GetString("severity", "error"))
	if err != nil {
		return nil, fmt.Errorf("validator %s: %w", name, err)
	}
	b := &Base{
		class:    def.Class,
		name:     name,
		params:   params,
		args:     specArguments(spec),
		keys:     spec.Keys,
		errors:   spec.Errors,
		severity: severity,
		required: params.GetBool("required", true),
		methods:  strings.Fields(params.GetString("method", "")),
		export:   params.GetString("export", ""),
		manager:  m,
		result:   NotProcessed,
	}
	v, err := def.Factory(b)
	if err != nil {
		return nil, fmt.Errorf("validator %s (%s): %w", name, def.Class, err)
	}
	if parent == nil {
		parent = m
	}
	reparent(v, parent)
	m.names[name] = v
	return v, nil
}

func inherit(params core.Params, parent *Base) {
	if !params.Has("severity") {
		params.Set("severity", parent.severity.String())
	}
	if !params.Has("method") && len(parent.methods) > 0 {
		params.Set("method", strings.Join(parent.methods, " "))
	}
	if !params.Has("required") {
		params.Set("required", parent.required)
	}
}

func specArguments(spec Spec) []Argument {
	args := make([]Argument, 0, len(spec.Arguments)+len(spec.Keys))
	for _, a := range spec.Arguments {
		if a.Source == "" {
			a.Source = request.SourceParameters
		}
		args = append(args, a)
	}
	keys := make([]string, 0, len(spec.Keys))
	for k := range spec.Keys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		a := NewArgument(spec.Keys[k])
		if !slices.ContainsFunc(args, func(x Argument) bool { return x.Hash() == a.Hash() }) {
			args = append(args, a)
		}
	}
	return args
}

func reparent(v Validator, c Container) {
	b := v.base()
	if b.parent != nil {
		b.parent.removeChild(v)
	}
	b.parent = c
	c.addChild(v)
}

// RegisterValidators attaches validators as top level validators of the
// manager, detaching them from their previous container.
func (m *Manager) RegisterValidators(vs ...Validator) {
	for _, v := range vs {
		reparent(v, m)
		m.names[v.Name()] = v
	}
}

func (m *Manager) addChild(v Validator) {
	m.children = append(m.children, v)
}

func (m *Manager) removeChild(v Validator) {
	m.children = slices.DeleteFunc(m.children, func(c Validator) bool { return c == v })
}

// AddIncident records a failed validator run and raises the aggregate
// result to its severity.
func (m *Manager) AddIncident(inc *Incident) {
	m.incidents = append(m.incidents, inc)
	m.result = max(m.result, inc.Severity)
}

func (m *Manager) recordResult(b *Base, result Severity) {
	m.results[b.name] = result
	if result != Success {
		return
	}
	for _, a := range b.Arguments() {
		m.succeeded[a.Hash()] = a
	}
}

// Validator returns the validator registered under name.
func (m *Manager) Validator(name string) (Validator, bool) {
	v, ok := m.names[name]
	return v, ok
}

// Children returns the top level validators in evaluation order.
func (m *Manager) Children() []Validator {
	return slices.Clone(m.children)
}

// Execute runs every top level validator over rd and returns the worst
// severity seen. A critical result stops the run.
func (m *Manager) Execute(ctx context.Context, rd *request.DataHolder) Severity {
	log := logger.FromContext(ctx).With("component", "validation_manager")
	result := Success
	for _, v := range m.children {
		r := v.Execute(ctx, rd)
		result = max(result, r)
		if r >= Critical {
			log.Debug("Critical validator result, stopping", "validator", v.Name())
			break
		}
	}
	m.result = max(m.result, result)
	if m.mode == ModeStrict {
		m.clean(rd)
	}
	log.Debug("Validation finished",
		"validators", len(m.children),
		"incidents", len(m.incidents),
		"result", m.result.String(),
	)
	return m.result
}

// Result returns the aggregate severity, NotProcessed before any run.
func (m *Manager) Result() Severity {
	return m.result
}

// Incidents returns every incident recorded so far.
func (m *Manager) Incidents() []*Incident {
	return slices.Clone(m.incidents)
}

// IncidentsFor returns the incidents with an error on field.
func (m *Manager) IncidentsFor(field string) []*Incident {
	var out []*Incident
	for _, inc := range m.incidents {
		if slices.ContainsFunc(inc.Errors, func(e *ValidationError) bool { return e.HasField(field) }) {
			out = append(out, inc)
		}
	}
	return out
}

// Errors returns the error messages per field.
func (m *Manager) Errors() map[string][]string {
	out := make(map[string][]string)
	for _, inc := range m.incidents {
		for _, e := range inc.Errors {
			for _, f := range e.Fields() {
				out[f] = append(out[f], e.Message)
			}
		}
	}
	return out
}

// ValidatorResult reports how the validator registered under name ended
// and which incidents it caused.
func (m *Manager) ValidatorResult(name string) (*ValidatorResult, bool) {
	if _, ok := m.names[name]; !ok {
		return nil, false
	}
	res := &ValidatorResult{Name: name, Severity: NotProcessed}
	if s, ok := m.results[name]; ok {
		res.Severity = s
	}
	for _, inc := range m.incidents {
		if inc.Validator == name {
			res.Incidents = append(res.Incidents, inc)
		}
	}
	return res, true
}

// SucceededArguments returns the arguments of every validator that ended
// with Success, sorted by source and name.
func (m *Manager) SucceededArguments() []Argument {
	out := make([]Argument, 0, len(m.succeeded))
	for _, a := range m.succeeded {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Argument) int { return strings.Compare(a.Hash(), b.Hash()) })
	return out
}

// Clear resets run state so the validators can execute again. Registered
// validators are kept.
func (m *Manager) Clear() {
	for _, v := range m.children {
		v.Clear()
	}
	m.incidents = nil
	m.results = make(map[string]Severity)
	m.succeeded = make(map[string]Argument)
	m.result = NotProcessed
}

// Shutdown detaches every validator.
func (m *Manager) Shutdown() {
	m.children = nil
	m.reset()
	m.result = NotProcessed
}

func (m *Manager) clean(rd *request.DataHolder) {
	for _, src := range []request.Source{request.SourceParameters, request.SourceFiles} {
		for _, name := range rd.Names(src) {
			m.cleanValue(rd, src, name)
		}
	}
}

func (m *Manager) cleanValue(rd *request.DataHolder, src request.Source, path string) {
	keep, descend := false, false
	for _, a := range m.succeeded {
		if a.Source != src {
			continue
		}
		switch {
		case a.Name == path, strings.HasPrefix(path, a.Name+"["):
			keep = true
		case strings.HasPrefix(a.Name, path+"["):
			descend = true
		}
	}
	if keep {
		return
	}
	if descend {
		if v, ok := rd.Get(src, path); ok {
			if sub, ok := v.(map[string]any); ok {
				for key := range sub {
					m.cleanValue(rd, src, path+"["+key+"]")
				}
				return
			}
		}
	}
	rd.Remove(src, path)
}

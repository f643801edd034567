package validation

import (
	"context"
	"slices"
	"strings"

	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/engine/request"
)

// Validator is one node of a validator tree. Implementations embed *Base,
// which provides everything but Execute.
type Validator interface {
	Name() string
	Execute(ctx context.Context, rd *request.DataHolder) Severity
	Validated() bool
	Clear()
	base() *Base
}

// Container owns validators and collects the incidents they report. The
// Manager and every operator are containers.
type Container interface {
	AddIncident(inc *Incident)
	addChild(v Validator)
	removeChild(v Validator)
}

// CheckFunc is the rule of a leaf validator.
type CheckFunc func(ctx context.Context, rd *request.DataHolder) bool

// Spec carries everything a validator is created from.
type Spec struct {
	Class     string
	Name      string
	Arguments []Argument
	// Keys optionally names arguments by role, e.g. "id" -> "product_id".
	Keys   map[string]string
	Errors map[string]string
	Params core.Params
}

// Base holds the state shared by all validators.
type Base struct {
	class    string
	name     string
	params   core.Params
	args     []Argument
	keys     map[string]string
	errors   map[string]string
	defaults map[string]string
	severity Severity
	required bool
	methods  []string
	export   string

	manager   *Manager
	parent    Container
	incident  *Incident
	validated bool
	result    Severity
}

func (b *Base) base() *Base {
	return b
}

// Name returns the unique name of the validator.
func (b *Base) Name() string {
	return b.name
}

// Class returns the registry class the validator was built from.
func (b *Base) Class() string {
	return b.class
}

// Params returns the parameter bag.
func (b *Base) Params() core.Params {
	return b.params
}

// Severity returns the severity reported when the validator fails.
func (b *Base) Severity() Severity {
	return b.severity
}

// SetSeverity changes the failure severity.
func (b *Base) SetSeverity(s Severity) {
	b.severity = s
}

// Required reports whether missing arguments fail the validator.
func (b *Base) Required() bool {
	return b.required
}

// Validated reports whether the validator ran since the last Clear.
func (b *Base) Validated() bool {
	return b.validated
}

// Result returns the severity of the last run.
func (b *Base) Result() Severity {
	return b.result
}

// Clear resets the run state.
func (b *Base) Clear() {
	b.validated = false
	b.incident = nil
	b.result = NotProcessed
}

// Manager returns the manager that created the validator.
func (b *Base) Manager() *Manager {
	return b.manager
}

// Arguments returns the arguments, prefixed with the base parameter.
func (b *Base) Arguments() []Argument {
	out := make([]Argument, len(b.args))
	for i, a := range b.args {
		out[i] = Argument{Name: b.fieldName(a.Name), Source: a.Source}
	}
	return out
}

// Argument returns the first argument.
func (b *Base) Argument() (Argument, bool) {
	args := b.Arguments()
	if len(args) == 0 {
		return Argument{}, false
	}
	return args[0], true
}

// KeyedArgument returns the argument registered under role key.
func (b *Base) KeyedArgument(key string) (Argument, bool) {
	name, ok := b.keys[key]
	if !ok {
		return Argument{}, false
	}
	for _, a := range b.Arguments() {
		if a.Name == b.fieldName(name) {
			return a, true
		}
	}
	return Argument{}, false
}

// HasMultipleArguments reports whether the validator reads several fields.
func (b *Base) HasMultipleArguments() bool {
	return len(b.args) > 1
}

func (b *Base) fieldName(name string) string {
	prefix := b.params.GetString("base", "")
	if prefix == "" {
		return name
	}
	head, tail, found := strings.Cut(name, "[")
	if found {
		return prefix + "[" + head + "][" + tail
	}
	return prefix + "[" + name + "]"
}

// Data returns the value of a.
func (b *Base) Data(rd *request.DataHolder, a Argument) (any, bool) {
	src := a.Source
	if src == "" {
		src = request.SourceParameters
	}
	return rd.Get(src, a.Name)
}

// Value returns the value of the first argument.
func (b *Base) Value(rd *request.DataHolder) (any, bool) {
	a, ok := b.Argument()
	if !ok {
		return nil, false
	}
	return b.Data(rd, a)
}

// SetDefaultError registers the message used for index when neither the
// error map nor the parameters define one.
func (b *Base) SetDefaultError(index, message string) {
	if b.defaults == nil {
		b.defaults = make(map[string]string)
	}
	b.defaults[index] = message
}

func (b *Base) hasError(index string) bool {
	if _, ok := b.errors[index]; ok {
		return true
	}
	if index == "" {
		return b.params.Has("error")
	}
	return b.params.Has(index + "_error")
}

func (b *Base) message(index string) string {
	if msg, ok := b.errors[index]; ok {
		return msg
	}
	if index != "" {
		if msg := b.params.GetString(index+"_error", ""); msg != "" {
			return msg
		}
	}
	if msg, ok := b.errors[""]; ok {
		return msg
	}
	if msg := b.params.GetString("error", ""); msg != "" {
		return msg
	}
	if msg, ok := b.defaults[index]; ok {
		return msg
	}
	return b.defaults[""]
}

// ThrowError records an error for index against the given arguments, or
// against all arguments of the validator when none are passed.
func (b *Base) ThrowError(index string, args ...Argument) {
	if len(args) == 0 {
		args = b.Arguments()
	}
	if b.incident == nil {
		b.incident = &Incident{Validator: b.name, Severity: b.severity}
	}
	b.incident.AddError(NewValidationError(b.message(index), index, args...))
}

// Export writes value into the request data under the name given by the
// export parameter. It does nothing when export is unset.
func (b *Base) Export(rd *request.DataHolder, value any) {
	if b.export == "" {
		return
	}
	src := request.Source(b.params.GetString("export_source", string(request.SourceParameters)))
	rd.Set(src, b.export, value)
}

// appliesTo reports whether the validator runs for the request method.
func (b *Base) appliesTo(method string) bool {
	return len(b.methods) == 0 || method == "" || slices.Contains(b.methods, method)
}

func (b *Base) argumentsSet(rd *request.DataHolder) bool {
	for _, a := range b.Arguments() {
		v, ok := b.Data(rd, a)
		if !ok || isEmpty(v) {
			return false
		}
	}
	return true
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case *request.UploadedFile:
		return t == nil || t.Size == 0
	default:
		return false
	}
}

// begin starts a run. It returns false when the validator does not apply
// to the current request method.
func (b *Base) begin() bool {
	b.incident = nil
	method := ""
	if b.manager != nil {
		method = b.manager.RequestMethod()
	}
	if !b.appliesTo(method) {
		b.result = NotProcessed
		return false
	}
	b.validated = true
	return true
}

// finish records the result and reports the incident of a failed run to
// the parent container.
func (b *Base) finish(result Severity) Severity {
	b.record(result)
	if result <= Success {
		b.incident = nil
		return result
	}
	if b.incident == nil {
		b.ThrowError("")
	}
	inc := b.incident
	b.incident = nil
	inc.Severity = result
	if b.parent != nil {
		b.parent.AddIncident(inc)
	}
	return result
}

func (b *Base) record(result Severity) Severity {
	b.result = result
	if b.manager != nil {
		b.manager.recordResult(b, result)
	}
	return result
}

// Run executes a leaf rule: it honors the method filter and the required
// flag, then calls check.
func (b *Base) Run(ctx context.Context, rd *request.DataHolder, check CheckFunc) Severity {
	if !b.begin() {
		return NotProcessed
	}
	var result Severity
	switch {
	case !b.argumentsSet(rd):
		if !b.required {
			return b.finish(NotProcessed)
		}
		b.ThrowError("required")
		result = b.severity
	case check(ctx, rd):
		result = Success
	default:
		result = b.severity
	}
	return b.finish(result)
}

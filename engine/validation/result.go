package validation

import (
	"github.com/compozy/relay/engine/request"
)

// Argument identifies one input field by name and source.
type Argument struct {
	Name   string
	Source request.Source
}

// NewArgument creates an argument reading from the parameter source.
func NewArgument(name string) Argument {
	return Argument{Name: name, Source: request.SourceParameters}
}

// Hash returns the identity used to deduplicate arguments.
func (a Argument) Hash() string {
	src := a.Source
	if src == "" {
		src = request.SourceParameters
	}
	return string(src) + "/" + a.Name
}

// ValidationError is one message produced by a failing validator.
type ValidationError struct {
	Message   string
	Name      string
	Arguments []Argument
	Incident  *Incident
}

// NewValidationError creates an error for the given arguments, dropping
// duplicates.
func NewValidationError(message, name string, args ...Argument) *ValidationError {
	e := &ValidationError{Message: message, Name: name}
	seen := make(map[string]struct{}, len(args))
	for _, a := range args {
		if _, ok := seen[a.Hash()]; ok {
			continue
		}
		seen[a.Hash()] = struct{}{}
		e.Arguments = append(e.Arguments, a)
	}
	return e
}

// Fields returns the names of the affected arguments.
func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Arguments))
	for _, a := range e.Arguments {
		fields = append(fields, a.Name)
	}
	return fields
}

// HasArgument reports whether the error affects a.
func (e *ValidationError) HasArgument(a Argument) bool {
	for _, arg := range e.Arguments {
		if arg.Hash() == a.Hash() {
			return true
		}
	}
	return false
}

// HasField reports whether the error affects the parameter named field.
func (e *ValidationError) HasField(field string) bool {
	return e.HasArgument(NewArgument(field))
}

// Incident records one failed validator run.
type Incident struct {
	Validator string
	Severity  Severity
	Errors    []*ValidationError
}

// AddError attaches err to the incident.
func (i *Incident) AddError(err *ValidationError) {
	err.Incident = i
	i.Errors = append(i.Errors, err)
}

// Fields returns the distinct field names affected by the incident.
func (i *Incident) Fields() []string {
	seen := make(map[string]struct{})
	var fields []string
	for _, e := range i.Errors {
		for _, f := range e.Fields() {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			fields = append(fields, f)
		}
	}
	return fields
}

// Messages returns the messages of every error of the incident.
func (i *Incident) Messages() []string {
	out := make([]string, 0, len(i.Errors))
	for _, e := range i.Errors {
		out = append(out, e.Message)
	}
	return out
}

// ValidatorResult answers whether one named validator failed and with
// which incidents.
type ValidatorResult struct {
	Name      string
	Severity  Severity
	Incidents []*Incident
}

// Failed reports whether the validator ended above Success.
func (r *ValidatorResult) Failed() bool {
	return r.Severity > Success
}

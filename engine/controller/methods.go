package controller

import (
	"context"

	"github.com/compozy/relay/engine/request"
	"github.com/compozy/relay/engine/validation"
)

// Generic is the request method key of the handlers used when no handler
// is registered for the current request method.
const Generic = ""

// ExecuteFunc runs the controller logic and names the view to render. It
// is also the signature of error handlers.
type ExecuteFunc func(ctx context.Context, c Container, rd *request.DataHolder) (ViewName, error)

// ValidateFunc is the manual validation hook run after the validators.
type ValidateFunc func(ctx context.Context, c Container, rd *request.DataHolder) (bool, error)

// RegisterValidatorsFunc adds validators programmatically.
type RegisterValidatorsFunc func(ctx context.Context, c Container, m *validation.Manager) error

// Methods is the capability table of a controller: handlers per request
// method, each with a generic fallback registered under Generic.
type Methods struct {
	execute            map[string]ExecuteFunc
	validate           map[string]ValidateFunc
	handleError        map[string]ExecuteFunc
	registerValidators map[string]RegisterValidatorsFunc
}

// NewMethods creates an empty table.
func NewMethods() *Methods {
	return &Methods{
		execute:            make(map[string]ExecuteFunc),
		validate:           make(map[string]ValidateFunc),
		handleError:        make(map[string]ExecuteFunc),
		registerValidators: make(map[string]RegisterValidatorsFunc),
	}
}

// Execute registers the execute handler of method.
func (m *Methods) Execute(method string, fn ExecuteFunc) *Methods {
	m.execute[method] = fn
	return m
}

// Validate registers the manual validation hook of method.
func (m *Methods) Validate(method string, fn ValidateFunc) *Methods {
	m.validate[method] = fn
	return m
}

// HandleError registers the handler run when validation fails for method.
func (m *Methods) HandleError(method string, fn ExecuteFunc) *Methods {
	m.handleError[method] = fn
	return m
}

// RegisterValidators registers the validator hook of method.
func (m *Methods) RegisterValidators(method string, fn RegisterValidatorsFunc) *Methods {
	m.registerValidators[method] = fn
	return m
}

func lookup[F any](table map[string]F, method string) (F, bool) {
	if fn, ok := table[method]; ok {
		return fn, true
	}
	fn, ok := table[Generic]
	return fn, ok
}

// ExecuteFor returns the execute handler of method or the generic one.
func (m *Methods) ExecuteFor(method string) (ExecuteFunc, bool) {
	return lookup(m.execute, method)
}

// ValidateFor returns the validation hook of method or the generic one.
func (m *Methods) ValidateFor(method string) (ValidateFunc, bool) {
	return lookup(m.validate, method)
}

// HandleErrorFor returns the error handler of method or the generic one.
func (m *Methods) HandleErrorFor(method string) (ExecuteFunc, bool) {
	return lookup(m.handleError, method)
}

// RegisterValidatorsFor returns the validator hook of method or the
// generic one.
func (m *Methods) RegisterValidatorsFor(method string) (RegisterValidatorsFunc, bool) {
	return lookup(m.registerValidators, method)
}

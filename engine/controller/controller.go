package controller

import (
	"context"

	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/engine/request"
	"github.com/compozy/relay/engine/response"
	"github.com/compozy/relay/engine/user"
	"github.com/compozy/relay/engine/validation"
)

// Conventional view names.
const (
	ViewInput   = "Input"
	ViewSuccess = "Success"
	ViewError   = "Error"
)

// Container is what controllers and views see of the execution running
// them.
type Container interface {
	ModuleName() string
	ControllerName() string
	RequestMethod() string
	OutputType() *response.OutputType
	Parameters() core.Params
	RequestData() *request.DataHolder
	Response() *response.Response
	User() *user.User
	ValidationManager() *validation.Manager
	Attribute(name string) (any, bool)
	SetAttribute(name string, value any)
	// Attributes returns the attributes of the default namespace, which
	// views pass to templates.
	Attributes() map[string]any
	// NamespacedAttributes returns the attributes of ns.
	NamespacedAttributes(ns string) map[string]any
	// Forward makes the execution continue with another controller once
	// the current handler returns.
	Forward(ctx context.Context, module, controller string) error
}

// Controller is the application logic of one module/controller pair. A
// new instance serves every execution.
type Controller interface {
	Initialize(ctx context.Context, c Container) error
	Methods() *Methods
	IsSecure() bool
	// Credentials lists the credentials required by a secure controller.
	Credentials() []string
	// IsSimple controllers skip filters and validation and only provide a
	// default view.
	IsSimple() bool
	DefaultView() ViewName
}

// Base provides the defaults of Controller: not secure, not simple, no
// handlers and the Input view.
type Base struct {
	container Container
}

func (b *Base) Initialize(_ context.Context, c Container) error {
	b.container = c
	return nil
}

// Container returns the execution the controller was initialized with.
func (b *Base) Container() Container {
	return b.container
}

func (b *Base) Methods() *Methods {
	return NewMethods()
}

func (b *Base) IsSecure() bool {
	return false
}

func (b *Base) Credentials() []string {
	return nil
}

func (b *Base) IsSimple() bool {
	return false
}

func (b *Base) DefaultView() ViewName {
	return Named(ViewInput)
}

// ViewName is the outcome of a controller handler: a view of the current
// module, a view of another module, or no view at all.
type ViewName struct {
	Module string
	Name   string
	none   bool
}

// NoView skips view execution; the response is whatever the controller
// put there.
var NoView = ViewName{none: true}

// Named names a view of the current module.
func Named(name string) ViewName {
	return ViewName{Name: name}
}

// ModuleView names a view of another module.
func ModuleView(module, name string) ViewName {
	return ViewName{Module: module, Name: name}
}

// IsNone reports whether no view should run.
func (v ViewName) IsNone() bool {
	return v.none || v.Name == ""
}

// EvaluateViewName turns a view name relative to a controller into the
// registered view name: controller "Products.Add" and view "Success" give
// "Products/AddSuccess".
func EvaluateViewName(controller, view string) string {
	return core.CanonicalName(controller) + view
}

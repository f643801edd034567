package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/relay/engine/controller"
	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/engine/filter"
	"github.com/compozy/relay/engine/request"
	"github.com/compozy/relay/engine/response"
	"github.com/compozy/relay/engine/user"
	"github.com/compozy/relay/engine/validation"
	"github.com/compozy/relay/pkg/config"
	"github.com/compozy/relay/pkg/logger"
)

// ForwardNamespace prefixes the attribute namespace of system forwards;
// the forward type completes it.
const ForwardNamespace = "org.relay.dispatcher.forwards."

// Container runs one module/controller pair. It resolves the controller,
// prepares its request data, runs the filter chain and finally hands over
// to the next container if a forward was requested.
type Container struct {
	dispatcher *Dispatcher
	exchange   *Exchange

	moduleName     string
	controllerName string
	viewModuleName string
	viewName       string
	requestMethod  string
	outputType     *response.OutputType

	parameters  core.Params
	arguments   *request.DataHolder
	requestData *request.DataHolder
	attributes  *request.AttributeHolder
	response    *response.Response

	controller controller.Controller
	view       controller.View
	chain      *filter.Chain[*Container]
	validation *validation.Manager
	next       *Container
	startedAt  time.Time
}

var _ controller.Container = (*Container)(nil)

// ModuleName returns the module of the controller.
func (c *Container) ModuleName() string { return c.moduleName }

// ControllerName returns the canonical controller name.
func (c *Container) ControllerName() string { return c.controllerName }

// ViewModuleName returns the module of the selected view, empty before
// the controller ran.
func (c *Container) ViewModuleName() string { return c.viewModuleName }

// ViewName returns the selected view, empty before the controller ran.
func (c *Container) ViewName() string { return c.viewName }

// RequestMethod returns the request method the handlers are chosen for.
func (c *Container) RequestMethod() string { return c.requestMethod }

// OutputType returns the output type views render for.
func (c *Container) OutputType() *response.OutputType {
	return c.outputType
}

// SetOutputType switches the output type views render for.
func (c *Container) SetOutputType(name string) error {
	ot, err := c.dispatcher.OutputType(name)
	if err != nil {
		return err
	}
	c.outputType = ot
	if c.response != nil {
		c.response.SetOutputType(ot)
	}
	return nil
}

// Parameters returns the container parameters, such as is_forward. The
// map is live; changes are seen by the container.
func (c *Container) Parameters() core.Params {
	return c.parameters
}

// Arguments returns the extra request data given at creation, nil when
// none.
func (c *Container) Arguments() *request.DataHolder {
	return c.arguments
}

// RequestData returns the data the controller works on. It is nil until
// the container executes.
func (c *Container) RequestData() *request.DataHolder {
	return c.requestData
}

// Response returns the response the controller and view write to.
func (c *Container) Response() *response.Response {
	return c.response
}

// SetResponse replaces the response of the container.
func (c *Container) SetResponse(r *response.Response) {
	c.response = r
}

// User returns the acting user.
func (c *Container) User() *user.User {
	return c.exchange.User
}

// Exchange returns the request state shared with the other containers.
func (c *Container) Exchange() *Exchange {
	return c.exchange
}

// Dispatcher returns the application context of the container.
func (c *Container) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Chain returns the controller filter chain.
func (c *Container) Chain() *filter.Chain[*Container] {
	return c.chain
}

// StartedAt returns when the container was created.
func (c *Container) StartedAt() time.Time {
	return c.startedAt
}

// Attribute returns a view attribute.
func (c *Container) Attribute(name string) (any, bool) {
	return c.attributes.Attribute(name, "")
}

// SetAttribute sets a view attribute.
func (c *Container) SetAttribute(name string, value any) {
	c.attributes.SetAttribute(name, "", value)
}

// Attributes returns a copy of the view attributes.
func (c *Container) Attributes() map[string]any {
	return c.attributes.Attributes("")
}

// NamespacedAttributes returns a copy of the attributes in namespace ns.
func (c *Container) NamespacedAttributes(ns string) map[string]any {
	return c.attributes.Attributes(ns)
}

// SetModuleName sets the module after checking the name.
func (c *Container) SetModuleName(name string) error {
	if err := core.CheckName(core.NameModule, name); err != nil {
		return err
	}
	c.moduleName = name
	return nil
}

// SetControllerName sets the controller in canonical form after checking
// the name.
func (c *Container) SetControllerName(name string) error {
	if err := core.CheckName(core.NameController, name); err != nil {
		return err
	}
	c.controllerName = core.CanonicalName(name)
	return nil
}

// SetViewModuleName sets the module of the view after checking the name.
func (c *Container) SetViewModuleName(name string) error {
	if err := core.CheckName(core.NameModule, name); err != nil {
		return err
	}
	c.viewModuleName = name
	return nil
}

// SetViewName sets the view in canonical form after checking the name.
func (c *Container) SetViewName(name string) error {
	if err := core.CheckName(core.NameView, name); err != nil {
		return err
	}
	c.viewName = core.CanonicalName(name)
	return nil
}

// Next returns the container execution continues with, if any.
func (c *Container) Next() *Container {
	return c.next
}

// SetNext makes execution continue with next once this container is done.
func (c *Container) SetNext(next *Container) {
	c.next = next
}

// ClearNext cancels a pending forward.
func (c *Container) ClearNext() {
	c.next = nil
}

// Controller returns the controller instance, creating and initializing it
// on first use.
func (c *Container) Controller(ctx context.Context) (controller.Controller, error) {
	if c.controller != nil {
		return c.controller, nil
	}
	ctrl, err := c.dispatcher.modules.ResolveController(c.moduleName, c.controllerName)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Initialize(ctx, c); err != nil {
		return nil, fmt.Errorf("initializing controller %s/%s: %w", c.moduleName, c.controllerName, err)
	}
	c.controller = ctrl
	return ctrl, nil
}

// View returns the view instance selected by the controller, creating and
// initializing it on first use.
func (c *Container) View(ctx context.Context) (controller.View, error) {
	if c.view != nil {
		return c.view, nil
	}
	v, err := c.dispatcher.modules.ResolveView(c.viewModuleName, c.viewName)
	if err != nil {
		return nil, err
	}
	if err := v.Initialize(ctx, c); err != nil {
		return nil, fmt.Errorf("initializing view %s/%s: %w", c.viewModuleName, c.viewName, err)
	}
	c.view = v
	return v, nil
}

// ValidationManager returns the validation manager of this execution.
func (c *Container) ValidationManager() *validation.Manager {
	if c.validation == nil {
		c.validation = c.dispatcher.newValidationManager(c.requestMethod)
	}
	return c.validation
}

// CreateContainer creates a container with the output type and request
// method of c. The parameters of c are copied and marked as a forward.
func (c *Container) CreateContainer(module, controllerName string, args *request.DataHolder) (*Container, error) {
	next, err := c.dispatcher.CreateContainer(c.exchange, module, controllerName, args, c.outputType.Name, c.requestMethod)
	if err != nil {
		return nil, err
	}
	next.parameters = c.parameters.Merge(core.Params{"is_forward": true})
	return next, nil
}

// Forward continues the execution with module/controllerName once the
// current handler returns.
func (c *Container) Forward(ctx context.Context, module, controllerName string) error {
	next, err := c.CreateContainer(module, controllerName, nil)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("Forward requested",
		"from", c.moduleName+"/"+c.controllerName,
		"to", next.moduleName+"/"+next.controllerName,
	)
	c.next = next
	return nil
}

// CreateSystemForwardContainer creates the container of the system
// controller configured for kind. The requested module and controller, and
// cause when given, are stored in the ForwardNamespace+kind attribute
// namespace of the new container and of the global request.
func (c *Container) CreateSystemForwardContainer(ctx context.Context, kind string, cause error) (*Container, error) {
	module, controllerName, ok := c.dispatcher.cfg.SystemController(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownForwardType, kind)
	}
	if !c.dispatcher.modules.HasController(module, controllerName) {
		return nil, &core.ConfigurationError{
			Key: "controllers." + kind + "_module",
			Message: fmt.Sprintf("system controller %q of module %q for %s forwards does not exist",
				controllerName, module, kind),
		}
	}
	next, err := c.CreateContainer(module, controllerName, nil)
	if err != nil {
		return nil, err
	}
	info := map[string]any{
		"requested_module":     c.moduleName,
		"requested_controller": c.controllerName,
	}
	if cause != nil {
		info["exception"] = cause
	}
	ns := ForwardNamespace + kind
	next.attributes.SetAttributes(ns, info)
	c.exchange.Request.Attributes().SetAttributes(ns, info)
	c.dispatcher.metrics.RecordForward(ctx, kind)
	logger.FromContext(ctx).Info("System forward",
		"kind", kind,
		"requested", c.moduleName+"/"+c.controllerName,
		"target", module+"/"+controllerName,
	)
	return next, nil
}

// Execute runs the container and returns the response that carries the
// actual output, which is the response of the last container in the
// forward chain.
func (c *Container) Execute(ctx context.Context) (*response.Response, error) {
	d := c.dispatcher
	if err := c.exchange.countExecution(d.cfg.Dispatcher.MaxExecutions); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With("module", c.moduleName, "controller", c.controllerName)
	ctx = logger.ContextWithLogger(ctx, log)

	ctrl, err := c.Controller(ctx)
	switch {
	case errors.Is(err, core.ErrModuleDisabled):
		return c.forwardOnLookup(ctx, config.SystemModuleDisabled, err)
	case errors.Is(err, core.ErrControllerNotFound):
		return c.forwardOnLookup(ctx, config.SystemError404, err)
	case err != nil:
		return nil, err
	}

	c.initRequestData(ctrl)
	if !ctrl.IsSimple() && d.Available() {
		if d.cfg.Core.UseSecurity {
			c.chain.Register(SecurityFilter{})
		}
		if err := d.filters.Load(ctx, c.chain, d.filterDefs, filter.PhaseController, ""); err != nil {
			return nil, err
		}
		if err := d.filters.Load(ctx, c.chain, d.filterDefs, filter.PhaseController, c.moduleName); err != nil {
			return nil, err
		}
	}
	c.chain.Register(DispatchFilter{})

	err = c.chain.Execute(ctx, c)
	d.metrics.RecordExecution(ctx, c.moduleName, c.controllerName, time.Since(c.startedAt), err)
	if err != nil {
		return nil, err
	}
	return c.proceed(ctx)
}

func (c *Container) forwardOnLookup(ctx context.Context, kind string, cause error) (*response.Response, error) {
	next, err := c.CreateSystemForwardContainer(ctx, kind, cause)
	if err != nil {
		return nil, err
	}
	c.next = next
	return c.proceed(ctx)
}

func (c *Container) proceed(ctx context.Context) (*response.Response, error) {
	if c.next != nil {
		return c.next.Execute(ctx)
	}
	return c.response, nil
}

// initRequestData gives simple controllers a copy of the arguments only;
// everything else works on a copy of the global request data with the
// arguments merged on top.
func (c *Container) initRequestData(ctrl controller.Controller) {
	if ctrl.IsSimple() {
		if c.arguments != nil {
			c.requestData = c.arguments.Clone()
		} else {
			c.requestData = request.NewDataHolder()
		}
		return
	}
	c.requestData = c.exchange.data.Clone()
	c.requestData.Merge(c.arguments)
}

// ExecuteController runs the controller and then the view it selected,
// unless the controller forwarded or chose no view.
func (c *Container) ExecuteController(ctx context.Context) (*response.Response, error) {
	view, err := c.runController(ctx)
	if err != nil {
		return nil, err
	}
	if c.next != nil || view.IsNone() {
		return c.response, nil
	}
	viewModule, viewName := view.Module, view.Name
	if viewModule == "" {
		viewModule = c.moduleName
		viewName = controller.EvaluateViewName(c.controllerName, view.Name)
	}
	if err := c.SetViewModuleName(viewModule); err != nil {
		return nil, err
	}
	if err := c.SetViewName(viewName); err != nil {
		return nil, err
	}
	v, err := c.View(ctx)
	if err != nil {
		return nil, err
	}
	render, ok := controller.RendererFor(v, c.outputType.Name)
	if !ok {
		return nil, fmt.Errorf("view %s/%s cannot render output type %s: %w",
			c.viewModuleName, c.viewName, c.outputType.Name, core.ErrUnknownOutputType)
	}
	if err := c.exchange.Request.Guard(func() error { return render(ctx, c) }); err != nil {
		return nil, err
	}
	return c.response, nil
}

// runController runs the handlers of the current request method while the
// global request is locked and returns the selected view.
func (c *Container) runController(ctx context.Context) (controller.ViewName, error) {
	ctrl := c.controller
	req := c.exchange.Request
	methods := ctrl.Methods()
	execute, ok := methods.ExecuteFor(c.requestMethod)
	if ctrl.IsSimple() || !ok {
		var view controller.ViewName
		if err := req.Guard(func() error {
			view = ctrl.DefaultView()
			return nil
		}); err != nil {
			return controller.NoView, err
		}
		if !ctrl.IsSimple() {
			c.ValidationManager().Execute(ctx, c.requestData)
		}
		return view, nil
	}

	var view controller.ViewName
	err := req.Guard(func() error {
		valid, err := c.PerformValidation(ctx)
		if err != nil {
			return err
		}
		if valid {
			view, err = execute(ctx, c, c.requestData)
			return err
		}
		handle, ok := methods.HandleErrorFor(c.requestMethod)
		if !ok {
			view = controller.Named(controller.ViewError)
			return nil
		}
		view, err = handle(ctx, c, c.requestData)
		return err
	})
	if err != nil {
		return controller.NoView, err
	}
	return view, nil
}

// PerformValidation registers the declarative and programmatic validators,
// runs the validation manager and then the manual validation hook. Both
// must pass.
func (c *Container) PerformValidation(ctx context.Context) (bool, error) {
	if err := c.registerValidators(ctx); err != nil {
		return false, err
	}
	vm := c.ValidationManager()
	result := vm.Execute(ctx, c.requestData)
	c.dispatcher.metrics.RecordValidation(ctx, c.moduleName, c.controllerName, result)

	manual := true
	if validate, ok := c.controller.Methods().ValidateFor(c.requestMethod); ok {
		var err error
		if manual, err = validate(ctx, c, c.requestData); err != nil {
			return false, err
		}
	}
	return result.Passed() && manual, nil
}

func (c *Container) registerValidators(ctx context.Context) error {
	vm := c.ValidationManager()
	if loader := c.dispatcher.loader; loader != nil {
		path := core.ValidatorConfigPath(c.moduleName, c.controllerName)
		if err := loader.Apply(ctx, vm, path); err != nil {
			return fmt.Errorf("loading validators of %s/%s: %w", c.moduleName, c.controllerName, err)
		}
	}
	if register, ok := c.controller.Methods().RegisterValidatorsFor(c.requestMethod); ok {
		if err := register(ctx, c, vm); err != nil {
			return err
		}
	}
	return nil
}

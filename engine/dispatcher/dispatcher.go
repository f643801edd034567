package dispatcher

import (
	"context"
	"fmt"
	"io/fs"
	"sync/atomic"
	"time"

	"github.com/compozy/relay/engine/controller"
	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/engine/filter"
	"github.com/compozy/relay/engine/request"
	"github.com/compozy/relay/engine/response"
	"github.com/compozy/relay/engine/validation"
	"github.com/compozy/relay/pkg/config"
	"github.com/compozy/relay/pkg/logger"
)

func errTooManyExecutions(limit int) error {
	return fmt.Errorf("%w: more than %d containers in one request", core.ErrTooManyExecutions, limit)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithOutputTypes registers the output types views can render.
func WithOutputTypes(types ...*response.OutputType) Option {
	return func(d *Dispatcher) {
		for _, ot := range types {
			d.outputTypes[ot.Name] = ot
		}
	}
}

// WithValidatorFS sets the filesystem holding the declarative validator
// definitions, usually the application directory.
func WithValidatorFS(fsys fs.FS) Option {
	return func(d *Dispatcher) {
		d.validatorFS = fsys
	}
}

// WithValidatorRegistry sets the validator classes shared by every
// validation manager.
func WithValidatorRegistry(r *validation.Registry) Option {
	return func(d *Dispatcher) {
		d.validators = r
	}
}

// WithFilters sets the registry of controller phase filters.
func WithFilters(r *filter.Registry[*Container]) Option {
	return func(d *Dispatcher) {
		d.filters = r
	}
}

// WithGlobalFilters sets the registry of global phase filters.
func WithGlobalFilters(r *filter.Registry[*Exchange]) Option {
	return func(d *Dispatcher) {
		d.globalFilters = r
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Dispatcher is the application context: it owns the configuration, the
// module registry and every factory a container needs, and turns requests
// into container executions.
type Dispatcher struct {
	name          string
	cfg           *config.Config
	modules       *controller.Registry
	outputTypes   map[string]*response.OutputType
	validators    *validation.Registry
	severities    *validation.Severities
	validatorFS   fs.FS
	loader        *validation.Loader
	filters       *filter.Registry[*Container]
	globalFilters *filter.Registry[*Exchange]
	filterDefs    []filter.Definition
	metrics       Metrics
	available     atomic.Bool
}

// New creates a dispatcher named name. The default output type of cfg must
// be among the registered output types.
func New(name string, cfg *config.Config, modules *controller.Registry, opts ...Option) (*Dispatcher, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	d := &Dispatcher{
		name:        name,
		cfg:         cfg,
		modules:     modules,
		outputTypes: make(map[string]*response.OutputType),
		severities:  validation.NewSeverities(cfg.Validation.Severities),
		filterDefs:  filter.DefinitionsFromConfig(cfg.Filters),
		metrics:     nopMetrics{},
	}
	d.available.Store(cfg.Core.Available)
	for _, opt := range opts {
		opt(d)
	}
	if d.modules == nil {
		d.modules = controller.NewRegistry()
	}
	if d.validators == nil {
		d.validators = validation.DefaultRegistry()
	}
	if d.filters == nil {
		d.filters = DefaultFilters()
	}
	if d.globalFilters == nil {
		d.globalFilters = DefaultGlobalFilters()
	}
	if _, err := d.OutputType(cfg.Dispatcher.DefaultOutputType); err != nil {
		return nil, &core.ConfigurationError{
			Key:     "dispatcher.default_output_type",
			Message: "default output type is not registered",
			Err:     err,
		}
	}
	if d.validatorFS != nil {
		loader, err := validation.NewLoader(d.validatorFS, cfg.Validation.CacheSize)
		if err != nil {
			return nil, err
		}
		d.loader = loader
	}
	return d, nil
}

// Name returns the context name the dispatcher is registered under.
func (d *Dispatcher) Name() string {
	return d.name
}

// Config returns the application configuration.
func (d *Dispatcher) Config() *config.Config {
	return d.cfg
}

// Available reports whether requests reach their controllers. It starts
// from core.available and follows SetAvailable.
func (d *Dispatcher) Available() bool {
	return d.available.Load()
}

// SetAvailable switches the application in or out of maintenance without
// rebuilding the dispatcher.
func (d *Dispatcher) SetAvailable(available bool) {
	d.available.Store(available)
}

// Modules returns the module registry.
func (d *Dispatcher) Modules() *controller.Registry {
	return d.modules
}

// ValidatorLoader returns the declarative validator loader, nil without a
// validator filesystem.
func (d *Dispatcher) ValidatorLoader() *validation.Loader {
	return d.loader
}

// OutputType returns the output type named name.
func (d *Dispatcher) OutputType(name string) (*response.OutputType, error) {
	ot, ok := d.outputTypes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownOutputType, name)
	}
	return ot, nil
}

func (d *Dispatcher) newValidationManager(method string) *validation.Manager {
	return validation.NewManager(
		validation.WithRegistry(d.validators),
		validation.WithSeverities(d.severities),
		validation.WithMode(validation.Mode(d.cfg.Validation.Mode)),
		validation.WithRequestMethod(method),
	)
}

// CreateContainer creates a container for module/controllerName. Empty
// outputType and method select the configured default output type and the
// method of the global request.
func (d *Dispatcher) CreateContainer(
	ex *Exchange,
	module, controllerName string,
	args *request.DataHolder,
	outputType, method string,
) (*Container, error) {
	if outputType == "" {
		outputType = d.cfg.Dispatcher.DefaultOutputType
	}
	ot, err := d.OutputType(outputType)
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = ex.Request.Method()
	}
	c := &Container{
		dispatcher:    d,
		exchange:      ex,
		requestMethod: method,
		outputType:    ot,
		parameters:    core.Params{},
		arguments:     args,
		attributes:    request.NewAttributeHolder(),
		response:      response.New(ot),
		chain:         filter.NewChain[*Container](),
		startedAt:     time.Now(),
	}
	if err := c.SetModuleName(module); err != nil {
		return nil, err
	}
	if err := c.SetControllerName(controllerName); err != nil {
		return nil, err
	}
	return c, nil
}

// Dispatch runs the global filters and then the container of
// module/controllerName, falling back to the default controller when both
// are empty. While the application is unavailable every request is served
// by the unavailable system controller.
func (d *Dispatcher) Dispatch(ctx context.Context, ex *Exchange, module, controllerName string) (*response.Response, error) {
	ctx = request.ContextWithRequest(ctx, ex.Request)
	log := logger.FromContext(ctx).With("component", "dispatcher", "context", d.name)
	if module == "" && controllerName == "" {
		module = d.cfg.Controllers.DefaultModule
		controllerName = d.cfg.Controllers.DefaultController
	}
	chain := filter.NewChain[*Exchange]()
	if err := d.globalFilters.Load(ctx, chain, d.filterDefs, filter.PhaseGlobal, ""); err != nil {
		return nil, err
	}
	chain.Register(filter.Func[*Exchange](func(ctx context.Context, _ *filter.Chain[*Exchange], ex *Exchange) error {
		c, err := d.CreateContainer(ex, module, controllerName, nil, "", "")
		if err != nil {
			return err
		}
		if !d.Available() {
			if c, err = c.CreateSystemForwardContainer(ctx, config.SystemUnavailable, nil); err != nil {
				return err
			}
		}
		resp, err := c.Execute(ctx)
		if err != nil {
			return err
		}
		ex.SetResponse(resp)
		return nil
	}))
	if err := chain.Execute(ctx, ex); err != nil {
		log.Error("Dispatch failed", "module", module, "controller", controllerName, "error", err)
		return nil, err
	}
	if ex.Response() == nil {
		ot, err := d.OutputType(d.cfg.Dispatcher.DefaultOutputType)
		if err != nil {
			return nil, err
		}
		ex.SetResponse(response.New(ot))
	}
	log.Debug("Dispatch finished",
		"module", module,
		"controller", controllerName,
		"executions", ex.Executions(),
		"status", ex.Response().Status(),
	)
	return ex.Response(), nil
}

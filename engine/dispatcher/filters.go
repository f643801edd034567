package dispatcher

import (
	"context"
	"time"

	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/engine/filter"
	"github.com/compozy/relay/pkg/config"
	"github.com/compozy/relay/pkg/logger"
)

// SecurityFilter lets secure controllers run only for authenticated users
// holding every required credential. Other users are forwarded to the
// login controller, authenticated users lacking credentials to the secure
// controller.
type SecurityFilter struct{}

func (SecurityFilter) FilterName() string { return "security" }

func (SecurityFilter) Execute(ctx context.Context, chain *filter.Chain[*Container], c *Container) error {
	ctrl := c.controller
	if !ctrl.IsSecure() {
		return chain.Execute(ctx, c)
	}
	u := c.User()
	if u.IsAuthenticated() && u.HasCredentials(ctrl.Credentials()...) {
		return chain.Execute(ctx, c)
	}
	kind := config.SystemLogin
	if u.IsAuthenticated() {
		kind = config.SystemSecure
	}
	next, err := c.CreateSystemForwardContainer(ctx, kind, nil)
	if err != nil {
		return err
	}
	c.SetNext(next)
	return nil
}

// DispatchFilter ends every controller chain by running the controller and
// its view.
type DispatchFilter struct{}

func (DispatchFilter) FilterName() string { return "dispatch" }

func (DispatchFilter) Execute(ctx context.Context, _ *filter.Chain[*Container], c *Container) error {
	resp, err := c.ExecuteController(ctx)
	if err != nil {
		return err
	}
	c.SetResponse(resp)
	return nil
}

// ExecutionTimeFilter reports how long the rest of the chain took in a
// response header.
type ExecutionTimeFilter struct {
	Header string
}

func (ExecutionTimeFilter) FilterName() string { return "execution_time" }

func (f ExecutionTimeFilter) Execute(ctx context.Context, chain *filter.Chain[*Container], c *Container) error {
	start := time.Now()
	err := chain.Execute(ctx, c)
	c.Response().SetHeader(f.Header, time.Since(start).String())
	return err
}

// OutputTypeFilter lets requests choose the output type with a request
// parameter, e.g. ?format=json.
type OutputTypeFilter struct {
	Parameter string
}

func (OutputTypeFilter) FilterName() string { return "output_type" }

func (f OutputTypeFilter) Execute(ctx context.Context, chain *filter.Chain[*Container], c *Container) error {
	if v, ok := c.RequestData().Parameter(f.Parameter); ok {
		if name, ok := v.(string); ok && name != "" {
			if err := c.SetOutputType(name); err != nil {
				return err
			}
		}
	}
	return chain.Execute(ctx, c)
}

// RequestLogFilter logs every dispatch with its duration and outcome.
type RequestLogFilter struct {
	Level string
}

func (RequestLogFilter) FilterName() string { return "request_log" }

func (f RequestLogFilter) Execute(ctx context.Context, chain *filter.Chain[*Exchange], ex *Exchange) error {
	start := time.Now()
	err := chain.Execute(ctx, ex)
	log := logger.FromContext(ctx)
	keyvals := []any{
		"request_id", ex.Request.ID(),
		"method", ex.Request.Method(),
		"executions", ex.Executions(),
		"duration", time.Since(start),
	}
	switch {
	case err != nil:
		log.Error("Request failed", append(keyvals, "error", err)...)
	case f.Level == "info":
		log.Info("Request served", keyvals...)
	default:
		log.Debug("Request served", keyvals...)
	}
	return err
}

// DefaultFilters returns the controller phase filters that configuration
// may reference by name.
func DefaultFilters() *filter.Registry[*Container] {
	r := filter.NewRegistry[*Container]()
	// built-in names are unique
	_ = r.Register("execution_time", func(params core.Params) (filter.Filter[*Container], error) {
		return ExecutionTimeFilter{Header: params.GetString("header", "X-Execution-Time")}, nil
	})
	_ = r.Register("output_type", func(params core.Params) (filter.Filter[*Container], error) {
		return OutputTypeFilter{Parameter: params.GetString("parameter", "format")}, nil
	})
	return r
}

// DefaultGlobalFilters returns the global phase filters that configuration
// may reference by name.
func DefaultGlobalFilters() *filter.Registry[*Exchange] {
	r := filter.NewRegistry[*Exchange]()
	_ = r.Register("request_log", func(params core.Params) (filter.Filter[*Exchange], error) {
		return RequestLogFilter{Level: params.GetString("level", "debug")}, nil
	})
	return r
}

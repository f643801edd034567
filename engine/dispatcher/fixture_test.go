package dispatcher

import (
	"context"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/compozy/relay/engine/controller"
	"github.com/compozy/relay/engine/request"
	"github.com/compozy/relay/engine/response"
	"github.com/compozy/relay/engine/user"
	"github.com/compozy/relay/engine/validation"
	"github.com/compozy/relay/pkg/config"
	"github.com/stretchr/testify/require"
)

// nameRenderer renders a template as its name followed by the message
// attribute, if any.
type nameRenderer struct{}

func (nameRenderer) Render(_ context.Context, template string, attrs map[string]any) ([]byte, error) {
	if msg, ok := attrs["message"]; ok {
		return fmt.Appendf(nil, "%s:%v", template, msg), nil
	}
	return []byte(template), nil
}

var htmlOutput = &response.OutputType{Name: "html", ContentType: "text/html", Renderer: nameRenderer{}}

type testController struct {
	controller.Base
	secure      bool
	simple      bool
	credentials []string
	methods     *controller.Methods
	defaultView controller.ViewName
	onDefault   func()
}

func (c *testController) Methods() *controller.Methods {
	if c.methods == nil {
		return controller.NewMethods()
	}
	return c.methods
}

func (c *testController) IsSecure() bool { return c.secure }
func (c *testController) IsSimple() bool { return c.simple }
func (c *testController) Credentials() []string { return c.credentials }

func (c *testController) DefaultView() controller.ViewName {
	if c.onDefault != nil {
		c.onDefault()
	}
	if c.defaultView.Name == "" {
		return c.Base.DefaultView()
	}
	return c.defaultView
}

type templateView struct {
	controller.ViewBase
	template string
}

func (v *templateView) Renderers() map[string]controller.RenderFunc {
	return map[string]controller.RenderFunc{
		controller.Generic: func(ctx context.Context, c controller.Container) error {
			return controller.RenderTemplate(ctx, c, v.template)
		},
	}
}

func view(template string) controller.ViewFactory {
	return func() controller.View { return &templateView{template: template} }
}

func succeed(context.Context, controller.Container, *request.DataHolder) (controller.ViewName, error) {
	return controller.Named(controller.ViewSuccess), nil
}

// page is a controller that always shows its Success view.
func page() controller.Factory {
	return func() controller.Controller {
		return &testController{methods: controller.NewMethods().Execute(controller.Generic, succeed)}
	}
}

type fixture struct {
	cfg   *config.Config
	d     *Dispatcher
	calls map[string]int
}

const addValidators = `
method: write
validators:
  - class: number
    name: amount
    arguments: [amount]
    params:
      min: 1
      export: amount_int
    errors:
      min: Order at least one
`

func newFixture(t *testing.T, mutate func(cfg *config.Config)) *fixture {
	t.Helper()
	f := &fixture{cfg: config.Default(), calls: make(map[string]int)}
	if mutate != nil {
		mutate(f.cfg)
	}

	handled := func(name string) controller.ExecuteFunc {
		return func(ctx context.Context, c controller.Container, rd *request.DataHolder) (controller.ViewName, error) {
			f.calls[name]++
			return succeed(ctx, c, rd)
		}
	}
	system := controller.NewModule("Default").
		Controller("Index", func() controller.Controller {
			return &testController{
				simple:      true,
				defaultView: controller.Named(controller.ViewSuccess),
				onDefault:   func() { f.calls["index_default_view"]++ },
				methods: controller.NewMethods().
					Execute(controller.Generic, handled("index_execute")).
					HandleError(controller.Generic, handled("index_handle_error")).
					Validate(controller.Generic, func(context.Context, controller.Container, *request.DataHolder) (bool, error) {
						f.calls["index_validate"]++
						return true, nil
					}).
					RegisterValidators(controller.Generic, func(context.Context, controller.Container, *validation.Manager) error {
						f.calls["index_register_validators"]++
						return nil
					}),
			}
		}).
		View("IndexSuccess", view("index"))
	for _, name := range []string{"Error404", "ModuleDisabled", "Secure", "Login", "Unavailable"} {
		system.Controller(name, page()).View(name+"Success", view(name))
	}

	account := controller.NewModule("Account").
		Controller("Profile", func() controller.Controller {
			return &testController{
				secure:      true,
				credentials: []string{"member"},
				methods: controller.NewMethods().Execute(controller.Generic,
					func(ctx context.Context, c controller.Container, rd *request.DataHolder) (controller.ViewName, error) {
						f.calls["profile"]++
						return succeed(ctx, c, rd)
					}),
			}
		}).
		View("ProfileSuccess", view("profile"))

	shop := controller.NewModule("Shop").
		Controller("Products.Add", func() controller.Controller {
			return &testController{
				methods: controller.NewMethods().
					Execute(controller.Generic, func(ctx context.Context, c controller.Container, rd *request.DataHolder) (controller.ViewName, error) {
						f.calls["add"]++
						if req, ok := request.FromContext(ctx); ok {
							if _, err := req.RequestData(); err != nil {
								f.calls["locked"]++
							}
						}
						if v, ok := rd.Parameter("amount_int"); ok {
							c.SetAttribute("message", v)
						}
						return succeed(ctx, c, rd)
					}).
					HandleError(controller.Generic, func(_ context.Context, c controller.Container, _ *request.DataHolder) (controller.ViewName, error) {
						c.SetAttribute("message", c.ValidationManager().Errors()["amount"][0])
						return controller.Named(controller.ViewError), nil
					}),
			}
		}).
		Controller("Forwarder", func() controller.Controller {
			return &testController{
				methods: controller.NewMethods().Execute(controller.Generic,
					func(ctx context.Context, c controller.Container, _ *request.DataHolder) (controller.ViewName, error) {
						return controller.NoView, c.Forward(ctx, "Shop", "Products.Add")
					}),
			}
		}).
		Controller("Loop", func() controller.Controller {
			return &testController{
				methods: controller.NewMethods().Execute(controller.Generic,
					func(ctx context.Context, c controller.Container, _ *request.DataHolder) (controller.ViewName, error) {
						return controller.NoView, c.Forward(ctx, "Shop", "Loop")
					}),
			}
		}).
		Controller("Broken", func() controller.Controller {
			return &testController{
				methods: controller.NewMethods().Execute(controller.Generic,
					func(context.Context, controller.Container, *request.DataHolder) (controller.ViewName, error) {
						return controller.NoView, fmt.Errorf("boom")
					}),
			}
		}).
		Controller("Slot", func() controller.Controller {
			return &testController{
				methods: controller.NewMethods().Execute(controller.Generic,
					func(ctx context.Context, c controller.Container, _ *request.DataHolder) (controller.ViewName, error) {
						slot, err := c.(*Container).CreateContainer("Shop", "Products.Add", nil)
						if err != nil {
							return controller.NoView, err
						}
						slot.Parameters()["is_slot"] = true
						resp, err := slot.Execute(ctx)
						if err != nil {
							return controller.NoView, err
						}
						c.SetAttribute("message", string(resp.Content()))
						return succeed(ctx, c, nil)
					}),
			}
		}).
		Controller("Validate", func() controller.Controller {
			return &testController{
				methods: controller.NewMethods().
					Execute(controller.Generic, succeed).
					Validate(controller.Generic, func(_ context.Context, _ controller.Container, rd *request.DataHolder) (bool, error) {
						_, ok := rd.Parameter("token")
						return ok, nil
					}),
			}
		}).
		View("Products/AddSuccess", view("add_success")).
		View("Products/AddError", view("add_error")).
		View("SlotSuccess", view("slot")).
		View("ValidateSuccess", view("validated")).
		View("ValidateError", view("rejected"))

	legacy := controller.NewModule("Legacy").SetEnabled(false).Controller("Index", page())

	modules := controller.NewRegistry()
	require.NoError(t, modules.Register(system, account, shop, legacy))

	fsys := fstest.MapFS{
		"modules/Shop/validate/Products/Add.yaml": {Data: []byte(addValidators)},
	}
	d, err := New(t.Name(), f.cfg, modules, WithOutputTypes(htmlOutput), WithValidatorFS(fsys))
	require.NoError(t, err)
	f.d = d
	return f
}

func (f *fixture) exchange(method string, params map[string]any, u *user.User) *Exchange {
	return NewExchange(request.New(method, request.FromParameters(params)), u)
}

func (f *fixture) dispatch(t *testing.T, ex *Exchange, module, ctrl string) (*response.Response, error) {
	t.Helper()
	return f.d.Dispatch(t.Context(), ex, module, ctrl)
}

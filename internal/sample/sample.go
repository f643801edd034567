// Package sample is a small storefront application served by the relay
// command: a default module with the system pages, an account module with
// login and a secured profile, and a shop module with a validated form.
package sample

import (
	"context"
	"embed"
	"io/fs"
	"net/http"

	"github.com/compozy/relay/engine/controller"
	"github.com/compozy/relay/engine/dispatcher"
	"github.com/compozy/relay/engine/request"
	"github.com/compozy/relay/pkg/config"
)

//go:embed all:app
var embedded embed.FS

// FS returns the embedded application directory holding the validator
// definitions and the templates.
func FS() fs.FS {
	// the directory is embedded
	sub, _ := fs.Sub(embedded, "app")
	return sub
}

// Modules registers the sample modules. Every module shares catalog and
// accounts.
func Modules(catalog *Catalog, accounts Accounts) (*controller.Registry, error) {
	r := controller.NewRegistry()
	if err := r.Register(
		defaultModule(),
		accountModule(accounts),
		shopModule(catalog),
		legacyModule(),
	); err != nil {
		return nil, err
	}
	return r, nil
}

// page is a view rendering one template, optionally with a fixed status.
type page struct {
	controller.ViewBase
	template string
	status   int
}

func (p *page) Renderers() map[string]controller.RenderFunc {
	return map[string]controller.RenderFunc{
		controller.Generic: func(ctx context.Context, c controller.Container) error {
			if p.status != 0 {
				if err := c.Response().SetStatus(p.status); err != nil {
					return err
				}
			}
			return controller.RenderTemplate(ctx, c, p.template)
		},
	}
}

func view(template string) controller.ViewFactory {
	return func() controller.View { return &page{template: template} }
}

func viewWithStatus(template string, status int) controller.ViewFactory {
	return func() controller.View { return &page{template: template, status: status} }
}

// simple is a controller that only shows its Success view.
type simple struct {
	controller.Base
}

func (*simple) IsSimple() bool { return true }

func (*simple) DefaultView() controller.ViewName {
	return controller.Named(controller.ViewSuccess)
}

func simplePage() controller.Factory {
	return func() controller.Controller { return &simple{} }
}

func defaultModule() *controller.Module {
	return controller.NewModule("Default").
		Controller("Index", simplePage()).
		Controller("Error404", func() controller.Controller { return &notFound{} }).
		Controller("ModuleDisabled", simplePage()).
		Controller("Secure", simplePage()).
		Controller("Login", func() controller.Controller { return &loginRedirect{} }).
		Controller("Unavailable", simplePage()).
		View("IndexSuccess", view("Default/Index")).
		View("Error404Success", viewWithStatus("Default/Error404", http.StatusNotFound)).
		View("ModuleDisabledSuccess", viewWithStatus("Default/ModuleDisabled", http.StatusNotFound)).
		View("SecureSuccess", viewWithStatus("Default/Secure", http.StatusForbidden)).
		View("UnavailableSuccess", viewWithStatus("Default/Unavailable", http.StatusServiceUnavailable))
}

// legacyModule is kept registered but switched off; requests to it end on
// the module disabled page.
func legacyModule() *controller.Module {
	return controller.NewModule("Legacy").
		Controller("Index", simplePage()).
		View("IndexSuccess", view("Default/Index")).
		SetEnabled(false)
}

// notFound shows which module and controller were requested.
type notFound struct {
	controller.Base
}

func (n *notFound) Methods() *controller.Methods {
	return controller.NewMethods().Execute(controller.Generic,
		func(_ context.Context, c controller.Container, _ *request.DataHolder) (controller.ViewName, error) {
			for k, v := range c.NamespacedAttributes(dispatcher.ForwardNamespace + config.SystemError404) {
				c.SetAttribute(k, v)
			}
			return controller.Named(controller.ViewSuccess), nil
		})
}

// loginRedirect answers requests for secured controllers of anonymous
// users with a redirect to the login form.
type loginRedirect struct {
	controller.Base
}

func (l *loginRedirect) Methods() *controller.Methods {
	return controller.NewMethods().Execute(controller.Generic,
		func(_ context.Context, c controller.Container, _ *request.DataHolder) (controller.ViewName, error) {
			return controller.NoView, c.Response().SetRedirect("/Account/Login", http.StatusSeeOther)
		})
}

package sample

import (
	"context"
	"net/http"

	"github.com/compozy/relay/engine/controller"
	"github.com/compozy/relay/engine/request"
)

const memberCredential = "member"

func accountModule(accounts Accounts) *controller.Module {
	return controller.NewModule("Account").
		Controller("Login", func() controller.Controller { return &login{accounts: accounts} }).
		Controller("Logout", func() controller.Controller { return &logout{} }).
		Controller("Profile", func() controller.Controller { return &profile{} }).
		View("LoginInput", view("Account/Login")).
		View("LoginError", viewWithStatus("Account/Login", http.StatusUnprocessableEntity)).
		View("ProfileSuccess", view("Account/Profile"))
}

// login shows the form on read and signs the user in on write.
type login struct {
	controller.Base
	accounts Accounts
}

func (l *login) Methods() *controller.Methods {
	return controller.NewMethods().
		Execute("write", l.signIn).
		HandleError("write", showErrors)
}

func (l *login) signIn(_ context.Context, c controller.Container, rd *request.DataHolder) (controller.ViewName, error) {
	email, _ := rd.Parameter("email")
	password, _ := rd.Parameter("password")
	c.SetAttribute("email", email)
	acc, ok := l.accounts[asString(email)]
	if !ok || acc.Password != asString(password) {
		c.SetAttribute("errors", map[string][]string{"password": {"Unknown email or password"}})
		return controller.Named(controller.ViewError), nil
	}
	u := c.User()
	u.SetAuthenticated(true)
	u.AddCredential(acc.Credentials...)
	u.SetAttribute("email", asString(email))
	return controller.NoView, c.Response().SetRedirect("/Account/Profile", http.StatusSeeOther)
}

// showErrors exposes the validation errors and the submitted parameters
// to the Error view.
func showErrors(_ context.Context, c controller.Container, rd *request.DataHolder) (controller.ViewName, error) {
	c.SetAttribute("errors", c.ValidationManager().Errors())
	c.SetAttribute("input", rd.All(request.SourceParameters))
	return controller.Named(controller.ViewError), nil
}

type logout struct {
	controller.Base
}

func (l *logout) Methods() *controller.Methods {
	return controller.NewMethods().Execute(controller.Generic,
		func(_ context.Context, c controller.Container, _ *request.DataHolder) (controller.ViewName, error) {
			c.User().SetAuthenticated(false)
			return controller.NoView, c.Response().SetRedirect("/", http.StatusSeeOther)
		})
}

// profile is only shown to members.
type profile struct {
	controller.Base
}

func (p *profile) IsSecure() bool { return true }

func (p *profile) Credentials() []string { return []string{memberCredential} }

func (p *profile) Methods() *controller.Methods {
	return controller.NewMethods().Execute(controller.Generic,
		func(_ context.Context, c controller.Container, _ *request.DataHolder) (controller.ViewName, error) {
			email, _ := c.User().Attribute("email")
			c.SetAttribute("email", email)
			c.SetAttribute("credentials", c.User().Credentials())
			return controller.Named(controller.ViewSuccess), nil
		})
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

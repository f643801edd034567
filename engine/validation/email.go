package validation

import (
	"context"
	"regexp"

	"github.com/compozy/relay/engine/request"
)

var emailPattern = regexp.MustCompile(`^([a-zA-Z0-9])+\+?([a-zA-Z0-9\._-])*@([a-zA-Z0-9_-])+([a-zA-Z0-9\._-]+)+$`)

// EmailValidator performs a sanity check on an email address. It does not
// implement the full address grammar.
type EmailValidator struct {
	*Base
}

// NewEmail creates an email validator.
func NewEmail(b *Base) (Validator, error) {
	b.SetDefaultError("", "Email is not valid.")
	return &EmailValidator{Base: b}, nil
}

func (e *EmailValidator) Execute(ctx context.Context, rd *request.DataHolder) Severity {
	return e.Run(ctx, rd, e.check)
}

func (e *EmailValidator) check(_ context.Context, rd *request.DataHolder) bool {
	raw, _ := e.Value(rd)
	s, ok := raw.(string)
	if !ok || s == "" || !emailPattern.MatchString(s) {
		e.ThrowError("")
		return false
	}
	e.Export(rd, s)
	return true
}

package controller

import (
	"context"
	"fmt"
)

// RenderFunc produces the response of a view for one output type. It may
// forward instead of rendering.
type RenderFunc func(ctx context.Context, c Container) error

// View presents the result of a controller.
type View interface {
	Initialize(ctx context.Context, c Container) error
	// Renderers maps output type names to render functions. The entry
	// under Generic serves every other output type.
	Renderers() map[string]RenderFunc
}

// ViewBase provides Initialize for views.
type ViewBase struct {
	container Container
}

func (v *ViewBase) Initialize(_ context.Context, c Container) error {
	v.container = c
	return nil
}

// Container returns the execution the view was initialized with.
func (v *ViewBase) Container() Container {
	return v.container
}

// RendererFor returns the render function of outputType or the generic
// one.
func RendererFor(v View, outputType string) (RenderFunc, bool) {
	return lookup(v.Renderers(), outputType)
}

// RenderTemplate renders template with the default attributes of c through
// its output type and writes the result to the response.
func RenderTemplate(ctx context.Context, c Container, template string) error {
	ot := c.OutputType()
	out, err := ot.Render(ctx, template, c.Attributes())
	if err != nil {
		return fmt.Errorf("rendering %s as %s: %w", template, ot.Name, err)
	}
	resp := c.Response()
	if resp.ContentType() == "" {
		resp.SetContentType(ot.ContentType)
	}
	resp.SetContent(out)
	return nil
}

package controller

import (
	"context"
	"testing"

	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/engine/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type indexController struct {
	Base
}

func (c *indexController) Methods() *Methods {
	return NewMethods().
		Execute(Generic, func(context.Context, Container, *request.DataHolder) (ViewName, error) {
			return Named(ViewSuccess), nil
		}).
		Execute("write", func(context.Context, Container, *request.DataHolder) (ViewName, error) {
			return Named(ViewInput), nil
		})
}

type indexView struct {
	ViewBase
}

func (v *indexView) Renderers() map[string]RenderFunc {
	return map[string]RenderFunc{
		"html": func(context.Context, Container) error { return nil },
	}
}

func TestMethods(t *testing.T) {
	t.Run("Should prefer the handler of the request method", func(t *testing.T) {
		m := (&indexController{}).Methods()
		fn, ok := m.ExecuteFor("write")
		require.True(t, ok)
		view, err := fn(t.Context(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, Named(ViewInput), view)
	})

	t.Run("Should fall back to the generic handler", func(t *testing.T) {
		m := (&indexController{}).Methods()
		fn, ok := m.ExecuteFor("read")
		require.True(t, ok)
		view, err := fn(t.Context(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, Named(ViewSuccess), view)
	})

	t.Run("Should report missing handlers", func(t *testing.T) {
		m := NewMethods()
		_, ok := m.ExecuteFor("read")
		assert.False(t, ok)
		_, ok = m.ValidateFor("read")
		assert.False(t, ok)
		_, ok = m.HandleErrorFor("read")
		assert.False(t, ok)
		_, ok = m.RegisterValidatorsFor("read")
		assert.False(t, ok)
	})
}

func TestBase(t *testing.T) {
	t.Run("Should provide defaults", func(t *testing.T) {
		var c Controller = &indexController{}
		assert.False(t, c.IsSecure())
		assert.False(t, c.IsSimple())
		assert.Empty(t, c.Credentials())
		assert.Equal(t, Named(ViewInput), c.DefaultView())
	})
}

func TestViewName(t *testing.T) {
	t.Run("Should tell views apart from no view", func(t *testing.T) {
		assert.True(t, NoView.IsNone())
		assert.True(t, ViewName{}.IsNone())
		assert.False(t, Named(ViewSuccess).IsNone())
		assert.Equal(t, "Shop", ModuleView("Shop", ViewError).Module)
	})

	t.Run("Should evaluate names relative to the controller", func(t *testing.T) {
		assert.Equal(t, "Products/AddSuccess", EvaluateViewName("Products.Add", ViewSuccess))
		assert.Equal(t, "IndexInput", EvaluateViewName("Index", ViewInput))
	})
}

func TestRendererFor(t *testing.T) {
	t.Run("Should fall back to the generic renderer", func(t *testing.T) {
		_, ok := RendererFor(&indexView{}, "html")
		assert.True(t, ok)
		_, ok = RendererFor(&indexView{}, "json")
		assert.False(t, ok)
	})
}

func TestRegistry(t *testing.T) {
	newRegistry := func(t *testing.T) *Registry {
		t.Helper()
		r := NewRegistry()
		require.NoError(t, r.Register(
			NewModule("Default").
				Controller("Index", func() Controller { return &indexController{} }).
				View("IndexSuccess", func() View { return &indexView{} }),
			NewModule("Legacy").
				SetEnabled(false).
				Controller("Index", func() Controller { return &indexController{} }),
		))
		return r
	}

	t.Run("Should resolve controllers and views", func(t *testing.T) {
		r := newRegistry(t)
		c, err := r.ResolveController("Default", "Index")
		require.NoError(t, err)
		assert.IsType(t, &indexController{}, c)
		v, err := r.ResolveView("Default", "IndexSuccess")
		require.NoError(t, err)
		assert.IsType(t, &indexView{}, v)
	})

	t.Run("Should return a fresh instance per resolution", func(t *testing.T) {
		r := newRegistry(t)
		a, _ := r.ResolveController("Default", "Index")
		b, _ := r.ResolveController("Default", "Index")
		assert.NotSame(t, a, b)
	})

	t.Run("Should report disabled modules", func(t *testing.T) {
		_, err := newRegistry(t).ResolveController("Legacy", "Index")
		assert.ErrorIs(t, err, core.ErrModuleDisabled)
		assert.True(t, newRegistry(t).HasController("Legacy", "Index"))
	})

	t.Run("Should report unknown controllers and views", func(t *testing.T) {
		r := newRegistry(t)
		_, err := r.ResolveController("Default", "Missing")
		assert.ErrorIs(t, err, core.ErrControllerNotFound)
		_, err = r.ResolveController("Nowhere", "Index")
		assert.ErrorIs(t, err, core.ErrControllerNotFound)
		_, err = r.ResolveView("Default", "IndexError")
		assert.ErrorIs(t, err, core.ErrViewNotFound)
		var lookup *core.LookupError
		require.ErrorAs(t, err, &lookup)
		assert.Equal(t, "IndexError", lookup.Name)
	})

	t.Run("Should reject duplicate and invalid modules", func(t *testing.T) {
		r := newRegistry(t)
		assert.Error(t, r.Register(NewModule("Default")))
		var nameErr *core.NameError
		assert.ErrorAs(t, r.Register(NewModule("bad/name")), &nameErr)
	})
}

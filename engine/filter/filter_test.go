package filter

import (
	"context"
	"testing"

	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trace struct {
	steps []string
}

func recorder(name string) Func[*trace] {
	return func(ctx context.Context, chain *Chain[*trace], tr *trace) error {
		tr.steps = append(tr.steps, name+":before")
		err := chain.Execute(ctx, tr)
		tr.steps = append(tr.steps, name+":after")
		return err
	}
}

func TestChain_Execute(t *testing.T) {
	t.Run("Should run filters in order around each other", func(t *testing.T) {
		chain := NewChain[*trace]()
		chain.Register(recorder("a"))
		chain.Register(recorder("b"))
		tr := &trace{}
		require.NoError(t, chain.Execute(t.Context(), tr))
		assert.Equal(t, []string{"a:before", "b:before", "b:after", "a:after"}, tr.steps)
		assert.Equal(t, 0, chain.Remaining())
	})

	t.Run("Should truncate the chain when a filter does not continue", func(t *testing.T) {
		chain := NewChain[*trace]()
		chain.Register(Func[*trace](func(_ context.Context, _ *Chain[*trace], tr *trace) error {
			tr.steps = append(tr.steps, "stop")
			return nil
		}))
		chain.Register(recorder("never"))
		tr := &trace{}
		require.NoError(t, chain.Execute(t.Context(), tr))
		assert.Equal(t, []string{"stop"}, tr.steps)
		assert.Equal(t, 1, chain.Remaining())
	})

	t.Run("Should continue past already run filters when executed twice", func(t *testing.T) {
		chain := NewChain[*trace]()
		chain.Register(Func[*trace](func(ctx context.Context, c *Chain[*trace], tr *trace) error {
			if err := c.Execute(ctx, tr); err != nil {
				return err
			}
			return c.Execute(ctx, tr)
		}))
		chain.Register(recorder("b"))
		chain.Register(recorder("c"))
		tr := &trace{}
		require.NoError(t, chain.Execute(t.Context(), tr))
		assert.Equal(t, []string{"b:before", "c:before", "c:after", "b:after"}, tr.steps)
	})

	t.Run("Should propagate errors", func(t *testing.T) {
		chain := NewChain[*trace]()
		chain.Register(recorder("a"))
		chain.Register(Func[*trace](func(context.Context, *Chain[*trace], *trace) error {
			return assert.AnError
		}))
		assert.ErrorIs(t, chain.Execute(t.Context(), &trace{}), assert.AnError)
	})

	t.Run("Should run again after Reset", func(t *testing.T) {
		chain := NewChain[*trace]()
		chain.Register(recorder("a"))
		tr := &trace{}
		require.NoError(t, chain.Execute(t.Context(), tr))
		chain.Reset()
		require.NoError(t, chain.Execute(t.Context(), tr))
		assert.Len(t, tr.steps, 4)
	})
}

type namedFilter struct {
	Func[*trace]
	name string
}

func (n namedFilter) FilterName() string {
	return n.name
}

func TestRegistry_Load(t *testing.T) {
	newRegistry := func(t *testing.T) *Registry[*trace] {
		t.Helper()
		r := NewRegistry[*trace]()
		for _, name := range []string{"audit", "timing", "module_only"} {
			require.NoError(t, r.Register(name, func(params core.Params) (Filter[*trace], error) {
				label := params.GetString("label", name)
				return namedFilter{Func: recorder(label), name: label}, nil
			}))
		}
		return r
	}
	disabled := false
	defs := DefinitionsFromConfig([]config.FilterConfig{
		{Name: "audit"},
		{Name: "timing", Phase: PhaseGlobal},
		{Name: "module_only", Module: "Products", Parameters: map[string]any{"label": "products"}},
		{Name: "audit", Enabled: &disabled},
	})

	t.Run("Should load global scope definitions of the phase", func(t *testing.T) {
		chain := NewChain[*trace]()
		require.NoError(t, newRegistry(t).Load(t.Context(), chain, defs, PhaseController, ""))
		assert.Equal(t, []string{"audit"}, chain.Names())
	})

	t.Run("Should load module scoped definitions", func(t *testing.T) {
		chain := NewChain[*trace]()
		require.NoError(t, newRegistry(t).Load(t.Context(), chain, defs, PhaseController, "Products"))
		assert.Equal(t, []string{"products"}, chain.Names())
	})

	t.Run("Should load global phase definitions", func(t *testing.T) {
		chain := NewChain[*trace]()
		require.NoError(t, newRegistry(t).Load(t.Context(), chain, defs, PhaseGlobal, ""))
		assert.Equal(t, []string{"timing"}, chain.Names())
	})

	t.Run("Should fail on unknown filters", func(t *testing.T) {
		chain := NewChain[*trace]()
		err := newRegistry(t).Load(t.Context(), chain, []Definition{{Name: "nope", Phase: PhaseController, Enabled: true}}, PhaseController, "")
		assert.ErrorIs(t, err, ErrUnknownFilter)
	})

	t.Run("Should reject duplicate registrations", func(t *testing.T) {
		r := newRegistry(t)
		err := r.Register("audit", func(core.Params) (Filter[*trace], error) { return recorder("x"), nil })
		assert.ErrorIs(t, err, ErrDuplicate)
		assert.Equal(t, []string{"audit", "module_only", "timing"}, r.Names())
	})
}

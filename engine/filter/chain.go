package filter

import (
	"context"
	"slices"
)

// Filter intercepts the execution of a chain over a subject of type S. It
// calls chain.Execute to continue; returning without doing so truncates
// the chain.
type Filter[S any] interface {
	Execute(ctx context.Context, chain *Chain[S], subject S) error
}

// Func adapts a function to the Filter interface.
type Func[S any] func(ctx context.Context, chain *Chain[S], subject S) error

// Execute calls f.
func (f Func[S]) Execute(ctx context.Context, chain *Chain[S], subject S) error {
	return f(ctx, chain, subject)
}

// Named is implemented by filters that report a name for logs and
// metrics.
type Named interface {
	FilterName() string
}

// Chain is an ordered, appendable sequence of filters executed through a
// cursor. Each Execute call runs the filter under the cursor and advances
// it, so a filter that calls Execute again continues with the filters
// after the ones already run.
type Chain[S any] struct {
	filters []Filter[S]
	cursor  int
}

// NewChain creates an empty chain.
func NewChain[S any]() *Chain[S] {
	return &Chain[S]{}
}

// Register appends f.
func (c *Chain[S]) Register(f Filter[S]) {
	c.filters = append(c.filters, f)
}

// Execute runs the next filter. It returns nil once the chain is
// exhausted.
func (c *Chain[S]) Execute(ctx context.Context, subject S) error {
	if c.cursor >= len(c.filters) {
		return nil
	}
	f := c.filters[c.cursor]
	c.cursor++
	return f.Execute(ctx, c, subject)
}

// Len returns the number of registered filters.
func (c *Chain[S]) Len() int {
	return len(c.filters)
}

// Remaining returns the number of filters not yet executed.
func (c *Chain[S]) Remaining() int {
	return len(c.filters) - c.cursor
}

// Filters returns the registered filters in order.
func (c *Chain[S]) Filters() []Filter[S] {
	return slices.Clone(c.filters)
}

// Reset rewinds the cursor so the chain can run again.
func (c *Chain[S]) Reset() {
	c.cursor = 0
}

// Names returns the name of every filter, "anonymous" for unnamed ones.
func (c *Chain[S]) Names() []string {
	out := make([]string, len(c.filters))
	for i, f := range c.filters {
		out[i] = NameOf(f)
	}
	return out
}

// NameOf returns the name f reports, or "anonymous".
func NameOf(f any) string {
	if n, ok := f.(Named); ok {
		return n.FilterName()
	}
	return "anonymous"
}

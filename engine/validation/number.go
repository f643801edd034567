package validation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/engine/request"
	"github.com/shopspring/decimal"
)

var numericPattern = regexp.MustCompile(`^\s*[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?\s*$`)

type numberOptions struct {
	Type string   `param:"type"`
	Min  *float64 `param:"min"`
	Max  *float64 `param:"max"`
}

// NumberValidator accepts numeric input of a given type within optional
// inclusive bounds and exports the converted value.
type NumberValidator struct {
	*Base
	opts numberOptions
}

// NewNumber creates a number validator. The type parameter is one of any,
// int, integer, float or double.
func NewNumber(b *Base) (Validator, error) {
	opts, err := core.FromMapDefault[numberOptions](map[string]any(b.params))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	opts.Type = strings.ToLower(opts.Type)
	switch opts.Type {
	case "":
		opts.Type = "any"
	case "any", "int", "integer", "float", "double":
	default:
		return nil, fmt.Errorf("%w: unknown number type %q", ErrInvalidParameter, opts.Type)
	}
	if opts.Min != nil && opts.Max != nil && *opts.Min > *opts.Max {
		return nil, fmt.Errorf("%w: min %v is above max %v", ErrInvalidParameter, *opts.Min, *opts.Max)
	}
	b.SetDefaultError("", "Input is not a number")
	b.SetDefaultError("nan", "Input is not a number")
	b.SetDefaultError("type", "Input is not a number")
	b.SetDefaultError("min", "Input is too small")
	b.SetDefaultError("max", "Input is too large")
	b.SetDefaultError("required", "Input is required")
	return &NumberValidator{Base: b, opts: opts}, nil
}

func (n *NumberValidator) Execute(ctx context.Context, rd *request.DataHolder) Severity {
	return n.Run(ctx, rd, n.check)
}

func (n *NumberValidator) check(_ context.Context, rd *request.DataHolder) bool {
	raw, _ := n.Value(rd)
	s, ok := numericString(raw)
	if !ok || !numericPattern.MatchString(s) {
		n.ThrowError("nan")
		return false
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	var value any
	switch n.opts.Type {
	case "int", "integer":
		i, err := strconv.Atoi(s)
		if err != nil || strconv.Itoa(i) != s {
			n.ThrowError("type")
			return false
		}
		value = i
	case "float", "double":
		if strings.Count(s, ".") != 1 {
			n.ThrowError("type")
			return false
		}
	default:
		if i, err := strconv.Atoi(s); err == nil {
			value = i
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		n.ThrowError("nan")
		return false
	}
	if value == nil {
		value = d.InexactFloat64()
	}
	if n.opts.Min != nil && d.LessThan(decimal.NewFromFloat(*n.opts.Min)) {
		n.ThrowError("min")
		return false
	}
	if n.opts.Max != nil && d.GreaterThan(decimal.NewFromFloat(*n.opts.Max)) {
		n.ThrowError("max")
		return false
	}
	n.Export(rd, value)
	return true
}

func numericString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

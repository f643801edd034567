package validation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/compozy/relay/engine/request"
)

// IssetValidator succeeds when every argument is present, even if empty.
type IssetValidator struct {
	*Base
}

// NewIsset creates an isset validator.
func NewIsset(b *Base) (Validator, error) {
	b.SetDefaultError("", "Input is missing")
	return &IssetValidator{Base: b}, nil
}

func (v *IssetValidator) Execute(_ context.Context, rd *request.DataHolder) Severity {
	if !v.begin() {
		return NotProcessed
	}
	for _, a := range v.Arguments() {
		if _, ok := v.Data(rd, a); !ok {
			v.ThrowError("", a)
		}
	}
	if v.incident != nil {
		return v.finish(v.severity)
	}
	return v.finish(Success)
}

// EqualsValidator compares the input with the value parameter, or with
// another parameter named by value when asparam is set.
type EqualsValidator struct {
	*Base
}

// NewEquals creates an equals validator.
func NewEquals(b *Base) (Validator, error) {
	if !b.params.Has("value") {
		return nil, fmt.Errorf("%w: value is required", ErrInvalidParameter)
	}
	b.SetDefaultError("", "Input does not match")
	return &EqualsValidator{Base: b}, nil
}

func (v *EqualsValidator) Execute(ctx context.Context, rd *request.DataHolder) Severity {
	return v.Run(ctx, rd, v.check)
}

func (v *EqualsValidator) check(_ context.Context, rd *request.DataHolder) bool {
	raw, _ := v.Value(rd)
	expected := v.params.GetString("value", "")
	if v.params.GetBool("asparam", false) {
		other, ok := rd.Parameter(v.fieldName(expected))
		if !ok {
			v.ThrowError("")
			return false
		}
		expected = fmt.Sprint(other)
	}
	if fmt.Sprint(raw) != expected {
		v.ThrowError("")
		return false
	}
	return true
}

// InArrayValidator succeeds when the input is one of the values parameter.
// values is a list or a string split on sep.
type InArrayValidator struct {
	*Base
	values []string
	strict bool
}

// NewInArray creates an inarray validator.
func NewInArray(b *Base) (Validator, error) {
	var values []string
	switch t := b.params.Get("values", nil).(type) {
	case string:
		for part := range strings.SplitSeq(t, b.params.GetString("sep", ",")) {
			values = append(values, strings.TrimSpace(part))
		}
	case []any:
		for _, item := range t {
			values = append(values, fmt.Sprint(item))
		}
	case []string:
		values = slices.Clone(t)
	default:
		return nil, fmt.Errorf("%w: values is required", ErrInvalidParameter)
	}
	strict := b.params.GetBool("case", false)
	if !strict {
		for i := range values {
			values[i] = strings.ToLower(values[i])
		}
	}
	b.SetDefaultError("", "Input is not an allowed value")
	return &InArrayValidator{Base: b, values: values, strict: strict}, nil
}

func (v *InArrayValidator) Execute(ctx context.Context, rd *request.DataHolder) Severity {
	return v.Run(ctx, rd, v.check)
}

func (v *InArrayValidator) check(_ context.Context, rd *request.DataHolder) bool {
	raw, _ := v.Value(rd)
	s := fmt.Sprint(raw)
	if !v.strict {
		s = strings.ToLower(s)
	}
	if !slices.Contains(v.values, s) {
		v.ThrowError("")
		return false
	}
	return true
}

// SetValidator always succeeds and exports the value parameter.
type SetValidator struct {
	*Base
}

// NewSet creates a set validator.
func NewSet(b *Base) (Validator, error) {
	if b.export == "" {
		return nil, fmt.Errorf("%w: export is required", ErrInvalidParameter)
	}
	return &SetValidator{Base: b}, nil
}

func (v *SetValidator) Execute(_ context.Context, rd *request.DataHolder) Severity {
	if !v.begin() {
		return NotProcessed
	}
	v.Export(rd, v.params.Get("value", nil))
	return v.finish(Success)
}

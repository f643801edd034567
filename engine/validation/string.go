package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/engine/request"
)

type stringOptions struct {
	Min  *int `param:"min"`
	Max  *int `param:"max"`
	Trim bool `param:"trim"`
}

// StringValidator checks the length of a string in characters.
type StringValidator struct {
	*Base
	opts stringOptions
}

// NewString creates a string validator with optional min and max lengths.
func NewString(b *Base) (Validator, error) {
	opts, err := core.FromMapDefault[stringOptions](map[string]any(b.params))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	b.SetDefaultError("", "Input is not a valid string")
	b.SetDefaultError("min", "Input is too short")
	b.SetDefaultError("max", "Input is too long")
	return &StringValidator{Base: b, opts: opts}, nil
}

func (s *StringValidator) Execute(ctx context.Context, rd *request.DataHolder) Severity {
	return s.Run(ctx, rd, s.check)
}

func (s *StringValidator) check(_ context.Context, rd *request.DataHolder) bool {
	raw, _ := s.Value(rd)
	str, ok := raw.(string)
	if !ok {
		s.ThrowError("")
		return false
	}
	if s.opts.Trim {
		str = strings.TrimSpace(str)
	}
	n := utf8.RuneCountInString(str)
	if s.opts.Min != nil && n < *s.opts.Min {
		s.ThrowError("min")
		return false
	}
	if s.opts.Max != nil && n > *s.opts.Max {
		s.ThrowError("max")
		return false
	}
	s.Export(rd, str)
	return true
}

type regexOptions struct {
	Pattern string `param:"pattern"`
	Match   bool   `param:"match"`
}

// RegexValidator succeeds when the input matches the pattern, or does not
// match it when match is false.
type RegexValidator struct {
	*Base
	pattern *regexp.Regexp
	match   bool
}

// NewRegex creates a regex validator. The pattern parameter is required.
func NewRegex(b *Base) (Validator, error) {
	opts, err := core.FromMapDefault[regexOptions](map[string]any(b.params))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	if opts.Pattern == "" {
		return nil, fmt.Errorf("%w: pattern is required", ErrInvalidParameter)
	}
	re, err := regexp.Compile(opts.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	b.SetDefaultError("", "Input has an invalid format")
	return &RegexValidator{Base: b, pattern: re, match: opts.Match}, nil
}

func (r *RegexValidator) Execute(ctx context.Context, rd *request.DataHolder) Severity {
	return r.Run(ctx, rd, r.check)
}

func (r *RegexValidator) check(_ context.Context, rd *request.DataHolder) bool {
	raw, _ := r.Value(rd)
	str, ok := raw.(string)
	if !ok || r.pattern.MatchString(str) != r.match {
		r.ThrowError("")
		return false
	}
	r.Export(rd, str)
	return true
}

package validation

import (
	"context"
	"slices"

	"github.com/compozy/relay/engine/request"
)

// Operator is a validator combining the results of its children.
type Operator struct {
	*Base
	children  []Validator
	collected []*Incident
}

func newOperator(b *Base) *Operator {
	return &Operator{Base: b}
}

// AddIncident collects a child incident. It reaches the parent only if the
// operator itself fails.
func (o *Operator) AddIncident(inc *Incident) {
	o.collected = append(o.collected, inc)
}

func (o *Operator) addChild(v Validator) {
	o.children = append(o.children, v)
}

func (o *Operator) removeChild(v Validator) {
	o.children = slices.DeleteFunc(o.children, func(c Validator) bool { return c == v })
}

// Children returns the child validators in evaluation order.
func (o *Operator) Children() []Validator {
	return slices.Clone(o.children)
}

// RegisterValidators moves validators under the operator, detaching them
// from their previous container.
func (o *Operator) RegisterValidators(vs ...Validator) {
	for _, v := range vs {
		reparent(v, o)
	}
}

// Clear resets the operator and its children.
func (o *Operator) Clear() {
	o.Base.Clear()
	o.collected = nil
	for _, c := range o.children {
		c.Clear()
	}
}

func (o *Operator) start() bool {
	o.collected = nil
	return o.begin()
}

// conclude forwards the collected child incidents on failure and records
// the operator result. The operator adds an incident of its own only when
// no child explains the failure or an error message is configured for it.
func (o *Operator) conclude(result Severity) Severity {
	collected := o.collected
	o.collected = nil
	if result > Success {
		if o.parent != nil {
			for _, inc := range collected {
				o.parent.AddIncident(inc)
			}
		}
		if o.incident == nil && len(collected) > 0 && !o.hasError("") {
			return o.record(result)
		}
	}
	return o.finish(result)
}

func passed(s Severity) bool {
	return s <= Success
}

// AndValidator succeeds only if every executed child succeeds. With break
// set (the default) it stops at the first failing child.
type AndValidator struct {
	*Operator
}

// NewAnd creates an AND operator.
func NewAnd(b *Base) (Validator, error) {
	return &AndValidator{Operator: newOperator(b)}, nil
}

func (a *AndValidator) Execute(ctx context.Context, rd *request.DataHolder) Severity {
	if !a.start() {
		return NotProcessed
	}
	brk := a.params.GetBool("break", true)
	result := Success
	for _, child := range a.children {
		r := child.Execute(ctx, rd)
		if passed(r) {
			continue
		}
		result = max(result, r)
		if r >= Critical || brk {
			break
		}
	}
	return a.conclude(result)
}

// OrValidator succeeds as soon as one child succeeds. A critical child
// fails the operator immediately regardless of break.
type OrValidator struct {
	*Operator
}

// NewOr creates an OR operator.
func NewOr(b *Base) (Validator, error) {
	return &OrValidator{Operator: newOperator(b)}, nil
}

func (o *OrValidator) Execute(ctx context.Context, rd *request.DataHolder) Severity {
	if !o.start() {
		return NotProcessed
	}
	brk := o.params.GetBool("break", false)
	succeeded := false
	worst := Success
	for _, child := range o.children {
		r := child.Execute(ctx, rd)
		if r >= Critical {
			return o.conclude(r)
		}
		if passed(r) {
			succeeded = true
			if brk {
				break
			}
			continue
		}
		worst = max(worst, r)
	}
	if succeeded || len(o.children) == 0 {
		return o.conclude(Success)
	}
	return o.conclude(worst)
}

// XorValidator succeeds iff exactly one child succeeds. Children that did
// not apply count neither way. With no successful child it reports the
// worst child severity, otherwise its own severity.
type XorValidator struct {
	*Operator
}

// NewXor creates an XOR operator.
func NewXor(b *Base) (Validator, error) {
	b.SetDefaultError("", "Exactly one alternative must be valid.")
	return &XorValidator{Operator: newOperator(b)}, nil
}

func (x *XorValidator) Execute(ctx context.Context, rd *request.DataHolder) Severity {
	if !x.start() {
		return NotProcessed
	}
	successes := 0
	worst := Success
	for _, child := range x.children {
		r := child.Execute(ctx, rd)
		switch {
		case r >= Critical:
			return x.conclude(r)
		case r == Success:
			successes++
		case r > Success:
			worst = max(worst, r)
		}
	}
	switch {
	case successes == 1:
		x.collected = nil
		return x.conclude(Success)
	case successes == 0 && worst > Success:
		return x.conclude(worst)
	default:
		x.ThrowError("")
		return x.conclude(x.severity)
	}
}

// NotValidator inverts the success of its single child. On failure it
// reports its own severity. Trees are checked to give it exactly one child.
type NotValidator struct {
	*Operator
}

// NewNot creates a NOT operator.
func NewNot(b *Base) (Validator, error) {
	b.SetDefaultError("", "Input must not be valid.")
	return &NotValidator{Operator: newOperator(b)}, nil
}

func (n *NotValidator) Execute(ctx context.Context, rd *request.DataHolder) Severity {
	if !n.start() {
		return NotProcessed
	}
	if len(n.children) == 0 {
		return n.conclude(NotProcessed)
	}
	r := n.children[0].Execute(ctx, rd)
	if r >= Critical {
		return n.conclude(r)
	}
	if r > Success {
		// the child failure is the expected outcome
		n.collected = nil
		return n.conclude(Success)
	}
	n.ThrowError("")
	return n.conclude(n.severity)
}

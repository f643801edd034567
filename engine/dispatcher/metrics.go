package dispatcher

import (
	"context"
	"time"

	"github.com/compozy/relay/engine/validation"
)

// Metrics receives the execution events of a dispatcher.
type Metrics interface {
	RecordExecution(ctx context.Context, module, controller string, duration time.Duration, err error)
	RecordForward(ctx context.Context, kind string)
	RecordValidation(ctx context.Context, module, controller string, result validation.Severity)
}

type nopMetrics struct{}

func (nopMetrics) RecordExecution(context.Context, string, string, time.Duration, error) {}
func (nopMetrics) RecordForward(context.Context, string) {}
func (nopMetrics) RecordValidation(context.Context, string, string, validation.Severity) {}

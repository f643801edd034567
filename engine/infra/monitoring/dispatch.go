package monitoring

import (
	"context"
	"strconv"
	"time"

	"github.com/compozy/relay/engine/dispatcher"
	"github.com/compozy/relay/engine/infra/monitoring/metrics"
	"github.com/compozy/relay/engine/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DispatchMetrics records controller executions, system forwards and
// validation outcomes.
type DispatchMetrics struct {
	executions metric.Int64Counter
	duration   metric.Float64Histogram
	forwards   metric.Int64Counter
	validation metric.Int64Counter
}

var _ dispatcher.Metrics = (*DispatchMetrics)(nil)

// NewDispatchMetrics creates the dispatcher instruments on meter.
func NewDispatchMetrics(meter metric.Meter) (*DispatchMetrics, error) {
	var (
		m   DispatchMetrics
		err error
	)
	m.executions, err = meter.Int64Counter(
		"relay_controller_executions_total",
		metric.WithDescription("Controller executions by outcome"),
	)
	if err != nil {
		return nil, err
	}
	m.duration, err = meter.Float64Histogram(
		"relay_controller_execution_duration_seconds",
		metric.WithDescription("Controller execution latency including filters and view"),
		metric.WithExplicitBucketBoundaries(metrics.ExecutionDurationBuckets...),
	)
	if err != nil {
		return nil, err
	}
	m.forwards, err = meter.Int64Counter(
		"relay_system_forwards_total",
		metric.WithDescription("System forwards by kind"),
	)
	if err != nil {
		return nil, err
	}
	m.validation, err = meter.Int64Counter(
		"relay_validation_runs_total",
		metric.WithDescription("Validation runs by resulting severity"),
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *DispatchMetrics) RecordExecution(
	ctx context.Context,
	module, controller string,
	duration time.Duration,
	err error,
) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("module", module),
		attribute.String("controller", controller),
		attribute.String("outcome", outcome),
	)
	m.executions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
}

func (m *DispatchMetrics) RecordForward(ctx context.Context, kind string) {
	m.forwards.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *DispatchMetrics) RecordValidation(
	ctx context.Context,
	module, controller string,
	result validation.Severity,
) {
	m.validation.Add(ctx, 1, metric.WithAttributes(
		attribute.String("module", module),
		attribute.String("controller", controller),
		attribute.String("severity", result.String()),
		attribute.String("passed", strconv.FormatBool(result.Passed())),
	))
}

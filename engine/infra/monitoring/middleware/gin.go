package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/compozy/relay/engine/infra/monitoring/metrics"
	"github.com/compozy/relay/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type httpInstruments struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	requests, errRequests := meter.Int64Counter(
		"relay_http_requests_total",
		metric.WithDescription("HTTP requests served by the front controller"),
	)
	duration, errDuration := meter.Float64Histogram(
		"relay_http_request_duration_seconds",
		metric.WithDescription("Time spent serving one HTTP request"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.HTTPDurationBuckets...),
	)
	inFlight, errInFlight := meter.Int64UpDownCounter(
		"relay_http_requests_in_flight",
		metric.WithDescription("HTTP requests currently being dispatched"),
	)
	if err := errors.Join(errRequests, errDuration, errInFlight); err != nil {
		return nil, err
	}
	return &httpInstruments{requests: requests, duration: duration, inFlight: inFlight}, nil
}

// HTTPMetrics returns a middleware recording request counts, latency and
// concurrency by route template and status class. A nil meter records
// nothing.
func HTTPMetrics(meter metric.Meter) gin.HandlerFunc {
	if meter == nil {
		return passThrough
	}
	inst, err := newHTTPInstruments(meter)
	if err != nil {
		logger.Error("HTTP metrics disabled", "error", err)
		return passThrough
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		inst.inFlight.Add(ctx, 1)
		defer inst.inFlight.Add(ctx, -1)
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.String("status_class", strconv.Itoa(status/100)+"xx"),
		)
		inst.requests.Add(ctx, 1, attrs)
		inst.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

func passThrough(c *gin.Context) {
	c.Next()
}

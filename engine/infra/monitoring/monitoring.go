package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/compozy/relay/engine/infra/monitoring/middleware"
	"github.com/compozy/relay/pkg/logger"
	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "relay"

// Service owns the meter provider every relay instrument is created on and
// the Prometheus registry the metrics endpoint serves. A disabled service
// hands out no-op instruments so callers never check for nil.
type Service struct {
	config   *Config
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *prom.Registry
	system   metric.Registration
	dispatch *DispatchMetrics
	initErr  error
}

func newDisabledService(cfg *Config, initErr error) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	meter := noop.NewMeterProvider().Meter(meterName)
	// instruments of the no-op meter never fail
	dispatch, _ := NewDispatchMetrics(meter)
	return &Service{config: cfg, meter: meter, dispatch: dispatch, initErr: initErr}
}

// NewMonitoringService creates the service for cfg. Disabled monitoring is
// not an error.
func NewMonitoringService(ctx context.Context, cfg *Config) (*Service, error) {
	log := logger.FromContext(ctx)
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		log.Debug("Monitoring disabled, using no-op meter")
		return newDisabledService(cfg, nil), nil
	}
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(meterName)
	dispatch, err := NewDispatchMetrics(meter)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create dispatch metrics: %w", err), provider.Shutdown(ctx))
	}
	system, err := RegisterSystemMetrics(meter, time.Now())
	if err != nil {
		return nil, errors.Join(err, provider.Shutdown(ctx))
	}
	ver, commit, goVersion := BuildInfo()
	log.Info("Monitoring initialized", "path", cfg.Path, "version", ver, "commit", commit, "go_version", goVersion)
	return &Service{
		config:   cfg,
		meter:    meter,
		provider: provider,
		registry: registry,
		system:   system,
		dispatch: dispatch,
	}, nil
}

// NewMonitoringServiceWithFallback logs a failed initialization and returns
// a disabled service instead.
func NewMonitoringServiceWithFallback(ctx context.Context, cfg *Config) *Service {
	service, err := NewMonitoringService(ctx, cfg)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to initialize monitoring, using no-op implementation", "error", err)
		return newDisabledService(cfg, err)
	}
	return service
}

// IsInitialized reports whether metrics are exported.
func (s *Service) IsInitialized() bool {
	return s.provider != nil
}

// InitializationError returns why the fallback service is disabled.
func (s *Service) InitializationError() error {
	return s.initErr
}

func (s *Service) Meter() metric.Meter {
	return s.meter
}

// Dispatch returns the dispatcher instrumentation.
func (s *Service) Dispatch() *DispatchMetrics {
	return s.dispatch
}

// Path returns the path the exporter is served on.
func (s *Service) Path() string {
	return s.config.Path
}

// SetAsGlobal installs the provider as the global OpenTelemetry meter
// provider.
func (s *Service) SetAsGlobal() {
	if s.provider != nil {
		otel.SetMeterProvider(s.provider)
	}
}

// GinMiddleware records HTTP metrics on the service meter.
func (s *Service) GinMiddleware() gin.HandlerFunc {
	if !s.IsInitialized() {
		return middleware.HTTPMetrics(nil)
	}
	return middleware.HTTPMetrics(s.meter)
}

// ExporterHandler serves the Prometheus registry, 503 while disabled.
func (s *Service) ExporterHandler() http.Handler {
	if !s.IsInitialized() {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Monitoring service not initialized", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Shutdown stops observing system metrics and flushes the provider.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}
	var errs []error
	if s.system != nil {
		errs = append(errs, s.system.Unregister())
	}
	errs = append(errs, s.provider.Shutdown(ctx))
	return errors.Join(errs...)
}

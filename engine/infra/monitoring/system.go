package monitoring

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/compozy/relay/pkg/version"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BuildInfo returns the version, commit and Go version of the binary. The
// module information embedded by the Go toolchain fills in what ldflags
// left at its placeholder.
func BuildInfo() (ver, commit, goVersion string) {
	info := version.Get()
	ver, commit = info.Version, info.CommitHash
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ver, commit, runtime.Version()
	}
	if ver == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		ver = bi.Main.Version
	}
	if commit == "unknown" {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				commit = s.Value
			}
		}
	}
	return ver, commit, runtime.Version()
}

// RegisterSystemMetrics observes build information, uptime since started
// and the goroutine count on meter. Unregister the returned registration to
// stop observing.
func RegisterSystemMetrics(meter metric.Meter, started time.Time) (metric.Registration, error) {
	build, errBuild := meter.Int64ObservableGauge(
		"relay_build_info",
		metric.WithDescription("Build information of the running binary (value=1)"),
	)
	uptime, errUptime := meter.Float64ObservableGauge(
		"relay_uptime_seconds",
		metric.WithDescription("Seconds since the server started"),
		metric.WithUnit("s"),
	)
	goroutines, errGoroutines := meter.Int64ObservableGauge(
		"relay_goroutines",
		metric.WithDescription("Goroutines currently alive"),
	)
	if err := errors.Join(errBuild, errUptime, errGoroutines); err != nil {
		return nil, fmt.Errorf("failed to create system instruments: %w", err)
	}
	ver, commit, goVersion := BuildInfo()
	buildAttrs := metric.WithAttributes(
		attribute.String("version", ver),
		attribute.String("commit_hash", commit),
		attribute.String("go_version", goVersion),
	)
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(build, 1, buildAttrs)
		o.ObserveFloat64(uptime, time.Since(started).Seconds())
		o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))
		return nil
	}, build, uptime, goroutines)
}

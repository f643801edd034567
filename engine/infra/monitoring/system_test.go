package monitoring

import (
	"runtime"
	"testing"
	"time"

	"github.com/compozy/relay/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setBuild(t *testing.T, ver, commit string) {
	t.Helper()
	origVersion, origCommit := version.Version, version.CommitHash
	t.Cleanup(func() {
		version.Version = origVersion
		version.CommitHash = origCommit
	})
	version.Version = ver
	version.CommitHash = commit
}

func TestRegisterSystemMetrics(t *testing.T) {
	t.Run("Should observe build info, uptime and goroutines", func(t *testing.T) {
		setBuild(t, "v1.2.3-beta+build.456", "abc123")
		reader := sdkmetric.NewManualReader()
		meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
		reg, err := RegisterSystemMetrics(meter, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		t.Cleanup(func() { _ = reg.Unregister() })

		got := collect(t, reader)
		build, ok := got["relay_build_info"].Data.(metricdata.Gauge[int64])
		require.True(t, ok)
		require.Len(t, build.DataPoints, 1)
		assert.Equal(t, int64(1), build.DataPoints[0].Value)
		assert.Equal(t, "v1.2.3-beta+build.456", attrString(t, build.DataPoints[0].Attributes, "version"))
		assert.Equal(t, "abc123", attrString(t, build.DataPoints[0].Attributes, "commit_hash"))
		assert.Equal(t, runtime.Version(), attrString(t, build.DataPoints[0].Attributes, "go_version"))

		uptime, ok := got["relay_uptime_seconds"].Data.(metricdata.Gauge[float64])
		require.True(t, ok)
		assert.GreaterOrEqual(t, uptime.DataPoints[0].Value, 60.0)

		goroutines, ok := got["relay_goroutines"].Data.(metricdata.Gauge[int64])
		require.True(t, ok)
		assert.Positive(t, goroutines.DataPoints[0].Value)
	})

	t.Run("Should stop observing once unregistered", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
		reg, err := RegisterSystemMetrics(meter, time.Now())
		require.NoError(t, err)
		require.NoError(t, reg.Unregister())
		assert.NotContains(t, collect(t, reader), "relay_build_info")
	})
}

func TestBuildInfo(t *testing.T) {
	t.Run("Should use ldflags values when set", func(t *testing.T) {
		setBuild(t, "v1.2.3", "abc123")
		ver, commit, goVersion := BuildInfo()
		assert.Equal(t, "v1.2.3", ver)
		assert.Equal(t, "abc123", commit)
		assert.Equal(t, runtime.Version(), goVersion)
	})

	t.Run("Should fall back to module information", func(t *testing.T) {
		setBuild(t, "dev", "unknown")
		ver, commit, _ := BuildInfo()
		assert.NotEmpty(t, ver)
		assert.NotEmpty(t, commit)
	})
}

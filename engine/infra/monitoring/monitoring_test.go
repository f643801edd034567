package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/compozy/relay/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitForTests()
}

func TestNewMonitoringService(t *testing.T) {
	t.Run("Should create a disabled service with default config when nil provided", func(t *testing.T) {
		service, err := NewMonitoringService(t.Context(), nil)
		require.NoError(t, err)
		assert.False(t, service.IsInitialized())
		assert.Equal(t, "/metrics", service.Path())
		assert.NotNil(t, service.Meter())
		assert.NotNil(t, service.Dispatch())
	})

	t.Run("Should fail with invalid config", func(t *testing.T) {
		service, err := NewMonitoringService(t.Context(), &Config{Enabled: true})
		assert.Nil(t, service)
		assert.ErrorContains(t, err, "monitoring path cannot be empty")
	})

	t.Run("Should initialize with Prometheus exporter when enabled", func(t *testing.T) {
		service, err := NewMonitoringService(t.Context(), &Config{Enabled: true, Path: "/metrics"})
		require.NoError(t, err)
		assert.True(t, service.IsInitialized())
		assert.NotNil(t, service.registry)
		assert.NotNil(t, service.provider)
		assert.NoError(t, service.InitializationError())
		assert.NoError(t, service.Shutdown(t.Context()))
	})
}

func TestNewMonitoringServiceWithFallback(t *testing.T) {
	t.Run("Should degrade to no-op instruments on invalid config", func(t *testing.T) {
		service := NewMonitoringServiceWithFallback(t.Context(), &Config{Enabled: true, Path: "invalid"})
		assert.False(t, service.IsInitialized())
		assert.Error(t, service.InitializationError())
		service.Dispatch().RecordForward(t.Context(), "login")
		assert.NoError(t, service.Shutdown(t.Context()))
	})
}

func TestService_ExporterHandler(t *testing.T) {
	t.Run("Should return 503 when not initialized", func(t *testing.T) {
		service, err := NewMonitoringService(t.Context(), &Config{Path: "/metrics"})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		service.ExporterHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "Monitoring service not initialized")
	})

	t.Run("Should expose recorded dispatch metrics", func(t *testing.T) {
		service, err := NewMonitoringService(t.Context(), &Config{Enabled: true, Path: "/metrics"})
		require.NoError(t, err)
		service.Dispatch().RecordForward(t.Context(), "error_404")

		w := httptest.NewRecorder()
		service.ExporterHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
		assert.Contains(t, w.Body.String(), "relay_system_forwards")
		assert.Contains(t, w.Body.String(), `kind="error_404"`)
		assert.Contains(t, w.Body.String(), "relay_build_info")
		require.NoError(t, service.Shutdown(t.Context()))
	})
}

func TestService_GinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, enabled := range []bool{true, false} {
		service, err := NewMonitoringService(t.Context(), &Config{Enabled: enabled, Path: "/metrics"})
		require.NoError(t, err)
		router := gin.New()
		router.Use(service.GinMiddleware())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

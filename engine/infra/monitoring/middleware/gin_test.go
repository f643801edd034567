package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func serve(t *testing.T, router *gin.Engine, target string) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, http.NoBody))
}

func requestCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "relay_http_requests_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				route, _ := dp.Attributes.Value(attribute.Key("route"))
				class, _ := dp.Attributes.Value(attribute.Key("status_class"))
				out[route.AsString()+" "+class.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestHTTPMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Should count requests by route template and status class", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		router := gin.New()
		router.Use(HTTPMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")))
		router.GET("/:module/*controller", func(c *gin.Context) {
			if c.Param("module") == "Missing" {
				c.Status(http.StatusNotFound)
				return
			}
			c.String(http.StatusOK, c.Param("module"))
		})
		serve(t, router, "/Shop/Products/Add")
		serve(t, router, "/Default/Index")
		serve(t, router, "/Missing/Index")
		serve(t, router, "/")

		assert.Equal(t, map[string]int64{
			"/:module/*controller 2xx": 2,
			"/:module/*controller 4xx": 1,
			"unmatched 4xx":            1,
		}, requestCounts(t, reader))
	})

	t.Run("Should give each meter its own instruments", func(t *testing.T) {
		first := sdkmetric.NewManualReader()
		second := sdkmetric.NewManualReader()
		for _, reader := range []*sdkmetric.ManualReader{first, second} {
			router := gin.New()
			router.Use(HTTPMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")))
			router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })
			serve(t, router, "/ok")
		}
		assert.Equal(t, map[string]int64{"/ok 2xx": 1}, requestCounts(t, first))
		assert.Equal(t, map[string]int64{"/ok 2xx": 1}, requestCounts(t, second))
	})

	t.Run("Should pass through without a meter", func(t *testing.T) {
		router := gin.New()
		router.Use(HTTPMetrics(nil))
		router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", http.NoBody))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

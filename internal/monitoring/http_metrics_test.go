package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func newMetricsRouter(metrics *HTTPMetrics) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.GET("/api/v1/orders/:hash", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"order_hash": c.Param("hash")})
	})
	router.POST("/api/v1/orders", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
	})
	return router
}

func TestHTTPMetricsMiddleware_RecordsRouteTemplate(t *testing.T) {
	// Arrange
	metrics := NewHTTPMetrics()
	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)
	router := newMetricsRouter(metrics)

	// Act
	for _, hash := range []string{"0xaa", "0xbb"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+hash, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// Assert
	assert.Equal(t, float64(2), counterValue(t, registry, "fusion_bridge_http_requests_total", map[string]string{
		"method": "GET",
		"path":   "/api/v1/orders/:hash",
		"status": "200",
	}))
}

func TestHTTPMetricsMiddleware_ErrorStatusAndUnmatched(t *testing.T) {
	// Arrange
	metrics := NewHTTPMetrics()
	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)
	router := newMetricsRouter(metrics)

	// Act
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Assert
	assert.Equal(t, float64(1), counterValue(t, registry, "fusion_bridge_http_requests_total", map[string]string{
		"method": "POST",
		"path":   "/api/v1/orders",
		"status": "400",
	}))
	assert.Equal(t, float64(1), counterValue(t, registry, "fusion_bridge_http_requests_total", map[string]string{
		"path":   "unmatched",
		"status": "404",
	}))
}

func TestHTTPMetricsMiddleware_InFlightReturnsToZero(t *testing.T) {
	metrics := NewHTTPMetrics()
	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)
	router := newMetricsRouter(metrics)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/orders/0xaa", nil))

	assert.Equal(t, float64(0), gaugeValue(t, registry, "fusion_bridge_http_requests_in_flight"))
}

func TestHTTPMetrics_RecordIdempotency(t *testing.T) {
	metrics := NewHTTPMetrics()
	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)

	metrics.RecordIdempotency(IdempotencyReplay)
	metrics.RecordIdempotency(IdempotencyReplay)
	metrics.RecordIdempotency(IdempotencyMiss)

	assert.Equal(t, float64(2), counterValue(t, registry, "fusion_bridge_idempotency_lookups_total",
		map[string]string{"outcome": "replay"}))
	assert.Equal(t, float64(1), counterValue(t, registry, "fusion_bridge_idempotency_lookups_total",
		map[string]string{"outcome": "miss"}))

	var nilMetrics *HTTPMetrics
	assert.NotPanics(t, func() { nilMetrics.RecordIdempotency(IdempotencyError) })
}

func TestNewMetrics_RegistersEverySet(t *testing.T) {
	m := NewMetrics()
	m.HTTP.RecordIdempotency(IdempotencyConflict)
	m.Engine.ObserveOperation("create_order", nil, time.Millisecond)

	families, err := m.Registry.Gather()
	assert.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["fusion_bridge_idempotency_lookups_total"])
	assert.True(t, names["fusion_bridge_engine_operations_total"])
	assert.True(t, names["go_goroutines"])
}

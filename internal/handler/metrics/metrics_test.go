package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/monitoring"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

func scrape(registry *prometheus.Registry) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/metrics", NewMetricsHandler(registry, logger.NewNop()).Handler())

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMetricsHandler_EngineMetrics(t *testing.T) {
	// Arrange
	registry := prometheus.NewRegistry()
	engine := monitoring.NewEngineMetrics()
	engine.MustRegister(registry)

	engine.ObserveOperation("complete_order", nil, 20*time.Millisecond)
	engine.ObserveOperation("complete_order", model.ErrHashlockMismatch, time.Millisecond)
	engine.RecordTransition(model.OrderStatusMatched, model.OrderStatusCompleted)
	engine.SetOrderCounts(map[model.OrderStatus]int64{model.OrderStatusOpen: 4})

	// Act
	w := scrape(registry)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `fusion_bridge_engine_operations_total{kind="success",operation="complete_order",reason="none"} 1`)
	assert.Contains(t, body, `fusion_bridge_engine_operations_total{kind="state",operation="complete_order",reason="hashlock_mismatch"} 1`)
	assert.Contains(t, body, `fusion_bridge_order_transitions_total{from="matched",to="completed"} 1`)
	assert.Contains(t, body, `fusion_bridge_orders{status="open"} 4`)
	assert.Contains(t, body, `fusion_bridge_orders{status="refunded"} 0`)
	assert.Contains(t, body, "fusion_bridge_engine_operation_duration_seconds_count")

	contentType := w.Header().Get("Content-Type")
	assert.True(t, strings.Contains(contentType, "text/plain") || strings.Contains(contentType, "application/openmetrics-text"),
		"Expected Prometheus metrics content type, got: %s", contentType)
}

func TestMetricsHandler_EmptyRegistry(t *testing.T) {
	w := scrape(prometheus.NewRegistry())
	assert.Equal(t, http.StatusOK, w.Code)
}

type failingCollector struct {
	desc *prometheus.Desc
}

func (c failingCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c failingCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.NewInvalidMetric(c.desc, errors.New("collector broke"))
}

func TestMetricsHandler_ContinuesOnCollectorError(t *testing.T) {
	// Arrange
	registry := prometheus.NewRegistry()
	registry.MustRegister(failingCollector{desc: prometheus.NewDesc("fusion_bridge_broken", "always fails", nil, nil)})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "fusion_bridge_healthy_gauge", Help: "still served"})
	gauge.Set(7)
	registry.MustRegister(gauge)

	// Act
	w := scrape(registry)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fusion_bridge_healthy_gauge 7")
}

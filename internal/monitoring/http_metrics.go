package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// IdempotencyOutcome is the result of looking up an Idempotency-Key.
type IdempotencyOutcome string

const (
	IdempotencyMiss     IdempotencyOutcome = "miss"
	IdempotencyReplay   IdempotencyOutcome = "replay"
	IdempotencyConflict IdempotencyOutcome = "conflict"
	IdempotencyError    IdempotencyOutcome = "error"
)

// unmatchedRoute labels requests gin could not route, so raw paths never
// become label values.
const unmatchedRoute = "unmatched"

// HTTPMetrics covers the REST surface. Paths are gin route templates.
type HTTPMetrics struct {
	latency      *prometheus.HistogramVec
	requests     *prometheus.CounterVec
	responseSize *prometheus.HistogramVec
	inFlight     prometheus.Gauge
	idempotency  *prometheus.CounterVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_bridge_http_request_duration_seconds",
				Help:    "Latency of API requests",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "path"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_bridge_http_requests_total",
				Help: "API requests by route and status code",
			},
			[]string{"method", "path", "status"},
		),
		responseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_bridge_http_response_size_bytes",
				Help:    "Size of API response bodies",
				Buckets: prometheus.ExponentialBuckets(64, 4, 6),
			},
			[]string{"path"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fusion_bridge_http_requests_in_flight",
			Help: "API requests currently being served",
		}),
		idempotency: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_bridge_idempotency_lookups_total",
				Help: "Idempotency-Key lookups by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *HTTPMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.latency, m.requests, m.responseSize, m.inFlight, m.idempotency)
}

func (m *HTTPMetrics) RecordIdempotency(outcome IdempotencyOutcome) {
	if m == nil {
		return
	}
	m.idempotency.WithLabelValues(string(outcome)).Inc()
}

// HTTPMetricsMiddleware observes every request routed through the engine.
func HTTPMetricsMiddleware(metrics *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.inFlight.Inc()
		defer metrics.inFlight.Dec()
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		method := c.Request.Method
		metrics.latency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		metrics.requests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		if size := c.Writer.Size(); size > 0 {
			metrics.responseSize.WithLabelValues(path).Observe(float64(size))
		}
	}
}

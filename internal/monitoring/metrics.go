package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sony/gobreaker"
)

// Metrics is every collector the service exports, registered on one
// registry served at /metrics.
type Metrics struct {
	Registry *prometheus.Registry
	External *ExternalAPIMetrics
	HTTP     *HTTPMetrics
	Engine   *EngineMetrics
	Jobs     *BackgroundJobMetrics
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		External: NewExternalAPIMetrics(),
		HTTP:     NewHTTPMetrics(),
		Engine:   NewEngineMetrics(),
		Jobs:     NewBackgroundJobMetrics(),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.External.MustRegister(m.Registry)
	m.HTTP.MustRegister(m.Registry)
	m.Engine.MustRegister(m.Registry)
	m.Jobs.MustRegister(m.Registry)
	return m
}

// ExternalAPIMetrics covers calls to redis and the event webhook. The
// operation label is the one passed to Breaker.Execute.
type ExternalAPIMetrics struct {
	callDuration *prometheus.HistogramVec
	calls        *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	timeouts     *prometheus.CounterVec
}

func NewExternalAPIMetrics() *ExternalAPIMetrics {
	return &ExternalAPIMetrics{
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_bridge_external_api_duration_seconds",
				Help:    "Duration of calls to redis and the event webhook",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"api_name", "operation", "status"},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_bridge_external_api_calls_total",
				Help: "Calls to redis and the event webhook by outcome",
			},
			[]string{"api_name", "status"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fusion_bridge_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"api_name"},
		),
		timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_bridge_external_api_timeouts_total",
				Help: "Calls abandoned at their timeout",
			},
			[]string{"api_name", "operation"},
		),
	}
}

func (m *ExternalAPIMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.callDuration, m.calls, m.breakerState, m.timeouts)
}

// RecordAPICall records one call. A nil receiver records nothing.
func (m *ExternalAPIMetrics) RecordAPICall(apiName, operation, status string, duration float64) {
	if m == nil {
		return
	}
	m.callDuration.WithLabelValues(apiName, operation, status).Observe(duration)
	m.calls.WithLabelValues(apiName, status).Inc()
}

func (m *ExternalAPIMetrics) UpdateCircuitBreakerState(apiName string, state gobreaker.State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(apiName).Set(float64(state))
}

func (m *ExternalAPIMetrics) RecordTimeout(apiName, operation string) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(apiName, operation).Inc()
}

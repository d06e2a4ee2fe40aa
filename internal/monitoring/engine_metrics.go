package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

// EngineMetrics covers the order lifecycle. A nil *EngineMetrics records
// nothing, so tests and tools can run the engine without a registry.
type EngineMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	transitions       *prometheus.CounterVec
	settled           *prometheus.CounterVec
	ordersByStatus    *prometheus.GaugeVec
	custodyMoves      *prometheus.CounterVec
}

func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_bridge_engine_operations_total",
				Help: "Engine operations by outcome; failures are labelled with their reason",
			},
			[]string{"operation", "kind", "reason"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_bridge_engine_operation_duration_seconds",
				Help:    "Duration of engine operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"operation"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_bridge_order_transitions_total",
				Help: "Order state transitions",
			},
			[]string{"from", "to"},
		),
		settled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_bridge_orders_settled_total",
				Help: "Orders that reached a final status",
			},
			[]string{"status"},
		),
		ordersByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fusion_bridge_orders",
				Help: "Orders per status at the last refresh",
			},
			[]string{"status"},
		),
		custodyMoves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_bridge_custody_releases_total",
				Help: "Escrow sides released, by side and path",
			},
			[]string{"side", "path"},
		),
	}
}

func (m *EngineMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.operations,
		m.operationDuration,
		m.transitions,
		m.settled,
		m.ordersByStatus,
		m.custodyMoves,
	)
}

// ObserveOperation records one engine call and its outcome.
func (m *EngineMetrics) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	kind, reason := "success", "none"
	if err != nil {
		kind, reason = string(model.KindOf(err)), model.ReasonOf(err)
	}
	m.operations.WithLabelValues(operation, kind, reason).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *EngineMetrics) RecordTransition(from, to model.OrderStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
	if to.IsFinal() {
		m.settled.WithLabelValues(string(to)).Inc()
	}
}

func (m *EngineMetrics) RecordRelease(side model.EscrowSide, claimed bool) {
	if m == nil {
		return
	}
	path := "refund"
	if claimed {
		path = "claim"
	}
	m.custodyMoves.WithLabelValues(string(side), path).Inc()
}

// SetOrderCounts replaces the per-status gauges. Statuses missing from
// counts are reset to zero.
func (m *EngineMetrics) SetOrderCounts(counts map[model.OrderStatus]int64) {
	if m == nil {
		return
	}
	for _, s := range []model.OrderStatus{
		model.OrderStatusOpen,
		model.OrderStatusMatched,
		model.OrderStatusCompleted,
		model.OrderStatusExpired,
		model.OrderStatusRefunded,
	} {
		m.ordersByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

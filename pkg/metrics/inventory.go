package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// InventoryMetrics counts reservation outcomes and consistency guard behaviour.
type InventoryMetrics struct {
	operations     *prometheus.CounterVec
	guardConflicts *prometheus.CounterVec
	guardExhausted *prometheus.CounterVec
	expired        prometheus.Counter
	lowStockAlerts prometheus.Counter
}

// NewInventoryMetrics registers the inventory metrics on the provided registerer.
// A nil registerer yields a no-op collector.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_operations_total",
		Help: "Stock operations by name and outcome.",
	}, []string{"operation", "outcome"})
	guardConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_guard_conflicts_total",
		Help: "Version conflicts observed by the consistency guard.",
	}, []string{"operation"})
	guardExhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_guard_exhausted_total",
		Help: "Operations that gave up after exhausting guard retries.",
	}, []string{"operation"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservations_expired_total",
		Help: "Reservations released by the expiry sweeper.",
	})
	lowStockAlerts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_low_stock_alerts_total",
		Help: "Low stock alerts handled by the event worker.",
	})
	reg.MustRegister(operations, guardConflicts, guardExhausted, expired, lowStockAlerts)
	return &InventoryMetrics{
		operations:     operations,
		guardConflicts: guardConflicts,
		guardExhausted: guardExhausted,
		expired:        expired,
		lowStockAlerts: lowStockAlerts,
	}
}

// ObserveOperation records the outcome ("ok" or an error code) of a stock operation.
func (m *InventoryMetrics) ObserveOperation(operation, outcome string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

func (m *InventoryMetrics) IncGuardConflict(operation string) {
	if m == nil || m.guardConflicts == nil {
		return
	}
	m.guardConflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *InventoryMetrics) IncGuardExhausted(operation string) {
	if m == nil || m.guardExhausted == nil {
		return
	}
	m.guardExhausted.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *InventoryMetrics) AddExpired(n int) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *InventoryMetrics) IncLowStockAlert() {
	if m == nil || m.lowStockAlerts == nil {
		return
	}
	m.lowStockAlerts.Inc()
}

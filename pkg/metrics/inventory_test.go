package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestInventoryMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInventoryMetrics(reg)

	m.ObserveOperation("reserve", "ok")
	m.ObserveOperation("reserve", "INSUFFICIENT_STOCK")
	m.IncGuardConflict("reserve")
	m.IncGuardConflict("reserve")
	m.IncGuardExhausted("adjust")
	m.AddExpired(3)
	m.AddExpired(0)
	m.IncLowStockAlert()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "inventory_operations_total", "outcome", "INSUFFICIENT_STOCK"); err != nil || got != 1 {
		t.Fatalf("expected one insufficient outcome, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "inventory_guard_conflicts_total", "operation", "reserve"); err != nil || got != 2 {
		t.Fatalf("expected two conflicts, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "inventory_guard_exhausted_total", "operation", "adjust"); err != nil || got != 1 {
		t.Fatalf("expected one exhaustion, got %f err=%v", got, err)
	}
	expired := findMetricFamily(mfs, "inventory_reservations_expired_total")
	if expired == nil || expired.GetMetric()[0].GetCounter().GetValue() != 3 {
		t.Fatalf("expected expired counter at 3")
	}
}

func TestNilInventoryMetricsIsSafe(t *testing.T) {
	var m *InventoryMetrics
	m.ObserveOperation("reserve", "ok")
	m.IncGuardConflict("reserve")
	m.AddExpired(1)
	m.IncLowStockAlert()

	NewInventoryMetrics(nil).IncGuardExhausted("reserve")
}

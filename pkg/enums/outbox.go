package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateStockItem OutboxAggregateType = "stock_item"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateStockItem,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the stock event vocabulary published to downstream consumers.
type OutboxEventType string

const (
	EventStockItemCreated          OutboxEventType = "stock_item_created"
	EventStockReserved             OutboxEventType = "stock_reserved"
	EventStockCommitted            OutboxEventType = "stock_committed"
	EventStockReservationCancelled OutboxEventType = "stock_reservation_cancelled"
	EventStockExpired              OutboxEventType = "stock_expired"
	EventStockAdjusted             OutboxEventType = "stock_adjusted"
	EventLowStockDetected          OutboxEventType = "low_stock_detected"
	EventStockItemDeactivated      OutboxEventType = "stock_item_deactivated"
)

var validOutboxEventTypes = []OutboxEventType{
	EventStockItemCreated,
	EventStockReserved,
	EventStockCommitted,
	EventStockReservationCancelled,
	EventStockExpired,
	EventStockAdjusted,
	EventLowStockDetected,
	EventStockItemDeactivated,
}

// OutboxEventTypes lists every stock event type.
func OutboxEventTypes() []OutboxEventType {
	return append([]OutboxEventType(nil), validOutboxEventTypes...)
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

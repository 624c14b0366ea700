package payloads

import (
	"time"

	"github.com/google/uuid"
)

// StockLevels is the counter snapshot attached to every stock event.
type StockLevels struct {
	CurrentStock  int `json:"current_stock"`
	ReservedStock int `json:"reserved_stock"`
	Available     int `json:"available"`
	Version       int `json:"version"`
}

// StockItemCreatedEvent announces a lazily created stock record.
type StockItemCreatedEvent struct {
	StockItemID       uuid.UUID `json:"stock_item_id"`
	ProductID         uuid.UUID `json:"product_id"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	TrackInventory    bool      `json:"track_inventory"`
}

// ReservationEvent is shared by the reserve, commit, cancel and expire transitions.
type ReservationEvent struct {
	ReservationID uuid.UUID   `json:"reservation_id"`
	StockItemID   uuid.UUID   `json:"stock_item_id"`
	ProductID     uuid.UUID   `json:"product_id"`
	OrderID       uuid.UUID   `json:"order_id"`
	Quantity      int         `json:"quantity"`
	Status        string      `json:"status"`
	ExpiresAt     time.Time   `json:"expires_at"`
	Levels        StockLevels `json:"levels"`
}

// StockReservedEvent is emitted when units are held for an order.
type StockReservedEvent struct {
	ReservationEvent
}

// StockCommittedEvent is emitted when a hold turns into a sale.
type StockCommittedEvent struct {
	ReservationEvent
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// StockReservationCancelledEvent is emitted when a hold is released on request.
type StockReservationCancelledEvent struct {
	ReservationEvent
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// StockExpiredEvent is emitted when the sweeper releases a lapsed hold.
type StockExpiredEvent struct {
	ReservationEvent
	ExpiredAt time.Time `json:"expired_at"`
}

// StockAdjustedEvent mirrors a stock_adjustments audit row.
type StockAdjustedEvent struct {
	AdjustmentID uuid.UUID   `json:"adjustment_id"`
	StockItemID  uuid.UUID   `json:"stock_item_id"`
	ProductID    uuid.UUID   `json:"product_id"`
	OldStock     int         `json:"old_stock"`
	NewStock     int         `json:"new_stock"`
	Delta        int         `json:"delta"`
	Reason       string      `json:"reason"`
	AdjustedBy   string      `json:"adjusted_by"`
	Levels       StockLevels `json:"levels"`
}

// LowStockDetectedEvent fires when availability drops to or below the threshold.
type LowStockDetectedEvent struct {
	StockItemID       uuid.UUID   `json:"stock_item_id"`
	ProductID         uuid.UUID   `json:"product_id"`
	LowStockThreshold int         `json:"low_stock_threshold"`
	OutOfStock        bool        `json:"out_of_stock"`
	Trigger           string      `json:"trigger"`
	Levels            StockLevels `json:"levels"`
}

// StockItemDeactivatedEvent fires when the owning product is removed.
type StockItemDeactivatedEvent struct {
	StockItemID           uuid.UUID   `json:"stock_item_id"`
	ProductID             uuid.UUID   `json:"product_id"`
	DeactivatedBy         string      `json:"deactivated_by"`
	DeactivatedAt         time.Time   `json:"deactivated_at"`
	CancelledReservations int         `json:"cancelled_reservations"`
	ReleasedReservedStock int         `json:"released_reserved_stock"`
	Levels                StockLevels `json:"levels"`
}

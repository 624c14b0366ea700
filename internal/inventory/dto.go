package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox/payloads"
)

// ReserveInput asks for Quantity units of a product to be held for an order.
type ReserveInput struct {
	ProductID uuid.UUID
	OrderID   uuid.UUID
	Quantity  int
}

// ReserveLine is one line of a multi-product order reservation.
type ReserveLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// AdjustInput describes a manual stock correction.
type AdjustInput struct {
	ProductID  uuid.UUID
	Delta      int
	Reason     string
	AdjustedBy string
}

// EnsureInput registers a product's stock record ahead of first use.
// Settings apply only when the record is created by this call.
type EnsureInput struct {
	ProductID         uuid.UUID
	TrackInventory    *bool
	LowStockThreshold *int
}

// StockSnapshot is the read-side view of a stock item with its derived flags.
type StockSnapshot struct {
	StockItemID       uuid.UUID  `json:"stock_item_id"`
	ProductID         uuid.UUID  `json:"product_id"`
	CurrentStock      int        `json:"current_stock"`
	ReservedStock     int        `json:"reserved_stock"`
	Available         int        `json:"available"`
	LowStockThreshold int        `json:"low_stock_threshold"`
	TrackInventory    bool       `json:"track_inventory"`
	IsActive          bool       `json:"is_active"`
	IsLowStock        bool       `json:"is_low_stock"`
	IsOutOfStock      bool       `json:"is_out_of_stock"`
	Version           int        `json:"version"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeactivatedAt     *time.Time `json:"deactivated_at,omitempty"`
}

// NewStockSnapshot projects a stock item into its read model.
func NewStockSnapshot(item models.StockItem) StockSnapshot {
	return StockSnapshot{
		StockItemID:       item.ID,
		ProductID:         item.ProductID,
		CurrentStock:      item.CurrentStock,
		ReservedStock:     item.ReservedStock,
		Available:         item.Available(),
		LowStockThreshold: item.LowStockThreshold,
		TrackInventory:    item.TrackInventory,
		IsActive:          item.IsActive,
		IsLowStock:        item.IsLowStock(),
		IsOutOfStock:      item.IsOutOfStock(),
		Version:           item.Version,
		UpdatedAt:         item.UpdatedAt,
		DeactivatedAt:     item.DeactivatedAt,
	}
}

// ReservationSummary is the list view of a reservation.
type ReservationSummary struct {
	ID          uuid.UUID               `json:"id"`
	ProductID   uuid.UUID               `json:"product_id"`
	OrderID     uuid.UUID               `json:"order_id"`
	Quantity    int                     `json:"quantity"`
	Status      enums.ReservationStatus `json:"status"`
	ExpiresAt   time.Time               `json:"expires_at"`
	ConfirmedAt *time.Time              `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time              `json:"cancelled_at,omitempty"`
	ExpiredAt   *time.Time              `json:"expired_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

// NewReservationSummary maps a reservation row to its list view.
func NewReservationSummary(res models.StockReservation) ReservationSummary {
	return ReservationSummary{
		ID:          res.ID,
		ProductID:   res.ProductID,
		OrderID:     res.OrderID,
		Quantity:    res.Quantity,
		Status:      res.Status,
		ExpiresAt:   res.ExpiresAt,
		ConfirmedAt: res.ConfirmedAt,
		CancelledAt: res.CancelledAt,
		ExpiredAt:   res.ExpiredAt,
		CreatedAt:   res.CreatedAt,
	}
}

// ReservationList is a cursor paginated page of reservations, newest first.
type ReservationList struct {
	Reservations []ReservationSummary `json:"reservations"`
	NextCursor   string               `json:"next_cursor,omitempty"`
}

func levelsOf(item models.StockItem) payloads.StockLevels {
	return payloads.StockLevels{
		CurrentStock:  item.CurrentStock,
		ReservedStock: item.ReservedStock,
		Available:     item.Available(),
		Version:       item.Version,
	}
}

func reservationEvent(res models.StockReservation, item models.StockItem) payloads.ReservationEvent {
	return payloads.ReservationEvent{
		ReservationID: res.ID,
		StockItemID:   res.StockItemID,
		ProductID:     res.ProductID,
		OrderID:       res.OrderID,
		Quantity:      res.Quantity,
		Status:        res.Status.String(),
		ExpiresAt:     res.ExpiresAt,
		Levels:        levelsOf(item),
	}
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
)

// StockReservation holds a quantity of a stock item for one order.
type StockReservation struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	StockItemID uuid.UUID               `gorm:"column:stock_item_id;type:uuid;not null;index"`
	ProductID   uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	OrderID     uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Quantity    int                     `gorm:"column:quantity;not null"`
	Status      enums.ReservationStatus `gorm:"column:status;type:text;not null;index"`
	ExpiresAt   time.Time               `gorm:"column:expires_at;not null;index"`
	ConfirmedAt *time.Time              `gorm:"column:confirmed_at"`
	CancelledAt *time.Time              `gorm:"column:cancelled_at"`
	ExpiredAt   *time.Time              `gorm:"column:expired_at"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (StockReservation) TableName() string { return "stock_reservations" }

// IsExpiredAt reports whether an active reservation's hold has lapsed at now.
func (r StockReservation) IsExpiredAt(now time.Time) bool {
	return r.Status == enums.ReservationStatusReserved && !now.Before(r.ExpiresAt)
}

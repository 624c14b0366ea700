package models

import (
	"time"

	"github.com/google/uuid"
)

// StockItem is the per-product stock record. Version guards every counter write.
type StockItem struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         uuid.UUID  `gorm:"column:product_id;type:uuid;not null;uniqueIndex:uq_stock_items_product"`
	CurrentStock      int        `gorm:"column:current_stock;not null;default:0"`
	ReservedStock     int        `gorm:"column:reserved_stock;not null;default:0"`
	LowStockThreshold int        `gorm:"column:low_stock_threshold;not null;default:0"`
	TrackInventory    bool       `gorm:"column:track_inventory;not null"`
	IsActive          bool       `gorm:"column:is_active;not null"`
	Version           int        `gorm:"column:version;not null"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	DeactivatedAt     *time.Time `gorm:"column:deactivated_at"`
}

func (StockItem) TableName() string { return "stock_items" }

// Available is the quantity that can still be reserved.
func (s StockItem) Available() int {
	return s.CurrentStock - s.ReservedStock
}

// IsLowStock reports whether available stock sits at or under the threshold.
func (s StockItem) IsLowStock() bool {
	return s.TrackInventory && s.Available() <= s.LowStockThreshold
}

// IsOutOfStock reports whether nothing is left to reserve.
func (s StockItem) IsOutOfStock() bool {
	return s.TrackInventory && s.Available() <= 0
}

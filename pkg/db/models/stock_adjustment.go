package models

import (
	"time"

	"github.com/google/uuid"
)

// StockAdjustment is the append-only audit row for a manual stock correction.
type StockAdjustment struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StockItemID uuid.UUID `gorm:"column:stock_item_id;type:uuid;not null;index"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	OldStock    int       `gorm:"column:old_stock;not null"`
	NewStock    int       `gorm:"column:new_stock;not null"`
	Delta       int       `gorm:"column:delta;not null"`
	Reason      string    `gorm:"column:reason;not null"`
	AdjustedBy  string    `gorm:"column:adjusted_by;not null"`
	AdjustedAt  time.Time `gorm:"column:adjusted_at;not null"`
}

func (StockAdjustment) TableName() string { return "stock_adjustments" }

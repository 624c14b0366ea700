package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
	"github.com/angelmondragon/inventory-backoffice/pkg/pagination"
)

// SQL spellings of StockItem.IsLowStock and StockItem.IsOutOfStock.
// Listings also skip inactive items.
const (
	lowStockPredicate   = "is_active AND track_inventory AND (current_stock - reserved_stock) <= low_stock_threshold"
	outOfStockPredicate = "is_active AND track_inventory AND (current_stock - reserved_stock) <= 0"
)

// Repository defines persistence operations for stock items, reservations and adjustments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindItemByID(ctx context.Context, id uuid.UUID) (*models.StockItem, error)
	FindItemByProduct(ctx context.Context, productID uuid.UUID) (*models.StockItem, error)
	CreateItemIfAbsent(ctx context.Context, item *models.StockItem) (bool, error)
	UpdateItemIfVersion(ctx context.Context, next models.StockItem, expectedVersion int) (bool, error)
	CreateReservation(ctx context.Context, res *models.StockReservation) error
	FindReservation(ctx context.Context, id uuid.UUID) (*models.StockReservation, error)
	TransitionReservation(ctx context.Context, id uuid.UUID, to enums.ReservationStatus, at time.Time) (bool, error)
	ListActiveReservations(ctx context.Context, stockItemID uuid.UUID) ([]models.StockReservation, error)
	ListDueReservations(ctx context.Context, now time.Time, limit int) ([]models.StockReservation, error)
	ListReservations(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.StockReservation, string, error)
	CreateAdjustment(ctx context.Context, adj *models.StockAdjustment) error
	ListAdjustments(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockAdjustment, error)
	ListLowStock(ctx context.Context, limit int) ([]models.StockItem, error)
	ListOutOfStock(ctx context.Context, limit int) ([]models.StockItem, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindItemByID(ctx context.Context, id uuid.UUID) (*models.StockItem, error) {
	var item models.StockItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindItemByProduct(ctx context.Context, productID uuid.UUID) (*models.StockItem, error) {
	var item models.StockItem
	if err := r.db.WithContext(ctx).First(&item, "product_id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateItemIfAbsent inserts the item unless the product already has one.
// It reports whether this call created the row.
func (r *repository) CreateItemIfAbsent(ctx context.Context, item *models.StockItem) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoNothing: true,
		}).
		Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateItemIfVersion writes the counters and flags of next only when the stored
// version still equals expectedVersion, bumping the version by one.
func (r *repository) UpdateItemIfVersion(ctx context.Context, next models.StockItem, expectedVersion int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StockItem{}).
		Where("id = ? AND version = ?", next.ID, expectedVersion).
		Updates(map[string]any{
			"current_stock":       next.CurrentStock,
			"reserved_stock":      next.ReservedStock,
			"low_stock_threshold": next.LowStockThreshold,
			"is_active":           next.IsActive,
			"deactivated_at":      next.DeactivatedAt,
			"updated_at":          next.UpdatedAt,
			"version":             gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateReservation(ctx context.Context, res *models.StockReservation) error {
	return r.db.WithContext(ctx).Create(res).Error
}

func (r *repository) FindReservation(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
	var res models.StockReservation
	if err := r.db.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

// TransitionReservation moves a reserved hold to a terminal status. It reports
// false when the hold was no longer reserved.
func (r *repository) TransitionReservation(ctx context.Context, id uuid.UUID, to enums.ReservationStatus, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case enums.ReservationStatusConfirmed:
		updates["confirmed_at"] = at
	case enums.ReservationStatusCancelled:
		updates["cancelled_at"] = at
	case enums.ReservationStatusExpired:
		updates["expired_at"] = at
	default:
		return false, errors.New("reservations can only move to a terminal status")
	}
	res := r.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusReserved).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListActiveReservations(ctx context.Context, stockItemID uuid.UUID) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("stock_item_id = ? AND status = ?", stockItemID, enums.ReservationStatusReserved).
		Order("created_at ASC, id ASC").
		Find(&rows).
		Error
	return rows, err
}

// ListDueReservations returns reserved holds whose expiry has passed, oldest first.
func (r *repository) ListDueReservations(ctx context.Context, now time.Time, limit int) ([]models.StockReservation, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	var rows []models.StockReservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusReserved, now.UTC()).
		Order("expires_at ASC, id ASC").
		Limit(limit).
		Find(&rows).
		Error
	return rows, err
}

func (r *repository) ListReservations(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.StockReservation, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	query := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.StockReservation
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}
	page, next := pagination.Trim(rows, params.Limit, func(row models.StockReservation) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}

func (r *repository) CreateAdjustment(ctx context.Context, adj *models.StockAdjustment) error {
	return r.db.WithContext(ctx).Create(adj).Error
}

func (r *repository) ListAdjustments(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockAdjustment, error) {
	var rows []models.StockAdjustment
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("adjusted_at DESC, id DESC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).
		Error
	return rows, err
}

func (r *repository) ListLowStock(ctx context.Context, limit int) ([]models.StockItem, error) {
	return r.listByPredicate(ctx, lowStockPredicate, limit)
}

func (r *repository) ListOutOfStock(ctx context.Context, limit int) ([]models.StockItem, error) {
	return r.listByPredicate(ctx, outOfStockPredicate, limit)
}

func (r *repository) listByPredicate(ctx context.Context, predicate string, limit int) ([]models.StockItem, error) {
	var rows []models.StockItem
	err := r.db.WithContext(ctx).
		Where(predicate).
		Order("(current_stock - reserved_stock) ASC, product_id ASC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).
		Error
	return rows, err
}

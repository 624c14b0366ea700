package inventory

import (
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
	pkgerrors "github.com/angelmondragon/inventory-backoffice/pkg/errors"
)

// errVersionConflict marks a conditional write that matched no rows.
var errVersionConflict = errors.New("stock item version conflict")

func insufficientStock(item models.StockItem, requested int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock to reserve").
		WithDetails(map[string]any{
			"product_id": item.ProductID.String(),
			"requested":  requested,
			"available":  item.Available(),
		})
}

func insufficientForAdjustment(item models.StockItem, delta int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "adjustment would leave less stock than is reserved").
		WithDetails(map[string]any{
			"product_id":     item.ProductID.String(),
			"delta":          delta,
			"current_stock":  item.CurrentStock,
			"reserved_stock": item.ReservedStock,
			"would_remain":   item.CurrentStock + delta,
		})
}

func stockItemNotFound(productID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeStockItemNotFound, "stock item not found").
		WithDetails(map[string]any{"product_id": productID.String()})
}

func stockItemMissing(stockItemID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeStockItemNotFound, "stock item not found").
		WithDetails(map[string]any{"stock_item_id": stockItemID.String()})
}

func reservationNotFound(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found").
		WithDetails(map[string]any{"reservation_id": id.String()})
}

func invalidReservationState(res models.StockReservation, target enums.ReservationStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidReservationState, "reservation is not active").
		WithDetails(map[string]any{
			"reservation_id": res.ID.String(),
			"status":         res.Status.String(),
			"target":         target.String(),
		})
}

func reservationExpired(res models.StockReservation) error {
	return pkgerrors.New(pkgerrors.CodeReservationExpired, "reservation hold has lapsed").
		WithDetails(map[string]any{
			"reservation_id": res.ID.String(),
			"expires_at":     res.ExpiresAt,
		})
}

func concurrentModification(op string, stockItemID uuid.UUID, attempts int) error {
	return pkgerrors.Wrap(pkgerrors.CodeConcurrentModification, errVersionConflict, "stock item kept changing during "+op).
		WithDetails(map[string]any{
			"stock_item_id": stockItemID.String(),
			"attempts":      attempts,
		})
}

func validationError(message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message)
}

func dependencyError(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

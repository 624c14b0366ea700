package stockevents

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/inventory-backoffice/internal/inventory"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
	"github.com/angelmondragon/inventory-backoffice/pkg/metrics"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox/payloads"
)

type cacheInvalidationHandler struct {
	cache inventory.StockCache
	logg  *logger.Logger
}

func newCacheInvalidationHandler(cache inventory.StockCache, logg *logger.Logger) Handler {
	return &cacheInvalidationHandler{cache: cache, logg: logg}
}

func (h *cacheInvalidationHandler) Handle(ctx context.Context, event Event) error {
	productID, err := productOf(event.Payload)
	if err != nil {
		return err
	}
	h.cache.Invalidate(ctx, productID)
	h.logg.Debug(h.logg.WithProductID(ctx, productID.String()), "stock cache invalidated")
	return nil
}

type lowStockAlertHandler struct {
	metrics *metrics.InventoryMetrics
	logg    *logger.Logger
}

func newLowStockAlertHandler(m *metrics.InventoryMetrics, logg *logger.Logger) Handler {
	return &lowStockAlertHandler{metrics: m, logg: logg}
}

func (h *lowStockAlertHandler) Handle(ctx context.Context, event Event) error {
	payload, ok := event.Payload.(*payloads.LowStockDetectedEvent)
	if !ok {
		return fmt.Errorf("low stock alert: unexpected payload %T", event.Payload)
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"product_id":          payload.ProductID.String(),
		"stock_item_id":       payload.StockItemID.String(),
		"available":           payload.Levels.Available,
		"low_stock_threshold": payload.LowStockThreshold,
		"out_of_stock":        payload.OutOfStock,
		"trigger":             payload.Trigger,
	})
	if payload.OutOfStock {
		h.logg.Warn(logCtx, "product out of stock")
	} else {
		h.logg.Warn(logCtx, "product stock low")
	}
	h.metrics.IncLowStockAlert()
	return nil
}

func newDeactivationHandler(logg *logger.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, event Event) error {
		payload, ok := event.Payload.(*payloads.StockItemDeactivatedEvent)
		if !ok {
			return fmt.Errorf("deactivation: unexpected payload %T", event.Payload)
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"product_id":              payload.ProductID.String(),
			"deactivated_by":          payload.DeactivatedBy,
			"cancelled_reservations":  payload.CancelledReservations,
			"released_reserved_stock": payload.ReleasedReservedStock,
		}), "stock item deactivated")
		return nil
	})
}

func productOf(payload any) (uuid.UUID, error) {
	var id uuid.UUID
	switch p := payload.(type) {
	case *payloads.StockItemCreatedEvent:
		id = p.ProductID
	case *payloads.StockReservedEvent:
		id = p.ProductID
	case *payloads.StockCommittedEvent:
		id = p.ProductID
	case *payloads.StockReservationCancelledEvent:
		id = p.ProductID
	case *payloads.StockExpiredEvent:
		id = p.ProductID
	case *payloads.StockAdjustedEvent:
		id = p.ProductID
	case *payloads.LowStockDetectedEvent:
		id = p.ProductID
	case *payloads.StockItemDeactivatedEvent:
		id = p.ProductID
	default:
		return uuid.Nil, fmt.Errorf("no product id in payload %T", payload)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("payload %T has empty product id", payload)
	}
	return id, nil
}

package stock

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/inventory-backoffice/api/responses"
	"github.com/angelmondragon/inventory-backoffice/api/validators"
	"github.com/angelmondragon/inventory-backoffice/internal/inventory"
	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
	"github.com/angelmondragon/inventory-backoffice/pkg/pagination"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxReasonLength  = 500
)

type ensureRequest struct {
	TrackInventory    *bool `json:"track_inventory,omitempty"`
	LowStockThreshold *int  `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0,lte=1000000000"`
}

type adjustRequest struct {
	Delta  int    `json:"delta" validate:"ne=0,gte=-1000000000,lte=1000000000"`
	Reason string `json:"reason" validate:"notblank,max=500"`
}

type thresholdRequest struct {
	LowStockThreshold *int `json:"low_stock_threshold" validate:"required,gte=0,lte=1000000000"`
}

type adjustmentResponse struct {
	ID         uuid.UUID `json:"id"`
	ProductID  uuid.UUID `json:"product_id"`
	OldStock   int       `json:"old_stock"`
	NewStock   int       `json:"new_stock"`
	Delta      int       `json:"delta"`
	Reason     string    `json:"reason"`
	AdjustedBy string    `json:"adjusted_by"`
	AdjustedAt time.Time `json:"adjusted_at"`
}

func newAdjustmentResponse(adj models.StockAdjustment) adjustmentResponse {
	return adjustmentResponse{
		ID:         adj.ID,
		ProductID:  adj.ProductID,
		OldStock:   adj.OldStock,
		NewStock:   adj.NewStock,
		Delta:      adj.Delta,
		Reason:     adj.Reason,
		AdjustedBy: adj.AdjustedBy,
		AdjustedAt: adj.AdjustedAt,
	}
}

// Get returns the stock levels of a product.
func Get(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snap, err := svc.GetStock(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

// Ensure registers a product's stock record. Settings only apply on creation.
func Ensure(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req ensureRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snap, err := svc.EnsureStockItem(r.Context(), inventory.EnsureInput{
			ProductID:         productID,
			TrackInventory:    req.TrackInventory,
			LowStockThreshold: req.LowStockThreshold,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

// Adjust applies a manual correction to the on-hand count.
func Adjust(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req adjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, productID.String())
		}
		adj, err := svc.Adjust(ctx, inventory.AdjustInput{
			ProductID: productID,
			Delta:     req.Delta,
			Reason:    validators.SanitizeString(req.Reason, maxReasonLength),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newAdjustmentResponse(*adj))
	}
}

// Deactivate retires a product's stock record and releases its active holds.
func Deactivate(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, productID.String())
		}
		snap, err := svc.Deactivate(ctx, productID, "")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

// SetThreshold changes the low stock alert threshold.
func SetThreshold(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req thresholdRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snap, err := svc.SetLowStockThreshold(r.Context(), productID, *req.LowStockThreshold)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

// ListAdjustments returns the newest corrections for a product.
func ListAdjustments(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListAdjustments(r.Context(), productID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]adjustmentResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, newAdjustmentResponse(row))
		}
		responses.WriteSuccess(w, map[string]any{"adjustments": out})
	}
}

// ListReservations pages through a product's reservation history.
func ListReservations(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListReservations(r.Context(), productID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// ListLowStock returns active tracked items at or below their threshold.
func ListLowStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return listSnapshots(logg, svc.ListLowStock)
}

// ListOutOfStock returns active tracked items with nothing available.
func ListOutOfStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return listSnapshots(logg, svc.ListOutOfStock)
}

func listSnapshots(logg *logger.Logger, list func(ctx context.Context, limit int) ([]inventory.StockSnapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := list(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

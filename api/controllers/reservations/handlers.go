package reservations

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/inventory-backoffice/api/responses"
	"github.com/angelmondragon/inventory-backoffice/api/validators"
	"github.com/angelmondragon/inventory-backoffice/internal/inventory"
	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	pkgerrors "github.com/angelmondragon/inventory-backoffice/pkg/errors"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
)

type reserveRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	OrderID   uuid.UUID `json:"order_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0,lte=1000000000"`
}

type orderLine struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0,lte=1000000000"`
}

type reserveOrderRequest struct {
	Lines []orderLine `json:"lines" validate:"required,min=1,max=100,dive"`
}

type orderReservationsResponse struct {
	OrderID      uuid.UUID                      `json:"order_id"`
	Reservations []inventory.ReservationSummary `json:"reservations"`
}

// Reserve holds stock for a single order line.
func Reserve(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		var req reserveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, req.ProductID.String())
			ctx = logg.WithField(ctx, "order_id", req.OrderID.String())
		}
		res, err := svc.Reserve(ctx, inventory.ReserveInput{
			ProductID: req.ProductID,
			OrderID:   req.OrderID,
			Quantity:  req.Quantity,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, inventory.NewReservationSummary(*res))
	}
}

// ReserveOrder holds stock for every line of an order. Lines reserved before a
// failing line are released again.
func ReserveOrder(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req reserveOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := make([]inventory.ReserveLine, 0, len(req.Lines))
		for _, line := range req.Lines {
			lines = append(lines, inventory.ReserveLine{ProductID: line.ProductID, Quantity: line.Quantity})
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "order_id", orderID.String())
		}
		created, err := svc.ReserveOrder(ctx, orderID, lines)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, orderReservationsResponse{
			OrderID:      orderID,
			Reservations: summaries(created),
		})
	}
}

// Get returns one reservation.
func Get(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reservationID, err := validators.ParseUUIDParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.GetReservation(r.Context(), reservationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// Confirm turns an active reservation into a permanent stock deduction.
func Confirm(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, "confirm", func(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
		return svc.Confirm(ctx, id)
	})
}

// Cancel releases an active reservation back to available stock.
func Cancel(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(logg, "cancel", func(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
		return svc.Cancel(ctx, id)
	})
}

func transition(logg *logger.Logger, action string, apply func(context.Context, uuid.UUID) (*models.StockReservation, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reservationID, err := validators.ParseUUIDParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"reservation_id": reservationID.String(),
				"action":         action,
			})
		}
		res, err := apply(ctx, reservationID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, inventory.NewReservationSummary(*res))
	}
}

func summaries(rows []models.StockReservation) []inventory.ReservationSummary {
	out := make([]inventory.ReservationSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, inventory.NewReservationSummary(row))
	}
	return out
}

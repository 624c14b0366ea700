package reservations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/inventory-backoffice/internal/inventory"
	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
	pkgerrors "github.com/angelmondragon/inventory-backoffice/pkg/errors"
)

type stubService struct {
	inventory.Service
	reserve      func(ctx context.Context, input inventory.ReserveInput) (*models.StockReservation, error)
	reserveOrder func(ctx context.Context, orderID uuid.UUID, lines []inventory.ReserveLine) ([]models.StockReservation, error)
	confirm      func(ctx context.Context, id uuid.UUID) (*models.StockReservation, error)
	cancel       func(ctx context.Context, id uuid.UUID) (*models.StockReservation, error)
}

func (s *stubService) Reserve(ctx context.Context, input inventory.ReserveInput) (*models.StockReservation, error) {
	return s.reserve(ctx, input)
}

func (s *stubService) ReserveOrder(ctx context.Context, orderID uuid.UUID, lines []inventory.ReserveLine) ([]models.StockReservation, error) {
	return s.reserveOrder(ctx, orderID, lines)
}

func (s *stubService) Confirm(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
	return s.confirm(ctx, id)
}

func (s *stubService) Cancel(ctx context.Context, id uuid.UUID) (*models.StockReservation, error) {
	return s.cancel(ctx, id)
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestReserveCreatesReservation(t *testing.T) {
	productID, orderID := uuid.New(), uuid.New()
	var got inventory.ReserveInput
	svc := &stubService{reserve: func(_ context.Context, input inventory.ReserveInput) (*models.StockReservation, error) {
		got = input
		return &models.StockReservation{
			ID:        uuid.New(),
			ProductID: input.ProductID,
			OrderID:   input.OrderID,
			Quantity:  input.Quantity,
			Status:    enums.ReservationStatusReserved,
			ExpiresAt: time.Now().Add(30 * time.Minute),
		}, nil
	}}

	body := `{"product_id":"` + productID.String() + `","order_id":"` + orderID.String() + `","quantity":3}`
	rec := httptest.NewRecorder()
	Reserve(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if got.ProductID != productID || got.OrderID != orderID || got.Quantity != 3 {
		t.Fatalf("unexpected service input %+v", got)
	}
	var resp struct {
		Data inventory.ReservationSummary `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Data.Status != enums.ReservationStatusReserved || resp.Data.Quantity != 3 {
		t.Fatalf("unexpected payload %+v", resp.Data)
	}
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	svc := &stubService{reserve: func(context.Context, inventory.ReserveInput) (*models.StockReservation, error) {
		t.Fatalf("service should not be called")
		return nil, nil
	}}

	body := `{"product_id":"` + uuid.NewString() + `","order_id":"` + uuid.NewString() + `","quantity":0}`
	rec := httptest.NewRecorder()
	Reserve(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if decodeError(t, rec).Error.Details["quantity"] == nil {
		t.Fatalf("expected quantity field error, got %s", rec.Body.String())
	}
}

func TestReserveRejectsQuantityBeyondColumnRange(t *testing.T) {
	svc := &stubService{reserve: func(context.Context, inventory.ReserveInput) (*models.StockReservation, error) {
		t.Fatalf("service should not be called")
		return nil, nil
	}}

	body := `{"product_id":"` + uuid.NewString() + `","order_id":"` + uuid.NewString() + `","quantity":2147483648}`
	rec := httptest.NewRecorder()
	Reserve(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if decodeError(t, rec).Error.Details["quantity"] == nil {
		t.Fatalf("expected quantity field error, got %s", rec.Body.String())
	}
}

func TestReserveMapsInsufficientStock(t *testing.T) {
	svc := &stubService{reserve: func(context.Context, inventory.ReserveInput) (*models.StockReservation, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock to reserve").
			WithDetails(map[string]any{"available": 1, "requested": 4})
	}}

	body := `{"product_id":"` + uuid.NewString() + `","order_id":"` + uuid.NewString() + `","quantity":4}`
	rec := httptest.NewRecorder()
	Reserve(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body)))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	body2 := decodeError(t, rec)
	if body2.Error.Code != string(pkgerrors.CodeInsufficientStock) {
		t.Fatalf("unexpected code %s", body2.Error.Code)
	}
	if body2.Error.Details["available"] != float64(1) {
		t.Fatalf("expected available in details, got %v", body2.Error.Details)
	}
}

func TestReserveOrderPassesAllLines(t *testing.T) {
	orderID := uuid.New()
	first, second := uuid.New(), uuid.New()
	var gotLines []inventory.ReserveLine
	svc := &stubService{reserveOrder: func(_ context.Context, id uuid.UUID, lines []inventory.ReserveLine) ([]models.StockReservation, error) {
		if id != orderID {
			t.Fatalf("unexpected order id %s", id)
		}
		gotLines = lines
		out := make([]models.StockReservation, 0, len(lines))
		for _, line := range lines {
			out = append(out, models.StockReservation{ID: uuid.New(), OrderID: id, ProductID: line.ProductID, Quantity: line.Quantity, Status: enums.ReservationStatusReserved})
		}
		return out, nil
	}}

	body := `{"lines":[{"product_id":"` + first.String() + `","quantity":1},{"product_id":"` + second.String() + `","quantity":2}]}`
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/reservations", strings.NewReader(body)), "orderId", orderID.String())
	rec := httptest.NewRecorder()
	ReserveOrder(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(gotLines) != 2 || gotLines[1].ProductID != second || gotLines[1].Quantity != 2 {
		t.Fatalf("unexpected lines %+v", gotLines)
	}
}

func TestReserveOrderRejectsEmptyLines(t *testing.T) {
	orderID := uuid.New()
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lines":[]}`)), "orderId", orderID.String())
	rec := httptest.NewRecorder()
	ReserveOrder(&stubService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestConfirmMapsExpiredReservation(t *testing.T) {
	reservationID := uuid.New()
	svc := &stubService{confirm: func(_ context.Context, id uuid.UUID) (*models.StockReservation, error) {
		if id != reservationID {
			t.Fatalf("unexpected reservation id %s", id)
		}
		return nil, pkgerrors.New(pkgerrors.CodeReservationExpired, "reservation expired")
	}}

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "reservationId", reservationID.String())
	rec := httptest.NewRecorder()
	Confirm(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410 got %d", rec.Code)
	}
}

func TestCancelReturnsReservation(t *testing.T) {
	reservationID := uuid.New()
	now := time.Now().UTC()
	svc := &stubService{cancel: func(_ context.Context, id uuid.UUID) (*models.StockReservation, error) {
		return &models.StockReservation{ID: id, Status: enums.ReservationStatusCancelled, CancelledAt: &now}, nil
	}}

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "reservationId", reservationID.String())
	rec := httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"cancelled"`) {
		t.Fatalf("expected cancelled status, got %s", rec.Body.String())
	}
}

func TestTransitionRejectsMalformedID(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "reservationId", "not-a-uuid")
	rec := httptest.NewRecorder()
	Confirm(&stubService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

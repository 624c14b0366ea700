package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-backoffice/pkg/auth"
	"github.com/angelmondragon/inventory-backoffice/pkg/config"
	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
	pkgerrors "github.com/angelmondragon/inventory-backoffice/pkg/errors"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
	"github.com/angelmondragon/inventory-backoffice/pkg/metrics"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox/payloads"
	"github.com/angelmondragon/inventory-backoffice/pkg/pagination"
)

const (
	defaultReservationTTL = 30 * time.Minute

	cancelReasonRequested     = "requested"
	cancelReasonDeactivated   = "stock_item_deactivated"
	cancelReasonOrderRollback = "order_reservation_failed"
)

// ProductCatalog lets the service refuse to create stock records for unknown products.
type ProductCatalog interface {
	ProductExists(ctx context.Context, productID uuid.UUID) (bool, error)
}

// Service exposes the reservation lifecycle, stock corrections and read models.
type Service interface {
	Reserve(ctx context.Context, input ReserveInput) (*models.StockReservation, error)
	ReserveOrder(ctx context.Context, orderID uuid.UUID, lines []ReserveLine) ([]models.StockReservation, error)
	Confirm(ctx context.Context, reservationID uuid.UUID) (*models.StockReservation, error)
	Cancel(ctx context.Context, reservationID uuid.UUID) (*models.StockReservation, error)
	Expire(ctx context.Context, reservationID uuid.UUID) (bool, error)
	Adjust(ctx context.Context, input AdjustInput) (*models.StockAdjustment, error)
	Deactivate(ctx context.Context, productID uuid.UUID, actor string) (*StockSnapshot, error)
	SetLowStockThreshold(ctx context.Context, productID uuid.UUID, threshold int) (*StockSnapshot, error)
	EnsureStockItem(ctx context.Context, input EnsureInput) (*StockSnapshot, error)
	GetStock(ctx context.Context, productID uuid.UUID) (*StockSnapshot, error)
	GetReservation(ctx context.Context, reservationID uuid.UUID) (*ReservationSummary, error)
	ListLowStock(ctx context.Context, limit int) ([]StockSnapshot, error)
	ListOutOfStock(ctx context.Context, limit int) ([]StockSnapshot, error)
	ListReservations(ctx context.Context, productID uuid.UUID, params pagination.Params) (*ReservationList, error)
	ListAdjustments(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockAdjustment, error)
	ListDueReservations(ctx context.Context, limit int) ([]models.StockReservation, error)
}

// MaxQuantity bounds quantities, deltas, thresholds and resulting stock so
// every stored counter fits the integer stock columns.
const MaxQuantity = 1_000_000_000

// Policy carries the reservation and retry knobs.
type Policy struct {
	ReservationTTL           time.Duration
	DefaultLowStockThreshold int
	MaxAttempts              int
	RetryBaseDelay           time.Duration
	RetryMaxDelay            time.Duration
}

// PolicyFromConfig maps the inventory config section onto a Policy.
func PolicyFromConfig(cfg config.InventoryConfig) Policy {
	return Policy{
		ReservationTTL:           cfg.ReservationTTL,
		DefaultLowStockThreshold: cfg.DefaultLowStockThreshold,
		MaxAttempts:              cfg.MaxAttempts,
		RetryBaseDelay:           cfg.RetryBaseDelay,
		RetryMaxDelay:            cfg.RetryMaxDelay,
	}
}

// ServiceParams wires the inventory service. Cache, Catalog, Metrics, Logger and
// Clock are optional.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Cache   StockCache
	Catalog ProductCatalog
	Metrics *metrics.InventoryMetrics
	Logger  *logger.Logger
	Policy  Policy
	Clock   func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	cache   StockCache
	catalog ProductCatalog
	metrics *metrics.InventoryMetrics
	logg    *logger.Logger
	policy  Policy
	clock   func() time.Time
	guard   *guard
}

// NewService builds the inventory service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	policy := params.Policy
	if policy.ReservationTTL <= 0 {
		policy.ReservationTTL = defaultReservationTTL
	}
	if policy.DefaultLowStockThreshold < 0 {
		policy.DefaultLowStockThreshold = 0
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultMaxAttempts
	}
	if policy.RetryBaseDelay <= 0 {
		policy.RetryBaseDelay = defaultBaseDelay
	}
	if policy.RetryMaxDelay < policy.RetryBaseDelay {
		policy.RetryMaxDelay = defaultMaxDelay
		if policy.RetryMaxDelay < policy.RetryBaseDelay {
			policy.RetryMaxDelay = policy.RetryBaseDelay
		}
	}
	cache := params.Cache
	if cache == nil {
		cache = NoopStockCache()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		cache:   cache,
		catalog: params.Catalog,
		metrics: params.Metrics,
		logg:    params.Logger,
		policy:  policy,
		clock:   clock,
	}
	s.guard = &guard{
		tx:          params.Tx,
		repo:        params.Repo,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         s.now,
		maxAttempts: policy.MaxAttempts,
		baseDelay:   policy.RetryBaseDelay,
		maxDelay:    policy.RetryMaxDelay,
	}
	return s, nil
}

func (s *service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func (s *service) Reserve(ctx context.Context, input ReserveInput) (*models.StockReservation, error) {
	res, err := s.reserve(ctx, input)
	s.observe("reserve", err)
	return res, err
}

func (s *service) reserve(ctx context.Context, input ReserveInput) (*models.StockReservation, error) {
	if input.ProductID == uuid.Nil {
		return nil, validationError("product id required")
	}
	if input.OrderID == uuid.Nil {
		return nil, validationError("order id required")
	}
	if input.Quantity <= 0 {
		return nil, validationError("quantity must be positive")
	}
	if input.Quantity > MaxQuantity {
		return nil, validationError("quantity exceeds maximum")
	}

	item, err := s.ensureItem(ctx, EnsureInput{ProductID: input.ProductID})
	if err != nil {
		return nil, err
	}

	actor := actorRef(ctx)
	var reservation models.StockReservation
	_, err = s.guard.mutate(ctx, "reserve", item.ID, func(ctx context.Context, scope txScope, item models.StockItem) (*stockChange, error) {
		if !item.IsActive {
			return nil, stockItemNotFound(item.ProductID)
		}
		if item.TrackInventory && input.Quantity > item.Available() {
			return nil, insufficientStock(item, input.Quantity)
		}
		next := item
		if item.TrackInventory {
			next.ReservedStock += input.Quantity
		}
		return &stockChange{
			next:  next,
			actor: actor,
			after: func(ctx context.Context, scope txScope, updated models.StockItem) error {
				now := s.now()
				reservation = models.StockReservation{
					ID:          uuid.New(),
					StockItemID: updated.ID,
					ProductID:   updated.ProductID,
					OrderID:     input.OrderID,
					Quantity:    input.Quantity,
					Status:      enums.ReservationStatusReserved,
					ExpiresAt:   now.Add(s.policy.ReservationTTL),
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if err := scope.repo.CreateReservation(ctx, &reservation); err != nil {
					return dependencyError(err, "insert reservation")
				}
				return s.emit(ctx, scope, enums.EventStockReserved, updated, actor, payloads.StockReservedEvent{
					ReservationEvent: reservationEvent(reservation, updated),
				})
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, input.ProductID)
	if s.logg != nil {
		logCtx := s.logg.WithProductID(ctx, input.ProductID.String())
		logCtx = s.logg.WithOrderID(logCtx, input.OrderID.String())
		logCtx = s.logg.WithReservationID(logCtx, reservation.ID.String())
		s.logg.Debug(s.logg.WithField(logCtx, "quantity", input.Quantity), "stock reserved")
	}
	return &reservation, nil
}

// ReserveOrder reserves every line for the order. When a line fails, reservations
// already made for earlier lines are cancelled before the failure is returned.
func (s *service) ReserveOrder(ctx context.Context, orderID uuid.UUID, lines []ReserveLine) ([]models.StockReservation, error) {
	out, err := s.reserveOrder(ctx, orderID, lines)
	s.observe("reserve_order", err)
	return out, err
}

func (s *service) reserveOrder(ctx context.Context, orderID uuid.UUID, lines []ReserveLine) ([]models.StockReservation, error) {
	if orderID == uuid.Nil {
		return nil, validationError("order id required")
	}
	if len(lines) == 0 {
		return nil, validationError("at least one line required")
	}

	created := make([]models.StockReservation, 0, len(lines))
	for _, line := range lines {
		res, err := s.reserve(ctx, ReserveInput{ProductID: line.ProductID, OrderID: orderID, Quantity: line.Quantity})
		if err == nil {
			created = append(created, *res)
			continue
		}

		var rollbackErr error
		for _, done := range created {
			if _, cerr := s.cancel(ctx, done.ID, cancelReasonOrderRollback); cerr != nil {
				rollbackErr = multierr.Append(rollbackErr, cerr)
			}
		}
		if rollbackErr != nil {
			if s.logg != nil {
				logCtx := s.logg.WithOrderID(ctx, orderID.String())
				s.logg.Error(logCtx, "order reservation rollback incomplete", rollbackErr)
			}
			return nil, multierr.Append(err, rollbackErr)
		}
		return nil, err
	}
	return created, nil
}

func (s *service) Confirm(ctx context.Context, reservationID uuid.UUID) (*models.StockReservation, error) {
	res, err := s.confirm(ctx, reservationID)
	s.observe("confirm", err)
	return res, err
}

func (s *service) confirm(ctx context.Context, reservationID uuid.UUID) (*models.StockReservation, error) {
	current, err := s.loadReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	actor := actorRef(ctx)
	var out models.StockReservation
	_, err = s.guard.mutate(ctx, "confirm", current.StockItemID, func(ctx context.Context, scope txScope, item models.StockItem) (*stockChange, error) {
		res, err := s.reloadReservation(ctx, scope, reservationID)
		if err != nil {
			return nil, err
		}
		if !CanTransition(res.Status, enums.ReservationStatusConfirmed) {
			return nil, invalidReservationState(*res, enums.ReservationStatusConfirmed)
		}
		now := s.now()
		if res.IsExpiredAt(now) {
			return nil, reservationExpired(*res)
		}
		next := item
		if item.TrackInventory {
			next.CurrentStock -= res.Quantity
			next.ReservedStock -= res.Quantity
			if err := checkCounters(next); err != nil {
				return nil, err
			}
		}
		return &stockChange{
			next:  next,
			actor: actor,
			after: func(ctx context.Context, scope txScope, updated models.StockItem) error {
				if err := s.transition(ctx, scope, res, enums.ReservationStatusConfirmed, now); err != nil {
					return err
				}
				out = *res
				return s.emit(ctx, scope, enums.EventStockCommitted, updated, actor, payloads.StockCommittedEvent{
					ReservationEvent: reservationEvent(*res, updated),
					ConfirmedAt:      now,
				})
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, current.ProductID)
	return &out, nil
}

// Cancel releases an active hold. Cancelling a terminal reservation changes nothing.
func (s *service) Cancel(ctx context.Context, reservationID uuid.UUID) (*models.StockReservation, error) {
	res, err := s.cancel(ctx, reservationID, cancelReasonRequested)
	s.observe("cancel", err)
	return res, err
}

func (s *service) cancel(ctx context.Context, reservationID uuid.UUID, reason string) (*models.StockReservation, error) {
	current, err := s.loadReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return current, nil
	}

	actor := actorRef(ctx)
	var out models.StockReservation
	_, err = s.guard.mutate(ctx, "cancel", current.StockItemID, func(ctx context.Context, scope txScope, item models.StockItem) (*stockChange, error) {
		res, err := s.reloadReservation(ctx, scope, reservationID)
		if err != nil {
			return nil, err
		}
		if !CanTransition(res.Status, enums.ReservationStatusCancelled) {
			out = *res
			return nil, nil
		}
		next, err := releaseHold(item, res.Quantity)
		if err != nil {
			return nil, err
		}
		now := s.now()
		return &stockChange{
			next:  next,
			actor: actor,
			after: func(ctx context.Context, scope txScope, updated models.StockItem) error {
				if err := s.transition(ctx, scope, res, enums.ReservationStatusCancelled, now); err != nil {
					return err
				}
				out = *res
				return s.emit(ctx, scope, enums.EventStockReservationCancelled, updated, actor, payloads.StockReservationCancelledEvent{
					ReservationEvent: reservationEvent(*res, updated),
					CancelledAt:      now,
					Reason:           reason,
				})
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, current.ProductID)
	return &out, nil
}

// Expire releases a hold whose expiry has passed. It reports whether this call
// moved the reservation to expired; anything else is a no-op.
func (s *service) Expire(ctx context.Context, reservationID uuid.UUID) (bool, error) {
	expired, err := s.expire(ctx, reservationID)
	s.observe("expire", err)
	return expired, err
}

func (s *service) expire(ctx context.Context, reservationID uuid.UUID) (bool, error) {
	current, err := s.loadReservation(ctx, reservationID)
	if err != nil {
		return false, err
	}
	if !current.IsExpiredAt(s.now()) {
		return false, nil
	}

	actor := actorRef(ctx)
	expired := false
	_, err = s.guard.mutate(ctx, "expire", current.StockItemID, func(ctx context.Context, scope txScope, item models.StockItem) (*stockChange, error) {
		expired = false
		res, err := s.reloadReservation(ctx, scope, reservationID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		if !res.IsExpiredAt(now) {
			return nil, nil
		}
		next, err := releaseHold(item, res.Quantity)
		if err != nil {
			return nil, err
		}
		return &stockChange{
			next:  next,
			actor: actor,
			after: func(ctx context.Context, scope txScope, updated models.StockItem) error {
				if err := s.transition(ctx, scope, res, enums.ReservationStatusExpired, now); err != nil {
					return err
				}
				expired = true
				return s.emit(ctx, scope, enums.EventStockExpired, updated, actor, payloads.StockExpiredEvent{
					ReservationEvent: reservationEvent(*res, updated),
					ExpiredAt:        now,
				})
			},
		}, nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		s.cache.Invalidate(ctx, current.ProductID)
	}
	return expired, nil
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.StockAdjustment, error) {
	adj, err := s.adjust(ctx, input)
	s.observe("adjust", err)
	return adj, err
}

func (s *service) adjust(ctx context.Context, input AdjustInput) (*models.StockAdjustment, error) {
	if input.ProductID == uuid.Nil {
		return nil, validationError("product id required")
	}
	if input.Delta == 0 {
		return nil, validationError("delta must not be zero")
	}
	if input.Delta > MaxQuantity || input.Delta < -MaxQuantity {
		return nil, validationError("delta exceeds maximum")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, validationError("reason required")
	}
	adjustedBy := strings.TrimSpace(input.AdjustedBy)
	if adjustedBy == "" {
		if actor, ok := auth.ActorFromContext(ctx); ok {
			adjustedBy = actor.ID
		}
	}
	if adjustedBy == "" {
		return nil, validationError("adjusting actor required")
	}

	item, err := s.ensureItem(ctx, EnsureInput{ProductID: input.ProductID})
	if err != nil {
		return nil, err
	}

	actor := actorRef(ctx)
	var adjustment models.StockAdjustment
	_, err = s.guard.mutate(ctx, "adjust", item.ID, func(ctx context.Context, scope txScope, item models.StockItem) (*stockChange, error) {
		if !item.IsActive {
			return nil, stockItemNotFound(item.ProductID)
		}
		newStock := item.CurrentStock + input.Delta
		if newStock > MaxQuantity {
			return nil, validationError("resulting stock exceeds maximum")
		}
		if newStock < 0 || (item.TrackInventory && newStock < item.ReservedStock) {
			return nil, insufficientForAdjustment(item, input.Delta)
		}
		next := item
		next.CurrentStock = newStock
		return &stockChange{
			next:  next,
			actor: actor,
			after: func(ctx context.Context, scope txScope, updated models.StockItem) error {
				adjustment = models.StockAdjustment{
					ID:          uuid.New(),
					StockItemID: updated.ID,
					ProductID:   updated.ProductID,
					OldStock:    item.CurrentStock,
					NewStock:    newStock,
					Delta:       input.Delta,
					Reason:      reason,
					AdjustedBy:  adjustedBy,
					AdjustedAt:  s.now(),
				}
				if err := scope.repo.CreateAdjustment(ctx, &adjustment); err != nil {
					return dependencyError(err, "insert stock adjustment")
				}
				return s.emit(ctx, scope, enums.EventStockAdjusted, updated, actor, payloads.StockAdjustedEvent{
					AdjustmentID: adjustment.ID,
					StockItemID:  updated.ID,
					ProductID:    updated.ProductID,
					OldStock:     adjustment.OldStock,
					NewStock:     adjustment.NewStock,
					Delta:        adjustment.Delta,
					Reason:       adjustment.Reason,
					AdjustedBy:   adjustment.AdjustedBy,
					Levels:       levelsOf(updated),
				})
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, input.ProductID)
	if s.logg != nil {
		logCtx := s.logg.WithProductID(ctx, input.ProductID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"delta":       input.Delta,
			"old_stock":   adjustment.OldStock,
			"new_stock":   adjustment.NewStock,
			"adjusted_by": adjustedBy,
		})
		s.logg.Info(logCtx, "stock adjusted")
	}
	return &adjustment, nil
}

// Deactivate retires a product's stock record and releases its active holds.
// Deactivating an inactive record changes nothing. A product that never had a
// record gets an inactive one, so later reserves still fail as not found.
func (s *service) Deactivate(ctx context.Context, productID uuid.UUID, deactivatedBy string) (*StockSnapshot, error) {
	snap, err := s.deactivate(ctx, productID, deactivatedBy)
	s.observe("deactivate", err)
	return snap, err
}

func (s *service) deactivate(ctx context.Context, productID uuid.UUID, deactivatedBy string) (*StockSnapshot, error) {
	if productID == uuid.Nil {
		return nil, validationError("product id required")
	}
	item, err := s.ensureItem(ctx, EnsureInput{ProductID: productID})
	if err != nil {
		return nil, err
	}
	deactivatedBy = strings.TrimSpace(deactivatedBy)
	if deactivatedBy == "" {
		if actor, ok := auth.ActorFromContext(ctx); ok {
			deactivatedBy = actor.ID
		}
	}

	actor := actorRef(ctx)
	cancelled := 0
	updated, err := s.guard.mutate(ctx, "deactivate", item.ID, func(ctx context.Context, scope txScope, item models.StockItem) (*stockChange, error) {
		cancelled = 0
		if !item.IsActive {
			return nil, nil
		}
		active, err := scope.repo.ListActiveReservations(ctx, item.ID)
		if err != nil {
			return nil, dependencyError(err, "list active reservations")
		}
		released := 0
		if item.TrackInventory {
			for _, res := range active {
				released += res.Quantity
			}
		}
		now := s.now()
		next := item
		next.ReservedStock -= released
		next.IsActive = false
		next.DeactivatedAt = &now
		if err := checkCounters(next); err != nil {
			return nil, err
		}
		return &stockChange{
			next:  next,
			actor: actor,
			after: func(ctx context.Context, scope txScope, updated models.StockItem) error {
				for i := range active {
					res := &active[i]
					if err := s.transition(ctx, scope, res, enums.ReservationStatusCancelled, now); err != nil {
						return err
					}
					if err := s.emit(ctx, scope, enums.EventStockReservationCancelled, updated, actor, payloads.StockReservationCancelledEvent{
						ReservationEvent: reservationEvent(*res, updated),
						CancelledAt:      now,
						Reason:           cancelReasonDeactivated,
					}); err != nil {
						return err
					}
				}
				cancelled = len(active)
				return s.emit(ctx, scope, enums.EventStockItemDeactivated, updated, actor, payloads.StockItemDeactivatedEvent{
					StockItemID:           updated.ID,
					ProductID:             updated.ProductID,
					DeactivatedBy:         deactivatedBy,
					DeactivatedAt:         now,
					CancelledReservations: len(active),
					ReleasedReservedStock: released,
					Levels:                levelsOf(updated),
				})
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, productID)
	if s.logg != nil && cancelled > 0 {
		logCtx := s.logg.WithProductID(ctx, productID.String())
		logCtx = s.logg.WithField(logCtx, "cancelled_reservations", cancelled)
		s.logg.Info(logCtx, "stock item deactivated")
	}
	snap := NewStockSnapshot(*updated)
	return &snap, nil
}

func (s *service) SetLowStockThreshold(ctx context.Context, productID uuid.UUID, threshold int) (*StockSnapshot, error) {
	snap, err := s.setLowStockThreshold(ctx, productID, threshold)
	s.observe("set_threshold", err)
	return snap, err
}

func (s *service) setLowStockThreshold(ctx context.Context, productID uuid.UUID, threshold int) (*StockSnapshot, error) {
	if productID == uuid.Nil {
		return nil, validationError("product id required")
	}
	if threshold < 0 {
		return nil, validationError("threshold must not be negative")
	}
	if threshold > MaxQuantity {
		return nil, validationError("threshold exceeds maximum")
	}
	item, err := s.findItem(ctx, productID)
	if err != nil {
		return nil, err
	}
	actor := actorRef(ctx)
	updated, err := s.guard.mutate(ctx, "set_threshold", item.ID, func(ctx context.Context, scope txScope, item models.StockItem) (*stockChange, error) {
		if !item.IsActive {
			return nil, stockItemNotFound(item.ProductID)
		}
		if item.LowStockThreshold == threshold {
			return nil, nil
		}
		next := item
		next.LowStockThreshold = threshold
		return &stockChange{next: next, actor: actor}, nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, productID)
	snap := NewStockSnapshot(*updated)
	return &snap, nil
}

func (s *service) EnsureStockItem(ctx context.Context, input EnsureInput) (*StockSnapshot, error) {
	if input.ProductID == uuid.Nil {
		return nil, validationError("product id required")
	}
	if input.LowStockThreshold != nil && *input.LowStockThreshold < 0 {
		return nil, validationError("threshold must not be negative")
	}
	if input.LowStockThreshold != nil && *input.LowStockThreshold > MaxQuantity {
		return nil, validationError("threshold exceeds maximum")
	}
	item, err := s.ensureItem(ctx, input)
	if err != nil {
		return nil, err
	}
	snap := NewStockSnapshot(*item)
	return &snap, nil
}

// ensureItem returns the product's stock record, creating it on first reference.
func (s *service) ensureItem(ctx context.Context, input EnsureInput) (*models.StockItem, error) {
	item, err := s.repo.FindItemByProduct(ctx, input.ProductID)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dependencyError(err, "load stock item")
	}

	if s.catalog != nil {
		exists, err := s.catalog.ProductExists(ctx, input.ProductID)
		if err != nil {
			return nil, dependencyError(err, "check product catalog")
		}
		if !exists {
			return nil, stockItemNotFound(input.ProductID)
		}
	}

	now := s.now()
	candidate := models.StockItem{
		ID:                uuid.New(),
		ProductID:         input.ProductID,
		LowStockThreshold: s.policy.DefaultLowStockThreshold,
		TrackInventory:    true,
		IsActive:          true,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if input.TrackInventory != nil {
		candidate.TrackInventory = *input.TrackInventory
	}
	if input.LowStockThreshold != nil {
		candidate.LowStockThreshold = *input.LowStockThreshold
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.repo.WithTx(tx).CreateItemIfAbsent(ctx, &candidate)
		if err != nil {
			return dependencyError(err, "create stock item")
		}
		if !created {
			return nil
		}
		return s.emit(ctx, txScope{tx: tx}, enums.EventStockItemCreated, candidate, actorRef(ctx), payloads.StockItemCreatedEvent{
			StockItemID:       candidate.ID,
			ProductID:         candidate.ProductID,
			LowStockThreshold: candidate.LowStockThreshold,
			TrackInventory:    candidate.TrackInventory,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.findItem(ctx, input.ProductID)
}

func (s *service) GetStock(ctx context.Context, productID uuid.UUID) (*StockSnapshot, error) {
	if productID == uuid.Nil {
		return nil, validationError("product id required")
	}
	cached, token, ok := s.cache.Get(ctx, productID)
	if ok {
		return cached, nil
	}
	item, err := s.findItem(ctx, productID)
	if err != nil {
		return nil, err
	}
	snap := NewStockSnapshot(*item)
	s.cache.Set(ctx, snap, token)
	return &snap, nil
}

func (s *service) GetReservation(ctx context.Context, reservationID uuid.UUID) (*ReservationSummary, error) {
	res, err := s.loadReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	summary := NewReservationSummary(*res)
	return &summary, nil
}

func (s *service) ListLowStock(ctx context.Context, limit int) ([]StockSnapshot, error) {
	rows, err := s.repo.ListLowStock(ctx, limit)
	if err != nil {
		return nil, dependencyError(err, "list low stock items")
	}
	return snapshots(rows), nil
}

func (s *service) ListOutOfStock(ctx context.Context, limit int) ([]StockSnapshot, error) {
	rows, err := s.repo.ListOutOfStock(ctx, limit)
	if err != nil {
		return nil, dependencyError(err, "list out of stock items")
	}
	return snapshots(rows), nil
}

func (s *service) ListReservations(ctx context.Context, productID uuid.UUID, params pagination.Params) (*ReservationList, error) {
	if productID == uuid.Nil {
		return nil, validationError("product id required")
	}
	rows, next, err := s.repo.ListReservations(ctx, productID, params)
	if err != nil {
		if _, cerr := pagination.ParseCursor(params.Cursor); cerr != nil {
			return nil, validationError("invalid cursor")
		}
		return nil, dependencyError(err, "list reservations")
	}
	list := &ReservationList{
		Reservations: make([]ReservationSummary, 0, len(rows)),
		NextCursor:   next,
	}
	for _, row := range rows {
		list.Reservations = append(list.Reservations, NewReservationSummary(row))
	}
	return list, nil
}

func (s *service) ListAdjustments(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockAdjustment, error) {
	if productID == uuid.Nil {
		return nil, validationError("product id required")
	}
	rows, err := s.repo.ListAdjustments(ctx, productID, limit)
	if err != nil {
		return nil, dependencyError(err, "list stock adjustments")
	}
	return rows, nil
}

func (s *service) ListDueReservations(ctx context.Context, limit int) ([]models.StockReservation, error) {
	rows, err := s.repo.ListDueReservations(ctx, s.now(), limit)
	if err != nil {
		return nil, dependencyError(err, "list due reservations")
	}
	return rows, nil
}

func (s *service) findItem(ctx context.Context, productID uuid.UUID) (*models.StockItem, error) {
	item, err := s.repo.FindItemByProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, stockItemNotFound(productID)
		}
		return nil, dependencyError(err, "load stock item")
	}
	return item, nil
}

func (s *service) loadReservation(ctx context.Context, reservationID uuid.UUID) (*models.StockReservation, error) {
	if reservationID == uuid.Nil {
		return nil, validationError("reservation id required")
	}
	res, err := s.repo.FindReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reservationNotFound(reservationID)
		}
		return nil, dependencyError(err, "load reservation")
	}
	return res, nil
}

func (s *service) reloadReservation(ctx context.Context, scope txScope, reservationID uuid.UUID) (*models.StockReservation, error) {
	res, err := scope.repo.FindReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reservationNotFound(reservationID)
		}
		return nil, dependencyError(err, "load reservation")
	}
	return res, nil
}

// transition moves res to status and mirrors the change on the struct. A hold that
// is no longer reserved means a concurrent writer won.
func (s *service) transition(ctx context.Context, scope txScope, res *models.StockReservation, to enums.ReservationStatus, at time.Time) error {
	ok, err := scope.repo.TransitionReservation(ctx, res.ID, to, at)
	if err != nil {
		return dependencyError(err, "update reservation status")
	}
	if !ok {
		return errVersionConflict
	}
	res.Status = to
	res.UpdatedAt = at
	switch to {
	case enums.ReservationStatusConfirmed:
		res.ConfirmedAt = &at
	case enums.ReservationStatusCancelled:
		res.CancelledAt = &at
	case enums.ReservationStatusExpired:
		res.ExpiredAt = &at
	}
	return nil
}

func (s *service) emit(ctx context.Context, scope txScope, eventType enums.OutboxEventType, item models.StockItem, actor *outbox.ActorRef, data any) error {
	return s.outbox.Emit(ctx, scope.tx, outbox.DomainEvent{
		EventType:   eventType,
		AggregateID: item.ID,
		Actor:       actor,
		Data:        data,
	})
}

func (s *service) observe(op string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(pkgerrors.CodeInternal)
		if typed := pkgerrors.As(err); typed != nil {
			outcome = string(typed.Code())
		}
	}
	s.metrics.ObserveOperation(op, outcome)
}

// releaseHold returns quantity units of a hold to the available pool.
func releaseHold(item models.StockItem, quantity int) (models.StockItem, error) {
	next := item
	if item.TrackInventory {
		next.ReservedStock -= quantity
	}
	return next, checkCounters(next)
}

func checkCounters(item models.StockItem) error {
	if item.CurrentStock < 0 || item.ReservedStock < 0 || (item.TrackInventory && item.ReservedStock > item.CurrentStock) {
		return pkgerrors.New(pkgerrors.CodeInternal, "stock counters out of balance").
			WithDetails(map[string]any{
				"stock_item_id":  item.ID.String(),
				"current_stock":  item.CurrentStock,
				"reserved_stock": item.ReservedStock,
			})
	}
	return nil
}

func snapshots(rows []models.StockItem) []StockSnapshot {
	out := make([]StockSnapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, NewStockSnapshot(row))
	}
	return out
}

// actorRef stamps the authenticated caller on events. Callers without a role,
// such as background jobs, are recorded as system actors.
func actorRef(ctx context.Context) *outbox.ActorRef {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return nil
	}
	kind := outbox.ActorKindSystem
	if actor.Role.IsValid() {
		kind = outbox.ActorKindUser
	}
	return &outbox.ActorRef{ID: actor.ID, Kind: kind}
}

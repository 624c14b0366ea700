package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-backoffice/pkg/db"
	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
	"github.com/angelmondragon/inventory-backoffice/pkg/metrics"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox/payloads"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 10 * time.Millisecond
	defaultMaxDelay    = 250 * time.Millisecond
	retryJitterPercent = 20
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// txScope is what a mutation sees inside its transaction.
type txScope struct {
	tx   *gorm.DB
	repo Repository
}

// stockChange is the next state a plan wants persisted plus the writes that must
// commit with it.
type stockChange struct {
	next  models.StockItem
	actor *outbox.ActorRef
	// after runs once the conditional update succeeded; updated carries the new version.
	after func(ctx context.Context, scope txScope, updated models.StockItem) error
}

// plan inspects a fresh copy of the item and returns the change to apply.
// A nil change commits nothing.
type plan func(ctx context.Context, scope txScope, item models.StockItem) (*stockChange, error)

type guard struct {
	tx          txRunner
	repo        Repository
	outbox      outboxPublisher
	metrics     *metrics.InventoryMetrics
	logg        *logger.Logger
	now         func() time.Time
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	// beforeWrite runs between the plan and the conditional update.
	beforeWrite func(ctx context.Context, tx *gorm.DB, item models.StockItem)
}

// mutate applies fn to the stock item under optimistic concurrency control. Each
// attempt reads the item, plans, and writes it back only if the version is unchanged.
// Conflicts roll the attempt back and retry with jittered exponential backoff.
func (g *guard) mutate(ctx context.Context, op string, stockItemID uuid.UUID, fn plan) (*models.StockItem, error) {
	backoff := retry.NewExponential(g.baseDelay)
	backoff = retry.WithJitterPercent(retryJitterPercent, backoff)
	backoff = retry.WithCappedDuration(g.maxDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(g.maxAttempts-1), backoff)

	var result *models.StockItem
	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		updated, err := g.attempt(ctx, op, stockItemID, fn)
		if err != nil {
			if errors.Is(err, errVersionConflict) || db.IsSerializationFailure(err) {
				g.metrics.IncGuardConflict(op)
				return retry.RetryableError(err)
			}
			return err
		}
		result = updated
		return nil
	})
	if err == nil {
		return result, nil
	}
	if errors.Is(err, errVersionConflict) || db.IsSerializationFailure(err) {
		g.metrics.IncGuardExhausted(op)
		if g.logg != nil {
			logCtx := g.logg.WithFields(ctx, map[string]any{
				"operation":     op,
				"stock_item_id": stockItemID.String(),
				"attempts":      attempts,
			})
			g.logg.Warn(logCtx, "stock guard gave up after repeated conflicts")
		}
		return nil, concurrentModification(op, stockItemID, attempts)
	}
	return nil, err
}

func (g *guard) attempt(ctx context.Context, op string, stockItemID uuid.UUID, fn plan) (*models.StockItem, error) {
	var result *models.StockItem
	err := g.tx.WithTx(ctx, func(tx *gorm.DB) error {
		scope := txScope{tx: tx, repo: g.repo.WithTx(tx)}
		item, err := scope.repo.FindItemByID(ctx, stockItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return stockItemMissing(stockItemID)
			}
			return dependencyError(err, "load stock item")
		}

		change, err := fn(ctx, scope, *item)
		if err != nil {
			return err
		}
		if change == nil {
			result = item
			return nil
		}

		if g.beforeWrite != nil {
			g.beforeWrite(ctx, tx, *item)
		}

		next := change.next
		next.ID = item.ID
		next.ProductID = item.ProductID
		next.Version = item.Version
		next.UpdatedAt = g.now().UTC().Truncate(time.Microsecond)
		ok, err := scope.repo.UpdateItemIfVersion(ctx, next, item.Version)
		if err != nil {
			return err
		}
		if !ok {
			return errVersionConflict
		}
		next.Version = item.Version + 1

		if change.after != nil {
			if err := change.after(ctx, scope, next); err != nil {
				return err
			}
		}
		if next.IsActive && !item.IsLowStock() && next.IsLowStock() {
			if err := g.emitLowStock(ctx, scope, next, change.actor, op); err != nil {
				return err
			}
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (g *guard) emitLowStock(ctx context.Context, scope txScope, item models.StockItem, actor *outbox.ActorRef, cause string) error {
	return g.outbox.Emit(ctx, scope.tx, outbox.DomainEvent{
		EventType:   enums.EventLowStockDetected,
		AggregateID: item.ID,
		Actor:       actor,
		Data: payloads.LowStockDetectedEvent{
			StockItemID:       item.ID,
			ProductID:         item.ProductID,
			LowStockThreshold: item.LowStockThreshold,
			OutOfStock:        item.IsOutOfStock(),
			Trigger:           cause,
			Levels:            levelsOf(item),
		},
	})
}

package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/inventory-backoffice/pkg/auth"
	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
	"github.com/angelmondragon/inventory-backoffice/pkg/metrics"
)

const (
	defaultExpiryBatchSize = 200
	expiryActorID          = "reservation-expiry"
)

type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	Inventory reservationExpirer
	Metrics   *metrics.InventoryMetrics
	BatchSize int
}

type reservationExpirer interface {
	ListDueReservations(ctx context.Context, limit int) ([]models.StockReservation, error)
	Expire(ctx context.Context, reservationID uuid.UUID) (bool, error)
}

// NewReservationExpiryJob releases holds whose deadline has passed, one batch per run.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &reservationExpiryJob{
		logg:      params.Logger,
		inventory: params.Inventory,
		metrics:   params.Metrics,
		batchSize: batch,
	}, nil
}

type reservationExpiryJob struct {
	logg      *logger.Logger
	inventory reservationExpirer
	metrics   *metrics.InventoryMetrics
	batchSize int
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

// Run expires each due reservation independently. A failure on one hold does
// not stop the rest; holds that lost a race to confirm or cancel are skipped.
func (j *reservationExpiryJob) Run(ctx context.Context) error {
	ctx = auth.WithActor(ctx, auth.Actor{ID: expiryActorID})

	due, err := j.inventory.ListDueReservations(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("list due reservations: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	var (
		errs    error
		expired int
		skipped int
	)
	for _, res := range due {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		ok, err := j.inventory.Expire(ctx, res.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire reservation %s: %w", res.ID, err))
			continue
		}
		if ok {
			expired++
		} else {
			skipped++
		}
	}
	j.metrics.AddExpired(expired)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":      len(due),
		"expired":  expired,
		"skipped":  skipped,
		"failures": len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "reservation expiry sweep complete")
	return errs
}

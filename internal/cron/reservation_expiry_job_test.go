package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/inventory-backoffice/pkg/auth"
	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
	"github.com/angelmondragon/inventory-backoffice/pkg/metrics"
)

type fakeExpirer struct {
	due      []models.StockReservation
	outcomes map[uuid.UUID]error
	skip     map[uuid.UUID]bool
	limit    int
	actors   []string
	expired  []uuid.UUID
}

func (f *fakeExpirer) ListDueReservations(_ context.Context, limit int) ([]models.StockReservation, error) {
	f.limit = limit
	return f.due, nil
}

func (f *fakeExpirer) Expire(ctx context.Context, id uuid.UUID) (bool, error) {
	actor, _ := auth.ActorFromContext(ctx)
	f.actors = append(f.actors, actor.ID)
	if err := f.outcomes[id]; err != nil {
		return false, err
	}
	if f.skip[id] {
		return false, nil
	}
	f.expired = append(f.expired, id)
	return true, nil
}

func TestReservationExpiryJobExpiresEveryDueHold(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	boom := errors.New("conflict")
	inv := &fakeExpirer{
		due:      []models.StockReservation{{ID: a}, {ID: b}, {ID: c}},
		outcomes: map[uuid.UUID]error{b: boom},
		skip:     map[uuid.UUID]bool{c: true},
	}
	reg := prometheus.NewRegistry()
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Inventory: inv,
		Metrics:   metrics.NewInventoryMetrics(reg),
		BatchSize: 50,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}

	err = job.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined failure, got %v", err)
	}
	if n := len(multierr.Errors(err)); n != 1 {
		t.Fatalf("expected one failure, got %d", n)
	}
	if inv.limit != 50 {
		t.Fatalf("expected batch size 50, got %d", inv.limit)
	}
	if len(inv.expired) != 1 || inv.expired[0] != a {
		t.Fatalf("unexpected expired set %v", inv.expired)
	}
	for _, actor := range inv.actors {
		if actor != expiryActorID {
			t.Fatalf("expected sweeper actor, got %q", actor)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() == "inventory_reservations_expired_total" {
			if got := fam.GetMetric()[0].GetCounter().GetValue(); got != 1 {
				t.Fatalf("expected 1 expired, got %v", got)
			}
			return
		}
	}
	t.Fatal("expired counter not registered")
}

func TestReservationExpiryJobNoDueHolds(t *testing.T) {
	inv := &fakeExpirer{}
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Inventory: inv,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if inv.limit != defaultExpiryBatchSize {
		t.Fatalf("expected default batch size, got %d", inv.limit)
	}
}

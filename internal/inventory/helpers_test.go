package inventory

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/inventory-backoffice/pkg/db"
	"github.com/angelmondragon/inventory-backoffice/pkg/db/models"
	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
	pkgerrors "github.com/angelmondragon/inventory-backoffice/pkg/errors"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
	"github.com/angelmondragon/inventory-backoffice/pkg/metrics"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db       *gorm.DB
	svc      Service
	impl     *service
	outbox   *outbox.Repository
	clock    *fakeClock
	registry *prometheus.Registry
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func newTestEnv(t *testing.T, configure ...func(*ServiceParams)) *testEnv {
	t.Helper()
	conn := newTestDB(t)
	clock := newFakeClock()
	registry := prometheus.NewRegistry()
	outboxRepo := outbox.NewRepository(conn)

	params := ServiceParams{
		Repo:    NewRepository(conn),
		Tx:      db.NewFromConn(conn),
		Outbox:  outbox.NewService(outboxRepo, logger.Nop()),
		Metrics: metrics.NewInventoryMetrics(registry),
		Logger:  logger.Nop(),
		Policy: Policy{
			ReservationTTL:           30 * time.Minute,
			DefaultLowStockThreshold: 5,
			MaxAttempts:              3,
			RetryBaseDelay:           time.Millisecond,
			RetryMaxDelay:            2 * time.Millisecond,
		},
		Clock: clock.Now,
	}
	for _, fn := range configure {
		fn(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return &testEnv{
		db:       conn,
		svc:      svc,
		impl:     svc.(*service),
		outbox:   outboxRepo,
		clock:    clock,
		registry: registry,
	}
}

type seedOption func(*models.StockItem)

func withReserved(n int) seedOption {
	return func(item *models.StockItem) { item.ReservedStock = n }
}

func withThreshold(n int) seedOption {
	return func(item *models.StockItem) { item.LowStockThreshold = n }
}

func untracked() seedOption {
	return func(item *models.StockItem) { item.TrackInventory = false }
}

func inactive() seedOption {
	return func(item *models.StockItem) { item.IsActive = false }
}

func (e *testEnv) seed(t *testing.T, current int, opts ...seedOption) models.StockItem {
	t.Helper()
	now := e.clock.Now()
	item := models.StockItem{
		ID:                uuid.New(),
		ProductID:         uuid.New(),
		CurrentStock:      current,
		LowStockThreshold: 0,
		TrackInventory:    true,
		IsActive:          true,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, opt := range opts {
		opt(&item)
	}
	require.NoError(t, e.db.Create(&item).Error)
	return item
}

func (e *testEnv) item(t *testing.T, productID uuid.UUID) models.StockItem {
	t.Helper()
	var item models.StockItem
	require.NoError(t, e.db.First(&item, "product_id = ?", productID).Error)
	return item
}

func (e *testEnv) reservation(t *testing.T, id uuid.UUID) models.StockReservation {
	t.Helper()
	var res models.StockReservation
	require.NoError(t, e.db.First(&res, "id = ?", id).Error)
	return res
}

func (e *testEnv) events(t *testing.T, stockItemID uuid.UUID, eventType enums.OutboxEventType) []outbox.PayloadEnvelope {
	t.Helper()
	rows, err := e.outbox.ListByAggregate(context.Background(), stockItemID)
	require.NoError(t, err)
	var out []outbox.PayloadEnvelope
	for _, row := range rows {
		if row.EventType != eventType {
			continue
		}
		var envelope outbox.PayloadEnvelope
		require.NoError(t, json.Unmarshal(row.Payload, &envelope))
		out = append(out, envelope)
	}
	return out
}

func (e *testEnv) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := e.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			got := map[string]string{}
			for _, pair := range metric.GetLabel() {
				got[pair.GetName()] = pair.GetValue()
			}
			match := true
			for k, v := range labels {
				if got[k] != v {
					match = false
				}
			}
			if match {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), "unexpected error %v", err)
	return typed
}

func details(t *testing.T, typed *pkgerrors.Error) map[string]any {
	t.Helper()
	out, ok := typed.Details().(map[string]any)
	require.True(t, ok, "expected map details, got %T", typed.Details())
	return out
}

func requireBalanced(t *testing.T, item models.StockItem) {
	t.Helper()
	require.GreaterOrEqual(t, item.CurrentStock, 0)
	require.GreaterOrEqual(t, item.ReservedStock, 0)
	if item.TrackInventory {
		require.LessOrEqual(t, item.ReservedStock, item.CurrentStock)
		require.GreaterOrEqual(t, item.Available(), 0)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/inventory-backoffice/internal/cron"
	"github.com/angelmondragon/inventory-backoffice/internal/inventory"
	"github.com/angelmondragon/inventory-backoffice/pkg/config"
	"github.com/angelmondragon/inventory-backoffice/pkg/db"
	"github.com/angelmondragon/inventory-backoffice/pkg/instance"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
	"github.com/angelmondragon/inventory-backoffice/pkg/metrics"
	"github.com/angelmondragon/inventory-backoffice/pkg/migrate"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox"
	"github.com/angelmondragon/inventory-backoffice/pkg/redis"
)

const lockNameFormat = "cron:%s:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	inventoryMetrics := metrics.NewInventoryMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	var cache inventory.StockCache = inventory.NoopStockCache()
	if cfg.FeatureFlags.StockCache {
		cache = inventory.NewRedisStockCache(redisClient, cfg.Inventory.CacheTTL, logg)
	}
	inventoryService, err := inventory.NewService(inventory.ServiceParams{
		Repo:    inventory.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Outbox:  outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Cache:   cache,
		Metrics: inventoryMetrics,
		Logger:  logg,
		Policy:  inventory.PolicyFromConfig(cfg.Inventory),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:    logg,
		Inventory: inventoryService,
		Metrics:   inventoryMetrics,
		BatchSize: cfg.Inventory.SweepBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation expiry job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:    logg,
		Outbox:    outbox.NewRepository(dbClient.DB()),
		DLQ:       outbox.NewDLQRepository(dbClient.DB()),
		Retention: cfg.Outbox.RetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	sweeper, err := newCronService(cfg, logg, redisClient, cronMetrics, "reservation-sweeper", cfg.Inventory.SweepInterval, expiryJob)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper", err)
		os.Exit(1)
	}
	maintenance, err := newCronService(cfg, logg, redisClient, cronMetrics, "maintenance", cfg.Inventory.MaintenanceInterval, retentionJob)
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance cron", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return sweeper.Run(groupCtx) })
	group.Go(func() error { return maintenance.Run(groupCtx) })
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// newCronService builds one loop; every loop holds its own lock.
func newCronService(cfg *config.Config, logg *logger.Logger, client *redis.Client, m *metrics.CronJobMetrics, name string, interval time.Duration, jobs ...cron.Job) (*cron.Service, error) {
	lock, err := cron.NewRedisLock(client, lockName(cfg.App.Env, name), interval)
	if err != nil {
		return nil, fmt.Errorf("create %s lock: %w", name, err)
	}
	return cron.NewService(cron.ServiceParams{
		Name:     name,
		Logger:   logg,
		Registry: cron.NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  m,
		Interval: interval,
	})
}

func lockName(env, loop string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockNameFormat, env, loop)
}

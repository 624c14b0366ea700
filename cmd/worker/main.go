package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/inventory-backoffice/internal/inventory"
	"github.com/angelmondragon/inventory-backoffice/internal/stockevents"
	"github.com/angelmondragon/inventory-backoffice/pkg/config"
	"github.com/angelmondragon/inventory-backoffice/pkg/instance"
	"github.com/angelmondragon/inventory-backoffice/pkg/kafka"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
	"github.com/angelmondragon/inventory-backoffice/pkg/metrics"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox/idempotency"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox/registry"
	"github.com/angelmondragon/inventory-backoffice/pkg/pubsub"
	"github.com/angelmondragon/inventory-backoffice/pkg/redis"
)

const (
	stockConsumerName = "stock-cache"
	alertConsumerName = "stock-alerts"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

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

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}
	eventRegistry, err := registry.NewEventRegistry(registry.ForTransport(cfg))
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	cache := inventory.NewRedisStockCache(redisClient, cfg.Inventory.CacheTTL, logg)
	router, err := stockevents.NewDefaultRouter(cache, metrics.NewInventoryMetrics(prometheus.DefaultRegisterer), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build stock event router", err)
		os.Exit(1)
	}
	stockService, err := stockevents.NewService(stockConsumerName, eventRegistry, router, manager, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stock consumer", err)
		os.Exit(1)
	}
	alertService, err := stockevents.NewService(alertConsumerName, eventRegistry, router, manager, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create alert consumer", err)
		os.Exit(1)
	}

	params := ServiceParams{
		Logger:       logg,
		Dependencies: []dependency{{name: "redis", ping: redisClient.Ping}},
	}
	switch cfg.Eventing.TransportKind() {
	case config.TransportKafka:
		topics := registry.TopicsFromKafka(cfg.Kafka)
		stockReader, err := kafka.NewReader(cfg.Kafka, topics.Stock)
		if err != nil {
			logg.Error(context.Background(), "failed to create kafka stock reader", err)
			os.Exit(1)
		}
		alertReader, err := kafka.NewReader(cfg.Kafka, topics.Alert)
		if err != nil {
			logg.Error(context.Background(), "failed to create kafka alert reader", err)
			os.Exit(1)
		}
		params.Consumers = []consumer{
			kafkaConsumer(stockConsumerName, stockService, stockReader),
			kafkaConsumer(alertConsumerName, alertService, alertReader),
		}
	default:
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
		params.Dependencies = append(params.Dependencies, dependency{name: "pubsub", ping: pubsubClient.Ping})
		params.Consumers = []consumer{
			pubSubConsumer(stockConsumerName, stockService, pubsubClient.StockSubscription()),
			pubSubConsumer(alertConsumerName, alertService, pubsubClient.AlertSubscription()),
		}
	}

	service, err := NewService(params)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"transport":   cfg.Eventing.TransportKind(),
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

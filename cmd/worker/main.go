package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-affiliates/internal/bootstrap"
	"github.com/angelmondragon/storefront-affiliates/internal/orders"
	"github.com/angelmondragon/storefront-affiliates/pkg/config"
	"github.com/angelmondragon/storefront-affiliates/pkg/db"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
	"github.com/angelmondragon/storefront-affiliates/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-affiliates/pkg/pubsub"
	"github.com/angelmondragon/storefront-affiliates/pkg/redis"
)

func main() {
	bootstrap.Main("worker", run)
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	ctx = logg.WithField(ctx, "instance", instanceID())

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer bootstrap.Close(logg, "database", dbClient.Close)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer bootstrap.Close(logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer bootstrap.Close(logg, "pubsub", pubsubClient.Close)

	ledgerSvc, err := bootstrap.Ledger(dbClient, cfg.Commissions, logg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	bridge, err := bootstrap.Bridge(dbClient, ledgerSvc, logg)
	if err != nil {
		return err
	}
	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.ConsumerIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency manager: %w", err)
	}
	consumer, err := orders.NewConsumer(bridge, pubsubClient.OrdersSubscription(), manager, logg)
	if err != nil {
		return fmt.Errorf("order status consumer: %w", err)
	}

	service, err := NewService(ServiceParams{
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		PubSub:   pubsubClient,
		Consumer: consumer,
	})
	if err != nil {
		return err
	}
	logg.Info(ctx, "consuming order status events")
	return service.Run(ctx)
}

func instanceID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return "worker-0"
}

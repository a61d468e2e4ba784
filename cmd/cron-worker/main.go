package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-affiliates/internal/bootstrap"
	"github.com/angelmondragon/storefront-affiliates/internal/commissions"
	"github.com/angelmondragon/storefront-affiliates/internal/cron"
	"github.com/angelmondragon/storefront-affiliates/pkg/config"
	"github.com/angelmondragon/storefront-affiliates/pkg/db"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
	"github.com/angelmondragon/storefront-affiliates/pkg/metrics"
	"github.com/angelmondragon/storefront-affiliates/pkg/migrate"
	"github.com/angelmondragon/storefront-affiliates/pkg/outbox"
	"github.com/angelmondragon/storefront-affiliates/pkg/redis"
)

type options struct {
	once bool
	jobs []string
}

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	only := flag.String("jobs", "", "comma separated job names to run (default all)")
	flag.Parse()

	opts := options{once: *once}
	if *only != "" {
		opts.jobs = strings.Split(*only, ",")
	}
	bootstrap.Main("cron-worker", func(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
		return run(ctx, cfg, logg, opts)
	})
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer bootstrap.Close(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer bootstrap.Close(logg, "redis", redisClient.Close)

	ledgerSvc, err := bootstrap.Ledger(dbClient, cfg.Commissions, logg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cfg, logg, dbClient, ledgerSvc, opts.jobs)
	if err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, 0, "cron-worker", env)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Commissions.ReconcileInterval,
	})
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "lock", lock.Key())
	if opts.once {
		logg.Info(ctx, "running single cron cycle")
		return service.RunOnce(ctx)
	}
	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, ledgerSvc *commissions.Service, only []string) (*cron.Registry, error) {
	reconcile, err := cron.NewReconcileJob(cron.ReconcileJobParams{Logger: logg, Checker: ledgerSvc})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	for _, job := range []cron.Job{reconcile, retention} {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry.Only(only...)
}

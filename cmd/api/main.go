package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/storefront-affiliates/api/routes"
	"github.com/angelmondragon/storefront-affiliates/internal/bootstrap"
	"github.com/angelmondragon/storefront-affiliates/pkg/config"
	"github.com/angelmondragon/storefront-affiliates/pkg/db"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
	"github.com/angelmondragon/storefront-affiliates/pkg/migrate"
	"github.com/angelmondragon/storefront-affiliates/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	bootstrap.Main("api", run)
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ledgerSvc, err := bootstrap.Ledger(dbClient, cfg.Commissions, logg, registry)
	if err != nil {
		return err
	}
	bridge, err := bootstrap.Bridge(dbClient, ledgerSvc, logg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr: ":" + listenPort(cfg),
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Ledger:   ledgerSvc,
			Bridge:   bridge,
			Gatherer: registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx = logg.WithField(ctx, "addr", server.Addr)
	return serve(ctx, logg, server)
}

// listenPort prefers the platform-assigned PORT over the configured one.
func listenPort(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return cfg.App.Port
}

// serve blocks until the server fails or ctx ends, then drains in-flight
// requests for up to shutdownTimeout.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server) error {
	failed := make(chan error, 1)
	go func() {
		logg.Info(ctx, "api listening")
		failed <- server.ListenAndServe()
	}()

	select {
	case err := <-failed:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

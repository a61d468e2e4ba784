package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-affiliates/pkg/config"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
)

// RunFunc is a binary's body. It owns every connection it opens.
type RunFunc func(ctx context.Context, cfg *config.Config, logg *logger.Logger) error

// Main loads the environment, runs fn until SIGINT or SIGTERM and exits
// non-zero when fn fails for any reason other than shutdown.
func Main(kind string, fn RunFunc) {
	cfg, logg, err := Process(kind)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": kind})

	if err := fn(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, kind+" stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, kind+" shut down")
}

// Process reads .env when present and loads the config. The returned logger
// is usable even when err is set.
func Process(kind string) (*config.Config, *logger.Logger, error) {
	logg := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), "no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, logg, err
	}
	cfg.Service.Kind = kind
	return cfg, logger.New(logger.Options{
		ServiceName: kind,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	}), nil
}

// Close runs closeFn and logs its error, for use in defer.
func Close(logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), fmt.Sprintf("closing %s", what), err)
	}
}

// Dependency is a named health check run before a service starts work.
type Dependency struct {
	Name  string
	Check func(context.Context) error
}

// Ready runs each check in order and stops at the first failure.
func Ready(ctx context.Context, logg *logger.Logger, deps ...Dependency) error {
	for _, dep := range deps {
		if err := dep.Check(ctx); err != nil {
			logg.Error(logg.WithField(ctx, "dependency", dep.Name), "dependency not ready", err)
			return fmt.Errorf("%s ping failed: %w", dep.Name, err)
		}
	}
	return nil
}

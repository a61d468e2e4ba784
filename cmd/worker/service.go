package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-affiliates/internal/bootstrap"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	DB       pinger
	Redis    pinger
	PubSub   pinger
	Consumer runner
}

// Service runs the order status consumer once every dependency answers.
type Service struct {
	logg     *logger.Logger
	deps     []bootstrap.Dependency
	consumer runner
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Redis == nil:
		return nil, errors.New("redis client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Consumer == nil:
		return nil, errors.New("order status consumer is required")
	}
	return &Service{
		logg: params.Logger,
		deps: []bootstrap.Dependency{
			{Name: "database", Check: params.DB.Ping},
			{Name: "redis", Check: params.Redis.Ping},
			{Name: "pubsub", Check: params.PubSub.Ping},
		},
		consumer: params.Consumer,
	}, nil
}

// Run returns ctx.Err() on shutdown and the consumer's error otherwise.
func (s *Service) Run(ctx context.Context) error {
	if err := bootstrap.Ready(ctx, s.logg, s.deps...); err != nil {
		return err
	}
	s.logg.Info(ctx, "worker dependencies ready")

	if err := s.consumer.Run(ctx); err != nil && ctx.Err() == nil {
		s.logg.Error(ctx, "consumer stopped unexpectedly", err)
		return err
	}
	return ctx.Err()
}

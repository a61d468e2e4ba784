package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/storefront-affiliates/internal/bootstrap"
	"github.com/angelmondragon/storefront-affiliates/pkg/config"
	"github.com/angelmondragon/storefront-affiliates/pkg/db/models"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
	"github.com/angelmondragon/storefront-affiliates/pkg/outbox"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

type pinger interface {
	Ping(context.Context) error
}

type pubSubClient interface {
	pinger
	CommissionsPublisher() *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         pinger
	PubSub     pubSubClient
	Repository outboxRepository
	// Publisher replaces the commissions topic, for tests.
	Publisher publisher
}

// Service relays committed outbox rows to the commissions topic.
type Service struct {
	logg        *logger.Logger
	db          pinger
	pubsub      pubSubClient
	repo        outboxRepository
	pub         publisher
	batchSize   int
	maxAttempts int
	idle        time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	}

	pub := params.Publisher
	if pub == nil {
		topic := params.PubSub.CommissionsPublisher()
		if topic == nil {
			return nil, errors.New("commissions publisher is not configured")
		}
		pub = topicPublisher{topic}
	}

	opts := params.Config.Outbox
	return &Service{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		repo:        params.Repository,
		pub:         pub,
		batchSize:   positiveOr(opts.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(opts.MaxAttempts, defaultMaxAttempts),
		idle:        time.Duration(positiveOr(opts.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run drains the outbox until ctx ends. Batch errors back off exponentially;
// an empty batch waits one poll interval.
func (s *Service) Run(ctx context.Context) error {
	if err := bootstrap.Ready(ctx, s.logg,
		bootstrap.Dependency{Name: "database", Check: s.db.Ping},
		bootstrap.Dependency{Name: "pubsub", Check: s.pubsub.Ping},
	); err != nil {
		return err
	}

	backoff := s.backoff()
	for ctx.Err() == nil {
		wait := s.idle
		n, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait, _ = backoff.Next()
		case n > 0:
			backoff, wait = s.backoff(), 0
		default:
			backoff = s.backoff()
		}
		if err := pause(ctx, wait); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "outbox publisher stopping")
	return ctx.Err()
}

func (s *Service) backoff() retry.Backoff {
	return retry.WithJitter(jitterWindow, retry.WithCappedDuration(maxBackoff, retry.NewExponential(s.idle)))
}

// processBatch returns how many rows it handled. A failed publish is
// recorded on its row; only repository errors abort the batch.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	events, err := s.repo.FetchUnpublished(ctx, s.batchSize, s.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("fetch unpublished: %w", err)
	}
	for _, event := range events {
		if err := s.settle(ctx, event); err != nil {
			return len(events), err
		}
	}
	return len(events), nil
}

func (s *Service) settle(ctx context.Context, event models.OutboxEvent) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	pubErr := s.publish(ctx, event)
	if pubErr == nil {
		if err := s.repo.MarkPublished(ctx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(ctx, "outbox event published")
		return nil
	}

	if event.AttemptCount+1 >= s.maxAttempts {
		s.logg.Error(ctx, "outbox event exhausted publish attempts", pubErr)
	} else {
		s.logg.Warn(s.logg.WithField(ctx, "reason", pubErr.Error()), "outbox publish failed")
	}
	if err := s.repo.MarkFailed(ctx, event.ID, pubErr); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent) error {
	msg, err := message(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := s.pub.Publish(ctx, msg)
	if result == nil {
		return errors.New("publisher returned no result")
	}
	_, err = result.Get(ctx)
	return err
}

// message copies routing metadata into attributes so consumers can filter
// without decoding the body.
func message(event models.OutboxEvent) (*gcppubsub.Message, error) {
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, err
	}
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type topicPublisher struct {
	topic *gcppubsub.Publisher
}

func (p topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.topic.Publish(ctx, msg)
}

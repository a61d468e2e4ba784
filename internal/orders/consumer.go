package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
	"github.com/angelmondragon/storefront-affiliates/pkg/outbox"
	"github.com/angelmondragon/storefront-affiliates/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-affiliates/pkg/outbox/payloads"
)

const orderStatusConsumer = "order-status-bridge"

type statusHandler interface {
	OnOrderStatusChanged(ctx context.Context, orderID uuid.UUID, status string) (*BridgeResult, error)
}

type processedTracker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// verdict is what happens to a delivery once handled.
type verdict int

const (
	ack verdict = iota
	redeliver
)

// Consumer feeds order_status_changed events from Pub/Sub into the bridge.
type Consumer struct {
	bridge       statusHandler
	subscription *pubsub.Subscriber
	idempotency  processedTracker
	logg         *logger.Logger
}

func NewConsumer(bridge statusHandler, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	switch {
	case bridge == nil:
		return nil, errors.New("order status bridge required")
	case subscription == nil:
		return nil, errors.New("orders subscription required")
	case manager == nil:
		return nil, errors.New("idempotency manager required")
	case logg == nil:
		return nil, errors.New("logger required")
	}
	return &Consumer{bridge: bridge, subscription: subscription, idempotency: manager, logg: logg}, nil
}

// Run receives until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data) == redeliver {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type statusEvent struct {
	id      uuid.UUID
	payload payloads.OrderStatusChangedEvent
}

func decodeStatusEvent(data []byte) (statusEvent, error) {
	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		return statusEvent{}, err
	}
	id, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return statusEvent{}, fmt.Errorf("event id: %w", err)
	}
	var event statusEvent
	if err := json.Unmarshal(envelope.Data, &event.payload); err != nil {
		return statusEvent{}, fmt.Errorf("payload: %w", err)
	}
	event.id = id
	return event, nil
}

// process never redelivers malformed or permanently rejected events.
func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) verdict {
	logCtx := c.logg.WithFields(ctx, map[string]any{"message_id": messageID, "event_type": attrs["event_type"]})
	if attrs["event_type"] != string(enums.EventOrderStatusChanged) {
		c.logg.Debug(logCtx, "skipping non-order event")
		return ack
	}

	event, err := decodeStatusEvent(data)
	if err != nil {
		c.logg.Error(logCtx, "undecodable order status event", err)
		return ack
	}

	seen, err := c.idempotency.CheckAndMarkProcessed(ctx, orderStatusConsumer, event.id)
	switch {
	case err != nil:
		c.logg.Error(logCtx, "idempotency check failed", err)
		return redeliver
	case seen:
		c.logg.Info(logCtx, "event already processed")
		return ack
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id": event.id.String(),
		"order_id": event.payload.OrderID.String(),
		"status":   event.payload.Status,
	})
	_, err = c.bridge.OnOrderStatusChanged(logCtx, event.payload.OrderID, event.payload.Status)
	switch {
	case err == nil:
		return ack
	case IsPermanent(err):
		c.logg.Warn(c.logg.WithField(logCtx, "reason", err.Error()), "order status event rejected")
		return ack
	default:
		c.logg.Error(logCtx, "order status handling failed", err)
		if delErr := c.idempotency.Delete(ctx, orderStatusConsumer, event.id); delErr != nil {
			c.logg.Error(logCtx, "failed to release idempotency mark", delErr)
		}
		return redeliver
	}
}

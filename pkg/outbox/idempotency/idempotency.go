package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-affiliates/pkg/redis"
)

// DefaultTTL covers Pub/Sub's maximum redelivery horizon with room to spare.
const DefaultTTL = 30 * 24 * time.Hour

var (
	ErrConsumerRequired = errors.New("consumer name is required")
	ErrEventIDRequired  = errors.New("event id is required")
)

// Manager remembers which outbox event ids a consumer has handled so a
// redelivered order status event cannot move a referral twice.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

// NewManager returns a Manager; a zero ttl selects DefaultTTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed reports whether eventID was already handled by
// consumer. When it was not, the id is recorded with the processing time.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.Key(consumer, eventID)
	if err != nil {
		return false, err
	}
	marked, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return !marked, nil
}

// Delete forgets eventID so a redelivery is handled again; consumers call it
// when processing fails after the mark.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.Key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// Key is the redis key recording eventID for consumer.
func (m *Manager) Key(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", ErrConsumerRequired
	}
	if eventID == uuid.Nil {
		return "", ErrEventIDRequired
	}
	return m.store.IdempotencyKey("consumer:"+consumer, eventID.String()), nil
}

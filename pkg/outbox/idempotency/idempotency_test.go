package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	values  map[string]string
	ttls    map[string]time.Duration
	failSet error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	return f.values[key], nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.failSet != nil {
		return false, f.failSet
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "affiliates:idem:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func TestCheckAndMarkProcessed(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return fixed }

	eventID := uuid.New()
	ctx := context.Background()

	already, err := manager.CheckAndMarkProcessed(ctx, "order-status-bridge", eventID)
	require.NoError(t, err)
	assert.False(t, already)

	key := "affiliates:idem:consumer:order-status-bridge:" + eventID.String()
	assert.Equal(t, "2026-03-01T12:00:00Z", store.values[key])
	assert.Equal(t, 24*time.Hour, store.ttls[key])

	already, err = manager.CheckAndMarkProcessed(ctx, "order-status-bridge", eventID)
	require.NoError(t, err)
	assert.True(t, already)

	already, err = manager.CheckAndMarkProcessed(ctx, "another-consumer", eventID)
	require.NoError(t, err)
	assert.False(t, already, "consumers track events independently")
}

func TestDeleteAllowsReprocessing(t *testing.T) {
	manager, err := NewManager(newFakeStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	_, err = manager.CheckAndMarkProcessed(ctx, "order-status-bridge", eventID)
	require.NoError(t, err)
	require.NoError(t, manager.Delete(ctx, "order-status-bridge", eventID))

	already, err := manager.CheckAndMarkProcessed(ctx, "order-status-bridge", eventID)
	require.NoError(t, err)
	assert.False(t, already)
}

func TestCheckAndMarkProcessedStoreError(t *testing.T) {
	store := newFakeStore()
	store.failSet = errors.New("connection reset")
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	_, err = manager.CheckAndMarkProcessed(context.Background(), "order-status-bridge", uuid.New())
	assert.ErrorContains(t, err, "connection reset")
}

func TestManagerValidation(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(newFakeStore(), -time.Second)
	assert.Error(t, err)

	manager, err := NewManager(newFakeStore(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, manager.ttl)

	_, err = manager.Key(" ", uuid.New())
	assert.ErrorIs(t, err, ErrConsumerRequired)
	_, err = manager.Key("order-status-bridge", uuid.Nil)
	assert.ErrorIs(t, err, ErrEventIDRequired)
}

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-affiliates/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for i := int64(1); i <= 2; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "referrals:code:SUMMER", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, i, count)
	}

	allowed, count, err := client.FixedWindowAllow(ctx, "referrals:code:SUMMER", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(3), count)

	key := "affiliates:rl:referrals:code:SUMMER"
	assert.Equal(t, time.Minute, mock.ttl[key])
	assert.Equal(t, 1, mock.expireSet[key], "window must start at the first hit")
}

func TestFixedWindowAllowWithoutWindow(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, _, err := client.FixedWindowAllow(context.Background(), "scope", 1, 0)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Empty(t, mock.ttl)
}

func TestSetNXGetDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.IdempotencyKey("referral-pay", "abc")

	ok, err := client.SetNX(ctx, key, "owner-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, key, "owner-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", value)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)

	assert.NoError(t, client.Del(ctx))
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	ctx := context.Background()

	assert.ErrorIs(t, client.Ping(ctx), ErrNotInitialized)
	_, err := client.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, _, err = client.FixedWindowAllow(ctx, "s", 1, time.Second)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.NoError(t, client.Close())
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "affiliates:idem:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "affiliates:rl:referrals:ip:10.0.0.1", client.RateLimitKey("referrals:ip:10.0.0.1"))
	assert.Equal(t, "affiliates:lock:cron-worker:prod", client.LockKey("cron-worker", "prod"))
	assert.Equal(t, "affiliates:lock:cron-worker", client.LockKey("cron-worker", " "))
}

func TestOptions(t *testing.T) {
	opts, err := Options(config.RedisConfig{
		URL:         "redis://:secret@cache.internal:6380/3",
		PoolSize:    25,
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 25, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)
	assert.Equal(t, clientName, opts.ClientName)

	opts, err = Options(config.RedisConfig{Address: "localhost:6379", DB: 1})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 1, opts.DB)

	_, err = Options(config.RedisConfig{})
	assert.Error(t, err)

	_, err = Options(config.RedisConfig{URL: "://bad"})
	assert.Error(t, err)
}

type mockCmdable struct {
	data      map[string]string
	counters  map[string]int64
	ttl       map[string]time.Duration
	expireSet map[string]int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:      map[string]string{},
		counters:  map[string]int64{},
		ttl:       map[string]time.Duration{},
		expireSet: map[string]int{},
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	m.counters[key]++
	return redis.NewIntResult(m.counters[key], nil)
}

func (m *mockCmdable) ExpireNX(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	if _, ok := m.ttl[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.ttl[key] = ttl
	m.expireSet[key]++
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

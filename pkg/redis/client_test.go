package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/budgetdesk-backend/pkg/config"
)

func TestHitCountsPerScope(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	client := &Client{cmd: fake}

	for i := 1; i <= 2; i++ {
		w, err := client.Hit(ctx, "cart:user-1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, w.Allowed, "hit %d", i)
		assert.Equal(t, int64(i), w.Count)
		assert.Zero(t, w.ResetIn)
	}

	w, err := client.Hit(ctx, "cart:user-1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, w.Allowed)
	assert.Equal(t, int64(0), w.Remaining())
	assert.Equal(t, 42*time.Second, w.ResetIn)

	other, err := client.Hit(ctx, "cart:user-2", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
	assert.Equal(t, int64(1), other.Remaining())

	assert.Equal(t, map[string]time.Duration{
		"bd:rate_limit:cart:user-1": time.Minute,
		"bd:rate_limit:cart:user-2": time.Minute,
	}, fake.ttl, "expire nx keeps the first ttl")
}

func TestHitSurfacesIncrFailure(t *testing.T) {
	fake := newFakeCommands()
	fake.incrErr = fmt.Errorf("connection refused")
	client := &Client{cmd: fake}

	_, err := client.Hit(context.Background(), "cart:user-1", 1, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bd:rate_limit:cart:user-1")
}

func TestSetNXAndDelete(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newFakeCommands()}
	key := client.IdempotencyKey("consumer", "evt-1")

	set, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	require.True(t, set)
	set, err = client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	require.False(t, set)

	require.NoError(t, client.Set(ctx, key, "2", time.Hour))
	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "2", got)

	require.NoError(t, client.Del(ctx, key))
	require.NoError(t, client.Del(ctx))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	assert.ErrorIs(t, client.Ping(context.Background()), errNotInitialized)
	_, err := client.Hit(context.Background(), "x", 1, time.Second)
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, client.Close())
}

func TestKeys(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "bd:idempotency:consumer:evt-1", client.IdempotencyKey("consumer", "evt-1"))
	assert.Equal(t, "bd:rate_limit:cart:user-1", client.RateLimitKey("cart:user-1"))
	assert.Equal(t, "bd:lease:cron", client.LeaseKey(" cron "))
	assert.Equal(t, "bd:idempotency:id", client.IdempotencyKey("", "id"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://:secret@cache:6380/3",
		DB:          7,
		PoolSize:    12,
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB, "db from the url wins")
	assert.Equal(t, 12, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}

type fakeCommands struct {
	data    map[string]string
	counts  map[string]int64
	ttl     map[string]time.Duration
	incrErr error
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{
		data:   map[string]string{},
		counts: map[string]int64{},
		ttl:    map[string]time.Duration{},
	}
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Incr(_ context.Context, key string) *redis.IntCmd {
	if f.incrErr != nil {
		return redis.NewIntResult(0, f.incrErr)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCommands) ExpireNX(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.ttl[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.ttl[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) PTTL(_ context.Context, key string) *redis.DurationCmd {
	if _, ok := f.ttl[key]; !ok {
		return redis.NewDurationResult(-1, nil)
	}
	return redis.NewDurationResult(42*time.Second, nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

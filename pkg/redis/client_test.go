package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bagflow-backend/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return FromRaw(raw), mr
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	allowed, count, err := client.FixedWindowAllow(ctx, "verify:bag-1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(1), count)
	assert.True(t, mr.TTL(client.RateLimitKey("verify:bag-1")) > 0, "expected ttl after first increment")

	allowed, count, err = client.FixedWindowAllow(ctx, "verify:bag-1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(2), count)

	allowed, _, err = client.FixedWindowAllow(ctx, "verify:bag-1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "expected limit reached")

	mr.FastForward(2 * time.Minute)
	allowed, count, err = client.FixedWindowAllow(ctx, "verify:bag-1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "window should reset")
	assert.Equal(t, int64(1), count)
}

func TestSetNXAndDelete(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	key := client.IdempotencyKey("webhook", "pay-1:approved")

	ok, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.True(t, errors.Is(err, redis.Nil))
}

func TestCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	key := client.LockKey("cron")

	require.NoError(t, client.Set(ctx, key, "owner-a", time.Minute))

	deleted, err := client.CompareAndDelete(ctx, key, "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted, "foreign owner must not delete")

	deleted, err = client.CompareAndDelete(ctx, key, "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _ := newTestClient(t)
	channel := client.ChannelKey("couriers-online")

	sub, err := client.Subscribe(ctx, channel)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, client.Publish(ctx, channel, []byte(`{"type":"job.published"}`)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"job.published"}`, msg.Payload)
}

func TestBuildKeyNamespaces(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "bf:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "bf:rate_limit:x", client.RateLimitKey("x"))
	assert.Equal(t, "bf:lock:job", client.LockKey("job"))
	assert.Equal(t, "bf:channel:c", client.ChannelKey("c"))
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	_, err := client.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, client.Publish(context.Background(), "c", nil))
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)

	_, err = optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)
}

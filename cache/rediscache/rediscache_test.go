package rediscache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-passthru-auth/cache"
	"github.com/jrsteele09/go-passthru-auth/cache/rediscache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrefix = "test:"

func newTestCache(t *testing.T) (*rediscache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return rediscache.NewWithClient(client, testPrefix), mr
}

func TestSetGetUsesPrefix(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "client:abc", "record", 0))

	v, err := c.Get(ctx, "client:abc")
	require.NoError(t, err)
	assert.Equal(t, "record", v)
	assert.True(t, mr.Exists(testPrefix+"client:abc"))
}

func TestGetMissing(t *testing.T) {
	c, _ := newTestCache(t)
	_, err := c.Get(context.Background(), "nope")
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "pending:s1", "p", 10*time.Minute))
	assert.Equal(t, 10*time.Minute, mr.TTL(testPrefix+"pending:s1"))

	mr.FastForward(10*time.Minute + time.Second)
	_, err := c.Get(ctx, "pending:s1")
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestTakeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "code:x", "issued", time.Minute))

	v, err := c.Take(ctx, "code:x")
	require.NoError(t, err)
	assert.Equal(t, "issued", v)
	assert.False(t, mr.Exists(testPrefix+"code:x"))

	_, err = c.Take(ctx, "code:x")
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "k"))
	_, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestUnavailableWhenServerGone(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	require.NoError(t, c.Ping(ctx))

	mr.Close()

	_, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrUnavailable)
	require.ErrorIs(t, c.Set(ctx, "k", "v", time.Minute), cache.ErrUnavailable)
	_, err = c.Take(ctx, "k")
	require.ErrorIs(t, err, cache.ErrUnavailable)
	require.ErrorIs(t, c.Ping(ctx), cache.ErrUnavailable)
}

func TestDeadlineIsUnavailable(t *testing.T) {
	c, _ := newTestCache(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := c.Take(ctx, "code:x")
	require.ErrorIs(t, err, cache.ErrUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCancelledIsNotUnavailable(t *testing.T) {
	c, _ := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, cache.ErrUnavailable)
}

func TestNewFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := rediscache.New(context.Background(), "redis://"+mr.Addr()+"/0", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Set(context.Background(), "k", "v", 0))
	assert.True(t, mr.Exists(rediscache.DefaultKeyPrefix+"k"))
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := rediscache.New(context.Background(), "not-a-url", "")
	require.Error(t, err)
}

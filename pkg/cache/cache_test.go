package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recall/config"
)

func newRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	c := NewRedisCacheWithClient(client, "recall:", ttl)
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

// runCacheSuite exercises the behaviour every cache shares.
func runCacheSuite(t *testing.T, c Cache) {
	ctx := context.Background()

	// set stores content under the generation a Get just observed.
	set := func(t *testing.T, userID, message, content string) {
		t.Helper()
		_, gen, _, err := c.Get(ctx, userID, message)
		require.NoError(t, err)
		require.NoError(t, c.Set(ctx, userID, message, content, gen))
	}

	t.Run("miss", func(t *testing.T) {
		_, _, ok, err := c.Get(ctx, "u1", "unknown")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("hit", func(t *testing.T) {
		set(t, "u1", "hello", "### Rolling Summary\nx")
		got, _, ok, err := c.Get(ctx, "u1", "hello")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "### Rolling Summary\nx", got)
	})

	t.Run("empty content is cached", func(t *testing.T) {
		set(t, "u3", "", "")
		got, _, ok, err := c.Get(ctx, "u3", "")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, got)
	})

	t.Run("users are isolated", func(t *testing.T) {
		_, _, ok, err := c.Get(ctx, "u2", "hello")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalidate", func(t *testing.T) {
		set(t, "u2", "hello", "u2 context")
		require.NoError(t, c.Invalidate(ctx, "u1"))

		_, _, ok, err := c.Get(ctx, "u1", "hello")
		require.NoError(t, err)
		assert.False(t, ok, "u1 entry should be unreachable")

		got, _, ok, err := c.Get(ctx, "u2", "hello")
		require.NoError(t, err)
		assert.True(t, ok, "other users keep their entries")
		assert.Equal(t, "u2 context", got)

		set(t, "u1", "hello", "rebuilt")
		got, _, _, _ = c.Get(ctx, "u1", "hello")
		assert.Equal(t, "rebuilt", got)
	})

	t.Run("write for an invalidated generation is dropped", func(t *testing.T) {
		_, gen, ok, err := c.Get(ctx, "u4", "hello")
		require.NoError(t, err)
		require.False(t, ok)

		// The user's memory changes while the context is being built.
		require.NoError(t, c.Invalidate(ctx, "u4"))
		require.NoError(t, c.Set(ctx, "u4", "hello", "stale", gen))

		_, newGen, ok, err := c.Get(ctx, "u4", "hello")
		require.NoError(t, err)
		assert.False(t, ok, "stale build must not be served")
		assert.Greater(t, newGen, gen)
	})
}

func TestMemoryCache(t *testing.T) {
	runCacheSuite(t, NewMemoryCache(time.Minute))
}

func TestRedisCache(t *testing.T) {
	c, _ := newRedisCache(t, time.Minute)
	runCacheSuite(t, c)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(30 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "u1", "m", "content", 0))
	assert.Equal(t, 1, c.Len())
	time.Sleep(60 * time.Millisecond)
	_, _, ok, _ := c.Get(ctx, "u1", "m")
	assert.False(t, ok)
}

func TestRedisCache_Expiry(t *testing.T) {
	c, s := newRedisCache(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "u1", "m", "content", 0))
	s.FastForward(2 * time.Minute)
	_, _, ok, err := c.Get(ctx, "u1", "m")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_KeysArePrefixed(t *testing.T) {
	c, s := newRedisCache(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "u1", "m", "content", 0))
	require.NoError(t, c.Invalidate(ctx, "u1"))
	for _, k := range s.Keys() {
		assert.Contains(t, k, "recall:")
	}
	v, err := s.Get("recall:gen:u1")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestRedisCache_ServerDown(t *testing.T) {
	c, s := newRedisCache(t, time.Minute)
	s.Close()
	_, _, ok, err := c.Get(context.Background(), "u1", "m")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNew(t *testing.T) {
	c, err := New(config.CacheConfig{Type: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(config.CacheConfig{Type: "memory", TTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	s := miniredis.RunT(t)
	c, err = New(config.CacheConfig{Type: "redis", Redis: config.RedisConfig{Address: s.Addr(), KeyPrefix: "r:"}})
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, c)
	require.NoError(t, c.Close())

	_, err = New(config.CacheConfig{Type: "memcached"})
	assert.Error(t, err)
}

func TestEntryKey(t *testing.T) {
	a := entryKey("p:", "u1", 0, "hello")
	b := entryKey("p:", "u1", 1, "hello")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, entryKey("p:", "u1", 0, "hello"))
	assert.Contains(t, a, "p:ctx:u1:0:")
}

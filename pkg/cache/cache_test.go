package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, GenerateKey("intent", "a"), payload{ID: "a", Value: 1.5}, time.Minute))

	var got payload
	require.NoError(t, mc.Get(ctx, "intent:a", &got))
	assert.Equal(t, payload{ID: "a", Value: 1.5}, got)

	assert.ErrorIs(t, mc.Get(ctx, "intent:b", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", "v", time.Second))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
	ok, _ = mc.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCacheCleanupDropsExpired(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(5 * time.Millisecond))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "short", "v", time.Millisecond))
	require.NoError(t, mc.Set(ctx, "long", "v", time.Hour))

	assert.Eventually(t, func() bool { return mc.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { now = now.Add(time.Millisecond); return now }

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	require.NoError(t, mc.Set(ctx, "b", "2", 0))

	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.Equal(t, 2, mc.Len())
	assert.NoError(t, mc.Get(ctx, "a", &s))
	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "intent:1", "x", 0))
	require.NoError(t, mc.Set(ctx, "intent:2", "y", 0))
	require.NoError(t, mc.Set(ctx, "run:1", "z", 0))

	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("intent:")))
	assert.Equal(t, 1, mc.Len())
}

func TestLayeredCacheWithoutRedis(t *testing.T) {
	ctx := context.Background()
	lc := NewLayeredCache(nil)
	defer lc.Close()

	require.NoError(t, lc.Set(ctx, "k", payload{ID: "k"}, time.Minute))
	var got payload
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, "k", got.ID)

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestLayeredCacheReadsThroughSecondLevel(t *testing.T) {
	ctx := context.Background()
	l2 := NewMemoryCache()
	lc := NewLayeredCache(l2, WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()

	// written only to L2, as another instance would
	require.NoError(t, l2.Set(ctx, "k", payload{ID: "k", Value: 2}, time.Hour))

	var got payload
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, 2.0, got.Value)

	ok, err := lc.mem.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "L2 hit should populate L1")
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheGetSet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	value, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", value)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ephemeral", "v", 20*time.Millisecond))

	_, ok, _ := c.Get(ctx, "ephemeral")
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok, _ = c.Get(ctx, "ephemeral")
	assert.False(t, ok, "entry should expire after its TTL")
}

func TestMemoryCacheConcurrentSetSurvivesExpiredGet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	// A Get that observes an expired entry must not wipe out a value
	// written concurrently between its read and its cleanup.
	for i := 0; i < 200; i++ {
		require.NoError(t, c.Set(ctx, "k", "stale", time.Nanosecond))
		time.Sleep(time.Microsecond)

		done := make(chan struct{})
		go func() {
			c.Get(ctx, "k")
			close(done)
		}()
		require.NoError(t, c.Set(ctx, "k", "fresh", 0))
		<-done

		value, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok, "fresh value lost to expired-entry cleanup")
		require.Equal(t, "fresh", value)
	}
}

func TestMemoryCacheSets(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.SAdd(ctx, "subs", "a", "b"))
	require.NoError(t, c.SAdd(ctx, "subs", "b", "c"))

	members, err := c.SMembers(ctx, "subs")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, members)

	require.NoError(t, c.SRem(ctx, "subs", "b"))
	members, _ = c.SMembers(ctx, "subs")
	assert.ElementsMatch(t, []string{"a", "c"}, members)

	members, err = c.SMembers(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestMemoryCacheListFIFO(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.RPush(ctx, "q", "first"))
	require.NoError(t, c.RPush(ctx, "q", "second"))

	n, err := c.LLen(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	value, ok, err := c.LPop(ctx, "q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", value)

	value, ok, _ = c.LPop(ctx, "q")
	require.True(t, ok)
	assert.Equal(t, "second", value)

	_, ok, err = c.LPop(ctx, "q")
	require.NoError(t, err)
	assert.False(t, ok)
}

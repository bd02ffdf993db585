package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10, time.Minute)

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	value := []byte("hello")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'j'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_TTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10, time.Minute)

	require.NoError(t, c.Set(ctx, "short", []byte("x"), 20*time.Millisecond))
	require.NoError(t, c.Set(ctx, "long", []byte("y"), 0))

	time.Sleep(50 * time.Millisecond)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestMemoryClient_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(3, time.Minute)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, []byte(k), 0))
	}
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "d", []byte("d"), 0))

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss, "b was least recently used")
	for _, k := range []string{"a", "c", "d"} {
		_, err := c.Get(ctx, k)
		assert.NoError(t, err, k)
	}
	assert.Equal(t, 3, c.Len())
}

func TestMemoryClient_EvictionPrefersExpired(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(2, time.Minute)

	require.NoError(t, c.Set(ctx, "old", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "stale", []byte("2"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, c.Set(ctx, "new", []byte("3"), 0))

	_, err := c.Get(ctx, "old")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "new")
	assert.NoError(t, err)
}

func TestMemoryClient_OverwriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(2, time.Minute)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "a", []byte("2"), 0))

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))
	_, err = c.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestMemoryClient_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10, time.Minute)

	require.NoError(t, c.Set(ctx, CacheKey("conv", "1"), []byte("x"), 0))
	require.NoError(t, c.Set(ctx, CacheKey("conv", "2"), []byte("x"), 0))
	require.NoError(t, c.Set(ctx, CacheKey("other", "1"), []byte("x"), 0))

	require.NoError(t, c.DeleteByPrefix(ctx, "conv:"))

	_, err := c.Get(ctx, "conv:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "other:1")
	assert.NoError(t, err)
}

func TestMemoryClient_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(50, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i*100+j)%80)
				_ = c.Set(ctx, key, []byte(key), 0)
				_, _ = c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "conversation:abc", CacheKey("conversation", "abc"))
	assert.Equal(t, "single", CacheKey("single"))
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
)

func TestMemoryAdapter_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemoryAdapter(10)
	require.NoError(t, err)

	_, err = cache.Get(ctx, "missing")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, cache.Delete(ctx, "k"))
	_, err = cache.Get(ctx, "k")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
}

func TestMemoryAdapter_Expiry(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemoryAdapter(10)
	require.NoError(t, err)

	now := time.Now()
	cache.now = func() time.Time { return now }
	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Second))

	exists, err := cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	now = now.Add(2 * time.Second)
	_, err = cache.Get(ctx, "k")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
}

func TestMemoryAdapter_SetCopiesValue(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemoryAdapter(10)
	require.NoError(t, err)

	value := []byte("abc")
	require.NoError(t, cache.Set(ctx, "k", value, 0))
	value[0] = 'x'

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestMemoryAdapter_IncrAndTags(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemoryAdapter(10)
	require.NoError(t, err)

	n, err := cache.Incr(ctx, "version")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = cache.Incr(ctx, "version")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	raw, err := cache.Get(ctx, "version")
	require.NoError(t, err)
	assert.Equal(t, "2", string(raw))

	require.NoError(t, cache.Tag(ctx, "tag:p1", []string{"a", "b"}, time.Minute))
	require.NoError(t, cache.Tag(ctx, "tag:p1", []string{"b", "c"}, time.Minute))
	keys, err := cache.TaggedKeys(ctx, "tag:p1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)

	keys, err = cache.TaggedKeys(ctx, "tag:none")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryAdapter_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemoryAdapter(2)
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), 0))
	_, _ = cache.Get(ctx, "a")
	require.NoError(t, cache.Set(ctx, "c", []byte("3"), 0))

	_, err = cache.Get(ctx, "b")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
	assert.Equal(t, 2, cache.Len())
}

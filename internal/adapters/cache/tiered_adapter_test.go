package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
)

func newTiered(t *testing.T) (*TieredAdapter, *MemoryAdapter) {
	t.Helper()
	l2, err := NewMemoryAdapter(100)
	require.NoError(t, err)
	tiered, err := NewTieredAdapter(l2, 1<<20, time.Minute)
	require.NoError(t, err)
	t.Cleanup(tiered.Close)
	return tiered, l2
}

func TestTieredAdapter_WritesThrough(t *testing.T) {
	ctx := context.Background()
	tiered, l2 := newTiered(t)

	require.NoError(t, tiered.Set(ctx, "k", []byte("v"), time.Minute))
	tiered.Wait()

	fromL2, err := l2.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), fromL2)

	got, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestTieredAdapter_ReadsThroughFromL2(t *testing.T) {
	ctx := context.Background()
	tiered, l2 := newTiered(t)

	require.NoError(t, l2.Set(ctx, "k", []byte("shared"), time.Minute))
	got, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("shared"), got)
}

func TestTieredAdapter_DeleteClearsBothTiers(t *testing.T) {
	ctx := context.Background()
	tiered, l2 := newTiered(t)

	require.NoError(t, tiered.Set(ctx, "k", []byte("v"), time.Minute))
	tiered.Wait()
	require.NoError(t, tiered.Delete(ctx, "k"))

	_, err := tiered.Get(ctx, "k")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
	_, err = l2.Get(ctx, "k")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)
}

func TestTieredAdapter_IncrDropsLocalCounter(t *testing.T) {
	ctx := context.Background()
	tiered, _ := newTiered(t)

	_, err := tiered.Incr(ctx, "version")
	require.NoError(t, err)
	raw, err := tiered.Get(ctx, "version")
	require.NoError(t, err)
	assert.Equal(t, "1", string(raw))
	tiered.Wait()

	_, err = tiered.Incr(ctx, "version")
	require.NoError(t, err)
	raw, err = tiered.Get(ctx, "version")
	require.NoError(t, err)
	assert.Equal(t, "2", string(raw))
}

package lookup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SweepsExpiredEntries(t *testing.T) {
	cache := NewMemoryCache(10 * time.Minute).WithMaxEntries(100000)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	for i := range 50000 {
		require.NoError(t, cache.Set(ctx, "nova_poshta", 0, fmt.Sprintf("warehouses:c%d:", i), []string{"w"}))
	}
	require.Len(t, cache.buckets["nova_poshta"].entries, 50000)

	now = now.Add(70 * time.Minute)
	for i := range 10 {
		require.NoError(t, cache.Set(ctx, "nova_poshta", 0, fmt.Sprintf("cities:t%d", i), []string{"c"}))
	}

	assert.Len(t, cache.buckets["nova_poshta"].entries, 10)
}

func TestMemoryCache_CapsEntriesPerCarrier(t *testing.T) {
	cache := NewMemoryCache(0).WithMaxEntries(3)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	ctx := context.Background()

	for _, key := range []string{"k1", "k2", "k3", "k4", "k5"} {
		require.NoError(t, cache.Set(ctx, "nova_poshta", 0, key, key))
	}
	require.NoError(t, cache.Set(ctx, "ukrposhta", 0, "k1", "k1"))

	assert.Len(t, cache.buckets["nova_poshta"].entries, 3)
	assert.NotContains(t, cache.buckets["nova_poshta"].entries, "k1")
	assert.NotContains(t, cache.buckets["nova_poshta"].entries, "k2")
	assert.Contains(t, cache.buckets["nova_poshta"].entries, "k5")
	assert.Len(t, cache.buckets["ukrposhta"].entries, 1)
}

func TestMemoryCache_OverwriteAtCapacityKeepsOthers(t *testing.T) {
	cache := NewMemoryCache(0).WithMaxEntries(2)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", 0, "k1", 1))
	require.NoError(t, cache.Set(ctx, "a", 0, "k2", 2))
	require.NoError(t, cache.Set(ctx, "a", 0, "k2", 3))

	assert.Len(t, cache.buckets["a"].entries, 2)
}

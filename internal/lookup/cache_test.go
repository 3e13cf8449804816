package lookup_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/uadirectory/internal/directory"
	"github.com/tournevent/uadirectory/internal/lookup"
)

func TestMemoryCache_GetSet(t *testing.T) {
	cache := lookup.NewMemoryCache(time.Minute)
	ctx := context.Background()

	var got []lookup.CityOption
	ok, err := cache.Get(ctx, "nova_poshta", 0, "cities:", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	want := []lookup.CityOption{{ID: "K1", Text: "Київ"}}
	require.NoError(t, cache.Set(ctx, "nova_poshta", 0, "cities:", want))

	ok, err = cache.Get(ctx, "nova_poshta", 0, "cities:", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestMemoryCache_InvalidateIsPerCarrier(t *testing.T) {
	cache := lookup.NewMemoryCache(0)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "a", 0, "k", 1))
	require.NoError(t, cache.Set(ctx, "b", 0, "k", 2))

	require.NoError(t, cache.Invalidate(ctx, "a"))

	gen, err := cache.Generation(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	var n int
	ok, _ := cache.Get(ctx, "a", 0, "k", &n)
	assert.False(t, ok)
	ok, _ = cache.Get(ctx, "a", gen, "k", &n)
	assert.False(t, ok)
	ok, _ = cache.Get(ctx, "b", 0, "k", &n)
	assert.True(t, ok)
	assert.Equal(t, 2, n)
}

func TestMemoryCache_SetFromOlderGenerationIsDropped(t *testing.T) {
	cache := lookup.NewMemoryCache(time.Minute)
	ctx := context.Background()

	gen, err := cache.Generation(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, "a"))
	require.NoError(t, cache.Set(ctx, "a", gen, "k", "old"))

	current, err := cache.Generation(ctx, "a")
	require.NoError(t, err)
	var v string
	ok, err := cache.Get(ctx, "a", current, "k", &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	cache := lookup.NewMemoryCache(20 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "a", 0, "k", "v"))

	time.Sleep(40 * time.Millisecond)

	var v string
	ok, err := cache.Get(ctx, "a", 0, "k", &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	cache := lookup.NewRedisCacheWithClient(client, "test", time.Minute)
	ctx := context.Background()

	var v string
	_, err := cache.Generation(ctx, "a")
	assert.Error(t, err)
	_, err = cache.Get(ctx, "a", 0, "k", &v)
	assert.Error(t, err)
	assert.Error(t, cache.Invalidate(ctx, "a"))
}

func TestService_CacheFailureFallsBackToStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	store := new(MockStore)
	store.On("SearchCities", mock.Anything, "nova_poshta", "", 0).Return([]directory.CityResult{{Ref: "K1", Label: "Київ"}}, nil)
	svc := newService(store, lookup.NewRedisCacheWithClient(client, "test", time.Minute))

	got, err := svc.SearchCities(context.Background(), "nova_poshta", "")

	require.NoError(t, err)
	assert.Equal(t, []lookup.CityOption{{ID: "K1", Text: "Київ"}}, got)
}

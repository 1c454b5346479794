package fincase

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *ViewCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewViewCache(client, time.Minute)
}

func TestViewCacheFetchJSON(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "fincase", "view", "abc")
	require.NoError(t, err)

	loads := 0
	loader := func(context.Context) (any, error) {
		loads++
		return map[string]string{"status": "DRAFT"}, nil
	}

	var first map[string]string
	require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
	require.Equal(t, "DRAFT", first["status"])
	require.Equal(t, 1, loads)

	var second map[string]string
	require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, 1, loads)
}

func TestViewCacheBumpInvalidates(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "fincase", "view", "abc")
	require.NoError(t, err)

	require.NoError(t, cache.Bump(ctx))

	after, err := cache.BuildKey(ctx, "fincase", "view", "abc")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestViewCacheNilDegradesToLoader(t *testing.T) {
	var cache *ViewCache
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "fincase", "view", "abc")
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, cache.FetchJSON(ctx, key, &out, func(context.Context) (any, error) {
		return map[string]string{"status": "DRAFT"}, nil
	}))
	require.Equal(t, "DRAFT", out["status"])
	require.NoError(t, cache.Bump(ctx))
}

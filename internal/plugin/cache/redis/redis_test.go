package redis

import (
	"context"
	"testing"
	"time"

	"github.com/convsync/sync-service/internal/model"
	registrycache "github.com/convsync/sync-service/internal/registry/cache"
	"github.com/convsync/sync-service/internal/testutil/testredis"
	"github.com/stretchr/testify/require"
)

func startCache(t *testing.T) (context.Context, registrycache.SummaryCache) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	c, err := LoadFromURL(ctx, testredis.StartRedis(t))
	require.NoError(t, err)
	return ctx, c
}

func TestSummaryRoundTrip(t *testing.T) {
	ctx, cache := startCache(t)

	summaries := map[int64]model.BucketSummary{
		0: {Count: 3, Hash: "aaa"},
		7: {Count: 1, Hash: "bbb"},
	}
	require.NoError(t, cache.Set(ctx, "messages", "c1", summaries, time.Minute))

	got, err := cache.Get(ctx, "messages", "c1")
	require.NoError(t, err)
	require.Equal(t, summaries, got)
}

func TestGetMissingReturnsNil(t *testing.T) {
	ctx, cache := startCache(t)

	got, err := cache.Get(ctx, "messages", "unknown")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRemove(t *testing.T) {
	ctx, cache := startCache(t)

	require.NoError(t, cache.Set(ctx, "messages", "c1",
		map[int64]model.BucketSummary{0: {Count: 1, Hash: "x"}}, time.Minute))
	require.NoError(t, cache.Remove(ctx, "messages", "c1"))

	got, err := cache.Get(ctx, "messages", "c1")
	require.NoError(t, err)
	require.Nil(t, got)

	// Removing an absent key is not an error.
	require.NoError(t, cache.Remove(ctx, "messages", "c1"))
}

func TestTTLExpiry(t *testing.T) {
	ctx, cache := startCache(t)

	require.NoError(t, cache.Set(ctx, "messages", "c1",
		map[int64]model.BucketSummary{0: {Count: 1, Hash: "x"}}, 100*time.Millisecond))

	require.Eventually(t, func() bool {
		got, err := cache.Get(ctx, "messages", "c1")
		return err == nil && got == nil
	}, 5*time.Second, 100*time.Millisecond)
}

func TestPartitionsAreIsolated(t *testing.T) {
	ctx, cache := startCache(t)

	require.NoError(t, cache.Set(ctx, "messages", "c1",
		map[int64]model.BucketSummary{0: {Count: 1, Hash: "one"}}, time.Minute))
	require.NoError(t, cache.Set(ctx, "conversations", "c1",
		map[int64]model.BucketSummary{0: {Count: 2, Hash: "two"}}, time.Minute))

	got, err := cache.Get(ctx, "messages", "c1")
	require.NoError(t, err)
	require.Equal(t, "one", got[0].Hash)
}

package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/convsync/sync-service/internal/model"
	"github.com/convsync/sync-service/internal/plugin/store/memory"
	"github.com/stretchr/testify/require"
)

func seedMessages(t *testing.T, e *Engine, conv string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		_, err := e.Upsert(ctx, model.Messages, model.Document{
			"_id":     fmt.Sprintf("%s-m%04d", conv, i),
			"conv_id": conv,
			"content": fmt.Sprintf("msg %d", i),
		})
		require.NoError(t, err)
	}
}

func TestBucketOf(t *testing.T) {
	require.Equal(t, int64(0), BucketOf(1))
	require.Equal(t, int64(0), BucketOf(999))
	require.Equal(t, int64(1), BucketOf(1000))
	require.Equal(t, int64(1), BucketOf(1999))
	require.Equal(t, int64(2), BucketOf(2000))
}

func TestQuickfind_EmptyManifestReturnsEverything(t *testing.T) {
	e := newTestEngine(t)
	seedMessages(t, e, "c1", 10)

	res, err := e.Quickfind(context.Background(), model.Messages, "c1", nil, nil, 0)
	require.NoError(t, err)
	require.Equal(t, []int64{0}, res.ChangedBuckets)
	require.Len(t, res.Docs, 10)
	require.Equal(t, 10, res.Summaries[0].Count)
	require.NotEmpty(t, res.Summaries[0].Hash)
}

func TestQuickfind_IdempotentAfterBaselineAdopted(t *testing.T) {
	e := newTestEngine(t)
	seedMessages(t, e, "c1", 10)
	ctx := context.Background()

	first, err := e.Quickfind(ctx, model.Messages, "c1", nil, nil, 0)
	require.NoError(t, err)

	// Feeding the returned summaries back verbatim finds nothing to sync.
	second, err := e.Quickfind(ctx, model.Messages, "c1", first.Summaries, nil, 0)
	require.NoError(t, err)
	require.Empty(t, second.ChangedBuckets)
	require.Empty(t, second.Docs)
	require.Equal(t, first.Summaries, second.Summaries)
}

func TestQuickfind_OnlyChangedBucketsFetched(t *testing.T) {
	e := newTestEngine(t)
	seedMessages(t, e, "c1", 1500)
	ctx := context.Background()

	baseline, err := e.Quickfind(ctx, model.Messages, "c1", nil, nil, 0)
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1}, baseline.ChangedBuckets)

	// Client is current on bucket 0 but has stale knowledge of bucket 1.
	manifest := map[int64]model.BucketSummary{
		0: baseline.Summaries[0],
		1: {Count: 1, Hash: "stale"},
	}
	res, err := e.Quickfind(ctx, model.Messages, "c1", manifest, nil, 0)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, res.ChangedBuckets)
	require.Len(t, res.Docs, 501) // seqs 1000..1500
	for _, d := range res.Docs {
		require.GreaterOrEqual(t, d.ServerSeq(), int64(1000))
	}
}

func TestQuickfind_DocsReturnedInSeqOrder(t *testing.T) {
	e := newTestEngine(t)
	seedMessages(t, e, "c1", 20)

	res, err := e.Quickfind(context.Background(), model.Messages, "c1", nil, nil, 0)
	require.NoError(t, err)
	for i := 1; i < len(res.Docs); i++ {
		require.Less(t, res.Docs[i-1].ServerSeq(), res.Docs[i].ServerSeq())
	}
}

func TestQuickfind_EditChangesDigest(t *testing.T) {
	e := newTestEngine(t)
	seedMessages(t, e, "c1", 5)
	ctx := context.Background()

	baseline, err := e.Quickfind(ctx, model.Messages, "c1", nil, nil, 0)
	require.NoError(t, err)

	_, err = e.Upsert(ctx, model.Messages, model.Document{"_id": "c1-m0001", "conv_id": "c1", "content": "edited"})
	require.NoError(t, err)

	res, err := e.Quickfind(ctx, model.Messages, "c1", baseline.Summaries, nil, 0)
	require.NoError(t, err)
	require.Equal(t, []int64{0}, res.ChangedBuckets)
	require.Equal(t, baseline.Summaries[0].Count, res.Summaries[0].Count)
	require.NotEqual(t, baseline.Summaries[0].Hash, res.Summaries[0].Hash)
}

func TestQuickfind_TombstonesPropagate(t *testing.T) {
	e := newTestEngine(t)
	seedMessages(t, e, "c1", 5)
	ctx := context.Background()

	baseline, err := e.Quickfind(ctx, model.Messages, "c1", nil, nil, 0)
	require.NoError(t, err)

	_, err = e.Delete(ctx, model.Messages, "c1-m0002")
	require.NoError(t, err)

	res, err := e.Quickfind(ctx, model.Messages, "c1", baseline.Summaries, nil, 0)
	require.NoError(t, err)
	require.Equal(t, []int64{0}, res.ChangedBuckets)
	// The tombstone still counts and still ships to the client.
	require.Equal(t, 5, res.Summaries[0].Count)

	var tombstoned bool
	for _, d := range res.Docs {
		if d.ID() == "c1-m0002" {
			tombstoned = d.IsDeleted()
		}
	}
	require.True(t, tombstoned)
}

func TestQuickfind_ClientOnlyBucketReported(t *testing.T) {
	e := newTestEngine(t)
	seedMessages(t, e, "c1", 3)

	// The client claims a bucket the server has no rows for.
	manifest := map[int64]model.BucketSummary{
		5: {Count: 10, Hash: "phantom"},
	}
	res, err := e.Quickfind(context.Background(), model.Messages, "c1", manifest, nil, 0)
	require.NoError(t, err)
	require.Contains(t, res.ChangedBuckets, int64(5))
	require.Contains(t, res.ChangedBuckets, int64(0))
	require.NotContains(t, res.Summaries, int64(5))
}

func TestQuickfind_LimitDocsCapsPayload(t *testing.T) {
	e := newTestEngine(t)
	seedMessages(t, e, "c1", 50)

	res, err := e.Quickfind(context.Background(), model.Messages, "c1", nil, nil, 7)
	require.NoError(t, err)
	require.Len(t, res.Docs, 7)
	// The cap trims the payload, not the summaries.
	require.Equal(t, 50, res.Summaries[0].Count)
}

func TestQuickfind_FieldProjection(t *testing.T) {
	e := newTestEngine(t)
	seedMessages(t, e, "c1", 3)

	res, err := e.Quickfind(context.Background(), model.Messages, "c1", nil, []string{"content", "server_seq"}, 0)
	require.NoError(t, err)
	require.Len(t, res.Docs, 3)
	for _, d := range res.Docs {
		require.Contains(t, d, "content")
		require.Contains(t, d, "_id")
		require.NotContains(t, d, "conv_id")
	}
}

func TestQuickfind_PartitionsAreIsolated(t *testing.T) {
	e := newTestEngine(t)
	seedMessages(t, e, "c1", 4)
	seedMessages(t, e, "c2", 2)

	res, err := e.Quickfind(context.Background(), model.Messages, "c1", nil, nil, 0)
	require.NoError(t, err)
	require.Len(t, res.Docs, 4)
	require.Equal(t, 4, res.Summaries[0].Count)
}

func TestQuickfind_SummariesServedFromCache(t *testing.T) {
	cache := newRecordingCache()
	e := New(memory.New(), cache, time.Minute)
	ctx := context.Background()
	seedMessages(t, e, "c1", 4)

	first, err := e.Quickfind(ctx, model.Messages, "c1", nil, nil, 0)
	require.NoError(t, err)

	// Poison the cached copy to prove the second call reads the cache.
	poisoned := map[int64]model.BucketSummary{0: {Count: 99, Hash: "cached"}}
	require.NoError(t, cache.Set(ctx, model.Messages.Name, "c1", poisoned, time.Minute))

	second, err := e.Quickfind(ctx, model.Messages, "c1", first.Summaries, nil, 0)
	require.NoError(t, err)
	require.Equal(t, 99, second.Summaries[0].Count)
}

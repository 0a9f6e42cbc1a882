package sync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/convsync/sync-service/internal/model"
	registrystore "github.com/convsync/sync-service/internal/registry/store"
	"github.com/convsync/sync-service/internal/telemetry"
)

// ShardSize is the number of sequence slots per quickfind bucket.
const ShardSize = 1000

// BucketOf returns the bucket index a sequence number falls into.
func BucketOf(serverSeq int64) int64 { return serverSeq / ShardSize }

// QuickfindResult is the server side of one reconciliation round trip.
type QuickfindResult struct {
	ChangedBuckets []int64
	Summaries      map[int64]model.BucketSummary
	Docs           []model.Document
}

// Quickfind compares the client's bucket manifest against the current
// server-side bucket digests for one partition and returns the changed
// bucket indices, the full current summary map (the client's new baseline),
// and the documents of the changed buckets in ascending server_seq order,
// capped at limitDocs. Tombstones participate in both digests and payloads
// so deletions propagate.
func (e *Engine) Quickfind(ctx context.Context, coll model.Collection, parent string, client map[int64]model.BucketSummary, fields []string, limitDocs int) (*QuickfindResult, error) {
	if limitDocs <= 0 {
		limitDocs = coll.DefaultLimitDocs
	}

	summaries, err := e.summaries(ctx, coll, parent)
	if err != nil {
		return nil, err
	}

	changedSet := map[int64]bool{}
	for b, s := range summaries {
		cli, ok := client[b]
		if !ok || cli != s {
			changedSet[b] = true
		}
	}
	// Buckets the client knows about but the server no longer reports.
	for b := range client {
		if _, ok := summaries[b]; !ok {
			changedSet[b] = true
		}
	}

	changed := make([]int64, 0, len(changedSet))
	for b := range changedSet {
		changed = append(changed, b)
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	telemetry.ObserveQuickfind(len(changed))

	result := &QuickfindResult{
		ChangedBuckets: changed,
		Summaries:      summaries,
		Docs:           []model.Document{},
	}
	if len(changed) == 0 {
		// The common "nothing to sync" case: summaries only, no fetch.
		return result, nil
	}

	projection := fieldsProjection(fields, coll.DefaultProjection)
	for _, b := range changed {
		remaining := int64(limitDocs - len(result.Docs))
		if remaining <= 0 {
			break
		}
		docs, err := e.store.Find(ctx, coll.Name, registrystore.Query{
			Selector: map[string]any{
				coll.ParentField:     parent,
				model.FieldServerSeq: map[string]any{"$gte": b * ShardSize, "$lt": (b + 1) * ShardSize},
			},
			Projection: projection,
			Sort:       []registrystore.SortField{{Field: model.FieldServerSeq}},
			Limit:      remaining,
		})
		if err != nil {
			return nil, err
		}
		result.Docs = append(result.Docs, docs...)
	}
	return result, nil
}

// summaries returns the current {bucket -> {count, hash}} map for the
// partition, from the summary cache when possible.
func (e *Engine) summaries(ctx context.Context, coll model.Collection, parent string) (map[int64]model.BucketSummary, error) {
	cacheable := e.cache != nil && e.cache.Available()
	if cacheable {
		cached, err := e.cache.Get(ctx, coll.Name, parent)
		if err != nil {
			log.Warn("Summary cache read failed", "collection", coll.Name, "partition", parent, "err", err)
		} else if cached != nil {
			telemetry.CountSummaryCache(true)
			return cached, nil
		}
		telemetry.CountSummaryCache(false)
	}

	// Tombstones are included: the digest must change when a row is
	// soft-deleted.
	rows, err := e.store.Find(ctx, coll.Name, registrystore.Query{
		Selector:   map[string]any{coll.ParentField: parent},
		Projection: map[string]int{model.FieldID: 1, model.FieldRev: 1, model.FieldDeleted: 1, model.FieldServerSeq: 1},
		Sort:       []registrystore.SortField{{Field: model.FieldServerSeq}},
	})
	if err != nil {
		return nil, err
	}

	buckets := map[int64][]model.Document{}
	for _, row := range rows {
		b := BucketOf(row.ServerSeq())
		buckets[b] = append(buckets[b], row)
	}

	summaries := make(map[int64]model.BucketSummary, len(buckets))
	for b, docs := range buckets {
		summaries[b] = model.BucketSummary{Count: len(docs), Hash: digest(docs)}
	}

	if cacheable {
		ttl := e.summaryTTL
		if err := e.cache.Set(ctx, coll.Name, parent, summaries, ttl); err != nil {
			log.Warn("Summary cache write failed", "collection", coll.Name, "partition", parent, "err", err)
		}
	}
	return summaries, nil
}

// digest hashes the bucket's rows in ascending server_seq order. server_seq
// is unique within a partition and the rows arrive sorted on it, so the
// digest is deterministic across calls and bit-compatible with existing
// client manifests.
func digest(docs []model.Document) string {
	h := md5.New()
	for _, d := range docs {
		deleted := 0
		if d.IsDeleted() {
			deleted = 1
		}
		fmt.Fprintf(h, "%s:%d:%d;", d.ID(), d.Rev(), deleted)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func fieldsProjection(fields, fallback []string) map[string]int {
	names := fields
	if len(names) == 0 {
		names = fallback
	}
	if len(names) == 0 {
		return nil
	}
	proj := make(map[string]int, len(names))
	for _, f := range names {
		proj[f] = 1
	}
	return proj
}

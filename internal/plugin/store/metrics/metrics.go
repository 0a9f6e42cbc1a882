package metrics

import (
	"context"
	"time"

	"github.com/convsync/sync-service/internal/model"
	"github.com/convsync/sync-service/internal/registry/store"
	"github.com/convsync/sync-service/internal/telemetry"
)

// Wrap returns a DocumentStore that records StoreLatency for every operation.
func Wrap(inner store.DocumentStore) store.DocumentStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.DocumentStore
}

func observe(op string, start time.Time) {
	if telemetry.StoreLatency != nil {
		telemetry.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *metricsStore) FindOne(ctx context.Context, collection, id string) (model.Document, error) {
	defer observe("find_one", time.Now())
	return m.inner.FindOne(ctx, collection, id)
}

func (m *metricsStore) Upsert(ctx context.Context, collection, id string, set, setOnInsert model.Fields, unset []string) (model.Document, error) {
	defer observe("upsert", time.Now())
	return m.inner.Upsert(ctx, collection, id, set, setOnInsert, unset)
}

func (m *metricsStore) Find(ctx context.Context, collection string, q store.Query) ([]model.Document, error) {
	defer observe("find", time.Now())
	return m.inner.Find(ctx, collection, q)
}

func (m *metricsStore) SoftDelete(ctx context.Context, collection, id string) (model.Document, error) {
	defer observe("soft_delete", time.Now())
	return m.inner.SoftDelete(ctx, collection, id)
}

func (m *metricsStore) NextSeq(ctx context.Context, partitionKey string) (int64, error) {
	defer observe("next_seq", time.Now())
	return m.inner.NextSeq(ctx, partitionKey)
}

func (m *metricsStore) Close(ctx context.Context) error {
	return m.inner.Close(ctx)
}

var _ store.DocumentStore = (*metricsStore)(nil)

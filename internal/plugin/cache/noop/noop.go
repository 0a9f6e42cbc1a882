package noop

import (
	"context"
	"time"

	"github.com/convsync/sync-service/internal/model"
	registrycache "github.com/convsync/sync-service/internal/registry/cache"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registrycache.SummaryCache, error) {
			return &noopSummaryCache{}, nil
		},
	})
}

type noopSummaryCache struct{}

func (n *noopSummaryCache) Available() bool { return false }
func (n *noopSummaryCache) Get(_ context.Context, _, _ string) (map[int64]model.BucketSummary, error) {
	return nil, nil
}
func (n *noopSummaryCache) Set(_ context.Context, _, _ string, _ map[int64]model.BucketSummary, _ time.Duration) error {
	return nil
}
func (n *noopSummaryCache) Remove(_ context.Context, _, _ string) error { return nil }

var _ registrycache.SummaryCache = (*noopSummaryCache)(nil)

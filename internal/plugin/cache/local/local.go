// Package local provides an in-process summary cache for single-node
// deployments, where cross-node invalidation is not a concern.
package local

import (
	"context"
	"fmt"
	"time"

	"github.com/convsync/sync-service/internal/model"
	registrycache "github.com/convsync/sync-service/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "local",
		Loader: func(ctx context.Context) (registrycache.SummaryCache, error) {
			return New()
		},
	})
}

type localSummaryCache struct {
	cache *ristretto.Cache[string, map[int64]model.BucketSummary]
}

// New creates a ristretto-backed summary cache.
func New() (registrycache.SummaryCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, map[int64]model.BucketSummary]{
		NumCounters: 100_000,
		MaxCost:     1_000_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	return &localSummaryCache{cache: cache}, nil
}

func (c *localSummaryCache) Available() bool { return true }

func (c *localSummaryCache) Get(_ context.Context, collection, partition string) (map[int64]model.BucketSummary, error) {
	summaries, ok := c.cache.Get(registrycache.Key(collection, partition))
	if !ok {
		return nil, nil
	}
	return summaries, nil
}

func (c *localSummaryCache) Set(_ context.Context, collection, partition string, summaries map[int64]model.BucketSummary, ttl time.Duration) error {
	cost := int64(len(summaries)) + 1
	c.cache.SetWithTTL(registrycache.Key(collection, partition), summaries, cost, ttl)
	return nil
}

func (c *localSummaryCache) Remove(_ context.Context, collection, partition string) error {
	// Flush buffered sets first so a pending write for this key cannot
	// land after the delete.
	c.cache.Wait()
	c.cache.Del(registrycache.Key(collection, partition))
	return nil
}

var _ registrycache.SummaryCache = (*localSummaryCache)(nil)

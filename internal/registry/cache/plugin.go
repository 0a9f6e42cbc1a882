package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/convsync/sync-service/internal/model"
)

// SummaryCache caches per-partition quickfind bucket summaries so the
// common "nothing to sync" round trip does not rescan the collection. The
// engine invalidates a partition on every accepted write to it; the TTL is a
// backstop against missed invalidations.
type SummaryCache interface {
	Available() bool
	Get(ctx context.Context, collection, partition string) (map[int64]model.BucketSummary, error)
	Set(ctx context.Context, collection, partition string, summaries map[int64]model.BucketSummary, ttl time.Duration) error
	Remove(ctx context.Context, collection, partition string) error
}

// Loader creates a cache from config found in the context.
type Loader func(ctx context.Context) (SummaryCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}

// Key is the cache key for one collection partition.
func Key(collection, partition string) string {
	return fmt.Sprintf("qf:%s:%s", collection, partition)
}

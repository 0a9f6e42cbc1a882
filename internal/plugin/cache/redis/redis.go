package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/convsync/sync-service/internal/config"
	"github.com/convsync/sync-service/internal/model"
	registrycache "github.com/convsync/sync-service/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.SummaryCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: SYNC_SERVICE_REDIS_URL is required")
	}
	return LoadFromURL(ctx, cfg.RedisURL)
}

// LoadFromURL creates a SummaryCache from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string) (registrycache.SummaryCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	return &redisSummaryCache{client: client}, nil
}

type redisSummaryCache struct {
	client *goredis.Client
}

func (c *redisSummaryCache) Available() bool { return true }

func (c *redisSummaryCache) Get(ctx context.Context, collection, partition string) (map[int64]model.BucketSummary, error) {
	data, err := c.client.Get(ctx, registrycache.Key(collection, partition)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// JSON object keys are strings; decode back to bucket indices.
	var raw map[string]model.BucketSummary
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	summaries := make(map[int64]model.BucketSummary, len(raw))
	for k, v := range raw {
		b, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis cache: bad bucket key %q: %w", k, err)
		}
		summaries[b] = v
	}
	return summaries, nil
}

func (c *redisSummaryCache) Set(ctx context.Context, collection, partition string, summaries map[int64]model.BucketSummary, ttl time.Duration) error {
	data, err := json.Marshal(summaries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, registrycache.Key(collection, partition), data, ttl).Err()
}

func (c *redisSummaryCache) Remove(ctx context.Context, collection, partition string) error {
	return c.client.Del(ctx, registrycache.Key(collection, partition)).Err()
}

var _ registrycache.SummaryCache = (*redisSummaryCache)(nil)

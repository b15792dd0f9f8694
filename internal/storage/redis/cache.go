// Package redis caches encoded dashboard responses in Redis.
//
// Keys embed a generation counter. Invalidate bumps the counter, so every
// entry written before a mutation becomes unreachable at once and expires
// on its own TTL.
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Cache is a generation-keyed response cache.
type Cache struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration

	lookups metric.Int64Counter
}

// New creates a Cache storing entries under prefix for ttl.
func New(rdb redis.Cmdable, prefix string, ttl time.Duration, mp metric.MeterProvider) (*Cache, error) {
	lookups, err := mp.Meter("github.com/xenking/orders-dashboard/internal/storage/redis").
		Int64Counter("dashboard.cache.lookups",
			metric.WithDescription("Dashboard cache lookups by result"),
		)
	if err != nil {
		return nil, errors.Wrap(err, "create lookups counter")
	}
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl, lookups: lookups}, nil
}

func (c *Cache) generationKey() string {
	return c.prefix + "generation"
}

func (c *Cache) entryKey(gen int64, name string) string {
	return c.prefix + strconv.FormatInt(gen, 10) + ":" + name
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Fetch returns the entry stored under name, calling fill on a miss and
// storing its result. Redis faults are logged and fill is used directly;
// only fill errors are returned.
func (c *Cache) Fetch(ctx context.Context, name string, fill func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	lg := zctx.From(ctx).With(zap.String("cache_key", name))

	gen, err := c.generation(ctx)
	if err != nil {
		lg.Warn("Cache generation lookup failed", zap.Error(err))
		c.record(ctx, "error")
		return fill(ctx)
	}

	key := c.entryKey(gen, name)
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		c.record(ctx, "hit")
		return data, nil
	case !errors.Is(err, redis.Nil):
		lg.Warn("Cache read failed", zap.Error(err))
		c.record(ctx, "error")
		return fill(ctx)
	}

	c.record(ctx, "miss")
	data, err = fill(ctx)
	if err != nil {
		return nil, err
	}
	// Written under the generation observed before fill ran, so a
	// concurrent Invalidate orphans this entry.
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		lg.Warn("Cache write failed", zap.Error(err))
	}
	return data, nil
}

// Invalidate makes every stored entry unreachable.
func (c *Cache) Invalidate(ctx context.Context) {
	if err := c.rdb.Incr(ctx, c.generationKey()).Err(); err != nil {
		zctx.From(ctx).Warn("Cache invalidation failed", zap.Error(err))
	}
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Cache) record(ctx context.Context, result string) {
	c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Connect parses a redis:// URL and returns a client.
func Connect(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return redis.NewClient(opts), nil
}

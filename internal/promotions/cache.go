package promotions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/EZERROUK/x-panel-sub002/internal/promotions/engine"
)

const (
	catalogVersionKey = "promotions:catalog:version"
	catalogKeyPrefix  = "promotions:catalog:active"
	bumpChannel       = "promotions.bump"
)

var errCacheUnavailable = errors.New("promotions cache unavailable")

// CachedCatalog serves the active catalog from Redis. The whole active set is cached under
// a versioned key; window and code filters are applied in memory on every read so the
// cached entry never depends on the evaluation instant. Reads fall back to source while
// Redis is unreachable.
type CachedCatalog struct {
	client *redis.Client
	source engine.Catalog
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedCatalog wraps source. A nil client disables caching.
func NewCachedCatalog(client *redis.Client, source engine.Catalog, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		client: client,
		source: source,
		ttl:    ttl,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithLogger sets the logger used for cache degradation warnings.
func (c *CachedCatalog) WithLogger(logger *slog.Logger) *CachedCatalog {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// ListActivePromotions implements engine.Catalog.
func (c *CachedCatalog) ListActivePromotions(ctx context.Context, filter engine.Filter) ([]engine.Promotion, error) {
	if c.client == nil {
		return c.source.ListActivePromotions(ctx, filter)
	}
	all, err := c.loadAll(ctx)
	if errors.Is(err, errCacheUnavailable) && ctx.Err() == nil {
		c.logger.Warn("promotions cache unavailable, reading source", slog.Any("error", err))
		return c.source.ListActivePromotions(ctx, filter)
	}
	if err != nil {
		return nil, err
	}
	out := make([]engine.Promotion, 0, len(all))
	for _, p := range all {
		if !filter.At.IsZero() && !p.ValidAt(filter.At) {
			continue
		}
		if filter.Code != "" {
			if _, ok := p.MatchCode(filter.Code); !ok {
				continue
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *CachedCatalog) loadAll(ctx context.Context) ([]engine.Promotion, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: version: %w", errCacheUnavailable, err)
	}
	key := catalogKeyPrefix + ":" + strconv.FormatInt(ver, 10)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached []engine.Promotion
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: get: %w", errCacheUnavailable, err)
	}

	// The shared load outlives the caller that started it.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		items, err := c.source.ListActivePromotions(loadCtx, engine.Filter{})
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(items)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(loadCtx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("store promotions cache", slog.String("key", key), slog.Any("error", err))
		}
		return items, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("promotions cache: load: %w", res.Err)
		}
		items, _ := res.Val.([]engine.Promotion)
		return items, nil
	}
}

// Version returns the current catalog version, initialising it when missing.
func (c *CachedCatalog) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, catalogVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, catalogVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, catalogVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates cached catalogs by incrementing the version and publishing it.
func (c *CachedCatalog) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, catalogVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

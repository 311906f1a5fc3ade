package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-offline-sync/internal/catalog/dto"
	"github.com/fekuna/omnipos-offline-sync/internal/events"
	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix = "products:list:"
	ttl       = 5 * time.Minute
)

type RedisListCache struct {
	client redis.UniversalClient
	logger logger.ZapLogger
}

func NewRedisListCache(client redis.UniversalClient, log logger.ZapLogger) *RedisListCache {
	return &RedisListCache{client: client, logger: log}
}

type cachedPage struct {
	Products []model.Product
	Count    int
}

func (c *RedisListCache) Get(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, bool) {
	key, err := cacheKey(filters)
	if err != nil {
		return nil, 0, false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("product list cache read failed", zap.Error(err))
		}
		return nil, 0, false
	}
	var page cachedPage
	if err := json.Unmarshal([]byte(val), &page); err != nil {
		return nil, 0, false
	}
	return page.Products, page.Count, true
}

func (c *RedisListCache) Set(ctx context.Context, filters *dto.ProductFilters, products []model.Product, count int) {
	key, err := cacheKey(filters)
	if err != nil {
		return
	}
	data, err := json.Marshal(cachedPage{Products: products, Count: count})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("product list cache write failed", zap.Error(err))
	}
}

func (c *RedisListCache) Invalidate(ctx context.Context) {
	keys, err := c.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		c.logger.Warn("product list cache invalidation failed", zap.Error(err))
		return
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
	}
}

// Watch drops cached pages whenever a stock adjustment changes a quantity.
// It returns when the subscription closes or ctx ends.
func (c *RedisListCache) Watch(ctx context.Context, sub <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if ev.EventType() == events.TypeStockAdjusted {
				c.Invalidate(ctx)
			}
		}
	}
}

func cacheKey(filters *dto.ProductFilters) (string, error) {
	data, err := json.Marshal(filters)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%x", keyPrefix, md5.Sum(data)), nil
}

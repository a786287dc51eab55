// Package cache holds the redis read-through cache for catalog items. Items
// are referenced read-only by orders, so a short TTL is safe; orders and
// gateway state are never cached.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"shopcheckout/internal/models"
)

func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

type ItemCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewItemCache(rdb *redis.Client, ttl time.Duration) *ItemCache {
	return &ItemCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached item, or (nil, nil) on a miss. Redis errors other
// than a miss are returned so callers can decide whether to log and fall
// through to the store.
func (c *ItemCache) Get(ctx context.Context, itemID string) (*models.Item, error) {
	data, err := c.rdb.Get(ctx, itemKey(itemID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var item models.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *ItemCache) Set(ctx context.Context, item *models.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, itemKey(item.ItemID), data, c.ttl).Err()
}

func (c *ItemCache) Delete(ctx context.Context, itemID string) error {
	return c.rdb.Del(ctx, itemKey(itemID)).Err()
}

func itemKey(itemID string) string {
	return "item:" + itemID
}

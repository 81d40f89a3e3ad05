package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nakshjewels/cart-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	maxJitter      = 5 * time.Minute
	maxSetAttempts = 3

	// fenceTTL is how long an invalidated entry refuses fills.
	fenceTTL = 30 * time.Second
)

var tombstone = []byte("-")

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

// RedisCache holds stored cart aggregates, never priced views: totals are
// always recomputed from the live catalog.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	if bytes.Equal(data, tombstone) {
		return nil, ErrCacheMiss
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}

	return &cart, nil
}

func (r *RedisCache) SetIfNewer(ctx context.Context, cart *domain.Cart) (bool, error) {
	data, err := json.Marshal(cart)
	if err != nil {
		return false, fmt.Errorf("marshal cart failed: %w", err)
	}

	key := cacheKey(cart.SessionID)
	for attempt := 0; attempt < maxSetAttempts; attempt++ {
		written := false
		err = r.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && !newerThan(cart.Version, current) {
				return nil
			}

			// spread expiry so carts cached together do not all miss together
			ttl := r.baseTTL + time.Duration(rand.Int64N(int64(maxJitter)))
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, ttl)
				return nil
			})
			if err == nil {
				written = true
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			// the entry changed under us; look again
			continue
		}
		if err != nil {
			return false, fmt.Errorf("redis set failed: %w", err)
		}
		return written, nil
	}
	return false, fmt.Errorf("redis set failed: %w", err)
}

func (r *RedisCache) Invalidate(ctx context.Context, sessionID string) error {
	if err := r.client.Set(ctx, cacheKey(sessionID), tombstone, fenceTTL).Err(); err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

// newerThan reports whether version should replace the cached entry.
// Unreadable entries are replaced.
func newerThan(version int64, cached []byte) bool {
	if bytes.Equal(cached, tombstone) {
		return false
	}
	var head struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(cached, &head); err != nil {
		return true
	}
	return version > head.Version
}

func cacheKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}

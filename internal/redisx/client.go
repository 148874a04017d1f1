package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// IdempotencyCache remembers which order a (user, key) pair produced.
type IdempotencyCache struct {
	RDB redis.Cmdable
	TTL time.Duration
}

func (c *IdempotencyCache) Lookup(ctx context.Context, userID, key string) (string, error) {
	id, err := c.RDB.Get(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

func (c *IdempotencyCache) Remember(ctx context.Context, userID, key, orderID string) error {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = TTLIdempotency
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key), orderID, ttl).Err()
}

// Dedup marks processed event parts so redelivered messages are skipped.
type Dedup struct {
	RDB     redis.Cmdable
	Service string
}

func (d *Dedup) Seen(ctx context.Context, id string) (bool, error) {
	return Exists(ctx, d.RDB, fmt.Sprintf(KeyDedup, d.Service, id))
}

func (d *Dedup) Mark(ctx context.Context, id string) error {
	return d.RDB.Set(ctx, fmt.Sprintf(KeyDedup, d.Service, id), 1, TTLDedup).Err()
}

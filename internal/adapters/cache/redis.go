package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 2 * time.Second

// Claims are short-lived so a crashed claimant cannot block a key for long.
const redisClaimTTL = 10 * time.Second

type redisEnvelope[T any] struct {
	Data  T    `json:"data"`
	Valid bool `json:"valid"`
}

type redisCache[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (c *redisCache[T]) key(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

func (c *redisCache[T]) getOrClaim(key string) hitResult[T] {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	// On redis errors we fail open and claim the key, so callers compute a
	// fresh value instead of spinning in wait().
	failOpen := hitResult[T]{claimed: true}

	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		claim, err := json.Marshal(redisEnvelope[T]{Valid: false})
		if err != nil {
			return failOpen
		}

		claimed, err := c.client.SetNX(ctx, c.key(key), claim, redisClaimTTL).Result()
		if err != nil || claimed {
			return failOpen
		}
		// Another caller claimed the key first
		return hitResult[T]{}
	}
	if err != nil {
		return failOpen
	}

	var envelope redisEnvelope[T]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return failOpen
	}

	return hitResult[T]{
		data:  envelope.Data,
		valid: envelope.Valid,
	}
}

func (c *redisCache[T]) set(key string, data T) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := json.Marshal(redisEnvelope[T]{Data: data, Valid: true})
	if err != nil {
		return
	}

	c.client.Set(ctx, c.key(key), raw, c.ttl)
}

func (c *redisCache[T]) delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	c.client.Del(ctx, c.key(key))
}

func (c *redisCache[T]) wait() {
	time.Sleep(50 * time.Millisecond)
}

// NewRedisCache returns a redis-backed cache with native key expiry. Values
// are stored as JSON, so T must round-trip through encoding/json.
func NewRedisCache[T any](ctx context.Context, addr string, prefix string, ttl time.Duration) (Cache[T], error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisCache[T]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultSlotPrefix = "bookzone:storefront:slot"
	redisOpTimeout    = 3 * time.Second
)

// RedisBackend keeps slot tokens in Redis with a sliding TTL.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBackend builds a Redis-backed slot store on a shared client.
func NewRedisBackend(client *redis.Client, prefix string, ttl time.Duration) (*RedisBackend, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		return nil, errors.New("slot ttl must be positive")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultSlotPrefix
	}
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}, nil
}

func (b *RedisBackend) key(slot string) string {
	return b.prefix + ":" + slot
}

// Get returns the token stored for slot and refreshes its TTL.
func (b *RedisBackend) Get(ctx context.Context, slot string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	key := b.key(slot)
	pipe := b.client.TxPipeline()
	get := pipe.Get(ctx, key)
	pipe.Expire(ctx, key, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return "", false, err
	}
	val, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set writes the token with TTL.
func (b *RedisBackend) Set(ctx context.Context, slot, token string) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return b.client.Set(ctx, b.key(slot), token, b.ttl).Err()
}

// Delete removes the slot.
func (b *RedisBackend) Delete(ctx context.Context, slot string) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := b.client.Del(ctx, b.key(slot)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// defaultRedisPrefix namespaces every key this app writes.
const defaultRedisPrefix = "opendreams:"

// RedisBackend stores values in Redis. Suitable when several app shells on
// one host share a signed-in device identity.
type RedisBackend struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithRedisPrefix sets the key prefix. Default: "opendreams:".
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *RedisBackend) {
		r.prefix = prefix
	}
}

// NewRedisBackend wraps an existing client. The client stays owned by the
// caller.
func NewRedisBackend(client *redis.Client, opts ...RedisOption) *RedisBackend {
	r := &RedisBackend{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisBackend) key(key string) string {
	return r.prefix + key
}

// Get reads key from Redis.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s from Redis: %w", key, err)
	}
	return data, nil
}

// Set writes key without expiry; the identity service owns session lifetime.
func (r *RedisBackend) Set(ctx context.Context, key string, data []byte) error {
	if r.closed.Load() {
		return ErrClosed
	}

	if err := r.client.Set(ctx, r.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("writing %s to Redis: %w", key, err)
	}
	return nil
}

// Delete removes key from Redis.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if r.closed.Load() {
		return ErrClosed
	}

	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("deleting %s from Redis: %w", key, err)
	}
	return nil
}

// Close marks the backend closed. The Redis client is not closed.
func (r *RedisBackend) Close() error {
	r.closed.Store(true)
	return nil
}

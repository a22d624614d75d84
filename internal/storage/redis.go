// ABOUTME: Redis storage implementation for geofence collections
// ABOUTME: Lets several engine processes share zones through one server

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTimeout = 3 * time.Second

// RedisKV implements KV on a Redis server. Keys are namespaced by prefix.
type RedisKV struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

var _ KV = (*RedisKV)(nil)

// NewRedisKV connects to addr and verifies the connection with PING.
func NewRedisKV(addr, password string, db int, prefix string) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultRedisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisKV{client: client, prefix: prefix, timeout: defaultRedisTimeout}, nil
}

func (r *RedisKV) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (r *RedisKV) Set(key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores each value under "{prefix}:{namespace}:{key}" and keeps a
// per-namespace set of keys so listing never needs SCAN.
type RedisKV struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisKV wraps an existing client. The caller keeps ownership of the
// client unless it calls Close on the returned store.
func NewRedisKV(client redis.UniversalClient, prefix string) *RedisKV {
	if prefix == "" {
		prefix = "simjudge"
	}
	return &RedisKV{client: client, prefix: prefix}
}

// OpenRedisKV connects to addr and verifies the connection with PING.
func OpenRedisKV(ctx context.Context, addr, password string, db int, prefix string) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedisKV(client, prefix), nil
}

func (r *RedisKV) valueKey(namespace, key string) string {
	return r.prefix + ":" + namespace + ":" + key
}

func (r *RedisKV) indexKey(namespace string) string {
	return r.prefix + ":" + namespace + ":__keys"
}

// Put implements KV. The value and its index entry are written in one
// MULTI/EXEC transaction.
func (r *RedisKV) Put(ctx context.Context, namespace, key string, value []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.valueKey(namespace, key), value, 0)
		pipe.SAdd(ctx, r.indexKey(namespace), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Get implements KV.
func (r *RedisKV) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.valueKey(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s/%s: %w", namespace, key, err)
	}
	return v, nil
}

// Delete implements KV.
func (r *RedisKV) Delete(ctx context.Context, namespace, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.valueKey(namespace, key))
		pipe.SRem(ctx, r.indexKey(namespace), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Keys implements KV.
func (r *RedisKV) Keys(ctx context.Context, namespace string) ([]string, error) {
	keys, err := r.client.SMembers(ctx, r.indexKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys %s: %w", namespace, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements KV.
func (r *RedisKV) Close() error { return r.client.Close() }

// Client exposes the underlying client so other components can share the
// connection pool.
func (r *RedisKV) Client() redis.UniversalClient { return r.client }

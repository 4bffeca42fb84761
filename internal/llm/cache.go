package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-simjudge/internal/domain"
)

// Cache stores completions keyed by request fingerprint.
type Cache interface {
	// Get returns the cached completion and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache is a Cache backed by plain Redis string keys.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache returns a cache storing entries under "{prefix}:llm:{key}".
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string { return c.prefix + ":llm:" + k }

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	return v, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// CacheKey fingerprints a request. Every ModelConfig field participates so a
// different temperature never reuses a cached answer.
func CacheKey(prompt string, mc domain.ModelConfig) string {
	h := sha256.New()
	h.Write([]byte(mc.ModelName))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(mc.MaxTokens)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(mc.Temperature, 'g', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}

// WithCache serves repeated identical requests from cache. Cache failures
// are logged and never fail the call. Errors are not cached.
func WithCache(cache Cache, ttl time.Duration) Middleware {
	if cache == nil {
		return nil
	}
	logger := slog.Default().With("component", "llm_cache")

	return func(next Provider) Provider {
		return ProviderFunc(func(ctx context.Context, prompt string, mc domain.ModelConfig) (string, error) {
			key := CacheKey(prompt, mc)

			if v, ok, err := cache.Get(ctx, key); err != nil {
				logger.WarnContext(ctx, "cache lookup failed", "error", err)
			} else if ok {
				logger.DebugContext(ctx, "cache hit", "model", mc.ModelName)
				return v, nil
			}

			text, err := next.Generate(ctx, prompt, mc)
			if err != nil {
				return "", err
			}
			if err := cache.Set(ctx, key, text, ttl); err != nil {
				logger.WarnContext(ctx, "cache store failed", "error", err)
			}
			return text, nil
		})
	}
}

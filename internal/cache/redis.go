package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vykazy/timesheet-client/internal/core/ports"
	"github.com/vykazy/timesheet-client/internal/pkg/config"
)

const keyPrefix = "cache:"

const connectTimeout = 5 * time.Second

// Connect opens the Redis backend the offline cache stores its generations
// in, verifying reachability with a ping. An unreachable backend fails fast
// rather than degrading every later cache operation.
func Connect(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("offline cache backend %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// RedisStore implements ports.CacheStore on Redis.
// Key format: cache:<generation>:<METHOD> <url>
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore wrapping the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(generation, key string) string {
	return keyPrefix + generation + ":" + key
}

// Put stores a response under the generation and request key.
func (s *RedisStore) Put(ctx context.Context, generation, key string, res *ports.CachedResponse) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return s.client.Set(ctx, s.key(generation, key), raw, 0).Err()
}

// Match returns the stored response for the key, or ok=false on a miss.
func (s *RedisStore) Match(ctx context.Context, generation, key string) (*ports.CachedResponse, bool, error) {
	raw, err := s.client.Get(ctx, s.key(generation, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache match: %w", err)
	}
	var res ports.CachedResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, fmt.Errorf("cache match: decode: %w", err)
	}
	return &res, true, nil
}

// Generations enumerates every generation with at least one stored entry.
func (s *RedisStore) Generations(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("cache generations: %w", err)
		}
		for _, k := range keys {
			rest := strings.TrimPrefix(k, keyPrefix)
			// The generation tag never contains a colon; the request key
			// that follows may.
			if i := strings.IndexByte(rest, ':'); i > 0 {
				seen[rest[:i]] = struct{}{}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	generations := make([]string, 0, len(seen))
	for g := range seen {
		generations = append(generations, g)
	}
	sort.Strings(generations)
	return generations, nil
}

// DeleteGeneration removes a whole generation and all its entries.
func (s *RedisStore) DeleteGeneration(ctx context.Context, generation string) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+generation+":*", 100).Result()
		if err != nil {
			return fmt.Errorf("cache delete generation: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache delete generation: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

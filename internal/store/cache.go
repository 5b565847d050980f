package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/epitrack/epitrack/internal/domain"
)

// Cache is the byte-level cache the CachedStore reads through. Implementors
// must treat every failure as a miss; the flat-file store is the source of
// truth and a broken cache must never fail a request.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Observer receives cache hit/miss notifications (wired to Prometheus
// counters in the HTTP layer).
type Observer interface {
	CacheHit()
	CacheMiss()
}

type nopObserver struct{}

func (nopObserver) CacheHit()  {}
func (nopObserver) CacheMiss() {}

// RedisCache implements Cache over a Redis connection.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects a cache to the given Redis instance.
func NewRedisCache(addr, password string, db int) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})
	return &RedisCache{client: client, prefix: "epitrack:"}
}

// NewRedisCacheWithClient wraps an existing client (used by tests with
// redismock).
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "epitrack:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	result, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("cache get failed")
		}
		return nil, false
	}
	return result, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// MemoryCache is the in-process twin of RedisCache for tests and
// deployments without Redis.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

// CachedStore decorates a HistoryStore with a read-through cache keyed by
// country and date range. Store errors are never cached.
type CachedStore struct {
	inner    HistoryStore
	cache    Cache
	ttl      time.Duration
	observer Observer
}

// NewCachedStore wraps inner with the given cache. observer may be nil.
func NewCachedStore(inner HistoryStore, cache Cache, ttl time.Duration, observer Observer) *CachedStore {
	if observer == nil {
		observer = nopObserver{}
	}
	return &CachedStore{inner: inner, cache: cache, ttl: ttl, observer: observer}
}

func (s *CachedStore) Countries(ctx context.Context) ([]string, error) {
	if raw, ok := s.cache.Get(ctx, "countries"); ok {
		var names []string
		if err := json.Unmarshal(raw, &names); err == nil {
			s.observer.CacheHit()
			return names, nil
		}
	}
	s.observer.CacheMiss()

	names, err := s.inner.Countries(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(names); err == nil {
		s.cache.Set(ctx, "countries", raw, s.ttl)
	}
	return names, nil
}

func (s *CachedStore) History(ctx context.Context, country string, from, to *domain.Date) (Series, error) {
	key := historyKey(country, from, to)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var series Series
		if err := json.Unmarshal(raw, &series); err == nil {
			s.observer.CacheHit()
			return series, nil
		}
	}
	s.observer.CacheMiss()

	series, err := s.inner.History(ctx, country, from, to)
	if err != nil {
		return Series{}, err
	}
	if raw, err := json.Marshal(series); err == nil {
		s.cache.Set(ctx, key, raw, s.ttl)
	}
	return series, nil
}

func historyKey(country string, from, to *domain.Date) string {
	fromStr, toStr := "", ""
	if from != nil {
		fromStr = from.String()
	}
	if to != nil {
		toStr = to.String()
	}
	return fmt.Sprintf("hist:%s|%s|%s", domain.CountryKey(country), fromStr, toStr)
}

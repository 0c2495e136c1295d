package geo

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/netsentry/netsentry/internal/models"
)

// Cache stores resolved geolocations keyed by IP. Implementations must treat
// failures as cache misses; enrichment is never allowed to fail hard.
type Cache interface {
	Get(ctx context.Context, ip string) (*models.Geolocation, bool)
	Set(ctx context.Context, ip string, loc *models.Geolocation)
}

// MemoryCache is a process-local cache with no eviction. Lookups are
// rate-limited upstream, so the working set stays small.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*models.Geolocation
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*models.Geolocation)}
}

func (c *MemoryCache) Get(_ context.Context, ip string) (*models.Geolocation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, ok := c.entries[ip]
	return loc, ok
}

func (c *MemoryCache) Set(_ context.Context, ip string, loc *models.Geolocation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ip] = loc
}

const redisKeyPrefix = "netsentry:geo:"

// RedisCache shares resolved geolocations across processes via Redis with a
// TTL, keeping free-tier provider quotas intact across restarts.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing Redis client. A zero ttl defaults to 24h.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, ip string) (*models.Geolocation, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+ip).Bytes()
	if err != nil {
		return nil, false
	}
	var loc models.Geolocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, false
	}
	return &loc, true
}

func (c *RedisCache) Set(ctx context.Context, ip string, loc *models.Geolocation) {
	data, err := json.Marshal(loc)
	if err != nil {
		return
	}
	c.client.Set(ctx, redisKeyPrefix+ip, data, c.ttl)
}

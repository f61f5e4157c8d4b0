package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rental-insight/internal/cluster"
)

// CacheKeyType is the leading segment of a cache key
type CacheKeyType string

const (
	// CacheKeyBuildings holds the clustered building view of one neighborhood
	CacheKeyBuildings CacheKeyType = "buildings"
)

// GenerateCacheKey builds "<type>:<param1>:<param2>..." with lowercased params
func GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, string(keyType))
	for _, p := range params {
		parts = append(parts, strings.ToLower(p))
	}
	return strings.Join(parts, ":")
}

// BuildingsKey returns the cache key for a neighborhood's building view
func BuildingsKey(neighborhoodID int64) string {
	return GenerateCacheKey(CacheKeyBuildings, strconv.FormatInt(neighborhoodID, 10))
}

// CacheService stores JSON values in Redis with a default TTL
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{redis: redis, ttl: ttl}
}

// Set stores value as JSON with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.redis.Set(ctx, key, data, c.ttl)
}

// Get decodes the value under key into dest. A missing key is a miss, not an error.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// Invalidate removes keys
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// InvalidatePattern removes all keys matching a glob pattern, e.g. "buildings:*"
func (c *CacheService) InvalidatePattern(ctx context.Context, pattern string) error {
	keys, err := c.redis.Keys(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to find keys matching pattern: %w", err)
	}
	return c.Invalidate(ctx, keys...)
}

// TTL returns the configured TTL
func (c *CacheService) TTL() time.Duration {
	return c.ttl
}

// BuildingCache is the neighborhood building-view cache
type BuildingCache struct {
	cache *CacheService
}

// NewBuildingCache creates a building-view cache on top of a CacheService
func NewBuildingCache(cache *CacheService) *BuildingCache {
	return &BuildingCache{cache: cache}
}

// CachedBuildings is the cached clustering output for one neighborhood
type CachedBuildings struct {
	NeighborhoodID int64          `json:"neighborhoodId"`
	Result         cluster.Result `json:"result"`
	CachedAt       time.Time      `json:"cachedAt"`
}

// Get returns the cached view, or nil on a miss
func (b *BuildingCache) Get(ctx context.Context, neighborhoodID int64) (*CachedBuildings, error) {
	var cached CachedBuildings
	hit, err := b.cache.Get(ctx, BuildingsKey(neighborhoodID), &cached)
	if err != nil || !hit {
		return nil, err
	}
	return &cached, nil
}

// Put stores the view for a neighborhood
func (b *BuildingCache) Put(ctx context.Context, neighborhoodID int64, result cluster.Result) error {
	return b.cache.Set(ctx, BuildingsKey(neighborhoodID), CachedBuildings{
		NeighborhoodID: neighborhoodID,
		Result:         result,
		CachedAt:       time.Now().UTC(),
	})
}

// Invalidate drops the cached views of the given neighborhoods
func (b *BuildingCache) Invalidate(ctx context.Context, neighborhoodIDs ...int64) error {
	keys := make([]string, len(neighborhoodIDs))
	for i, id := range neighborhoodIDs {
		keys[i] = BuildingsKey(id)
	}
	return b.cache.Invalidate(ctx, keys...)
}

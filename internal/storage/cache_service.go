package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kol-dashboard/internal/types"
)

// CacheService caches provider responses across refresh cycles
type CacheService struct {
	redis       *RedisCache
	metadataTTL time.Duration
	priceTTL    time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, metadataTTL, priceTTL time.Duration) *CacheService {
	return &CacheService{
		redis:       redis,
		metadataTTL: metadataTTL,
		priceTTL:    priceTTL,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyMetadata is for mint display metadata
	CacheKeyMetadata CacheKeyType = "meta"
	// CacheKeyPrice is for primary market price quotes
	CacheKeyPrice CacheKeyType = "price"
)

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <type>:<param1>:<param2>:...
// Base58 addresses are case-sensitive, so parameters are kept verbatim.
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := append([]string{string(keyType)}, params...)
	return strings.Join(parts, ":")
}

// SetWithTTL stores a JSON encoded value in cache
func (c *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.redis.Set(ctx, key, data, ttl)
}

// Get retrieves a value from cache and deserializes it
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		// Key not found is not an error, just a cache miss
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

// Invalidate removes one or more keys from cache
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// InvalidatePattern removes all keys matching a pattern, e.g. "price:*"
func (c *CacheService) InvalidatePattern(ctx context.Context, pattern string) error {
	keys, err := c.redis.ScanKeys(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to find keys matching pattern: %w", err)
	}
	return c.Invalidate(ctx, keys...)
}

// GetMetadata returns cached metadata for mint
func (c *CacheService) GetMetadata(ctx context.Context, mint string) (*types.AssetMetadata, bool, error) {
	var meta types.AssetMetadata
	found, err := c.Get(ctx, c.GenerateCacheKey(CacheKeyMetadata, mint), &meta)
	if err != nil || !found {
		return nil, false, err
	}
	return &meta, true, nil
}

// SetMetadata caches metadata for mint with the metadata TTL
func (c *CacheService) SetMetadata(ctx context.Context, mint string, meta *types.AssetMetadata) error {
	return c.SetWithTTL(ctx, c.GenerateCacheKey(CacheKeyMetadata, mint), meta, c.metadataTTL)
}

// GetPrice returns the cached primary quote for mint
func (c *CacheService) GetPrice(ctx context.Context, mint string) (types.PriceQuote, bool, error) {
	var quote types.PriceQuote
	found, err := c.Get(ctx, c.GenerateCacheKey(CacheKeyPrice, mint), &quote)
	if err != nil || !found {
		return types.PriceQuote{}, false, err
	}
	return quote, true, nil
}

// SetPrice caches the primary quote for mint with the price TTL
func (c *CacheService) SetPrice(ctx context.Context, mint string, quote types.PriceQuote) error {
	return c.SetWithTTL(ctx, c.GenerateCacheKey(CacheKeyPrice, mint), quote, c.priceTTL)
}

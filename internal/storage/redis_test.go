package storage

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kol-dashboard/internal/config"
	"github.com/kol-dashboard/internal/types"
)

// setupTestCache creates a CacheService backed by an in-process Redis
func setupTestCache(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCacheService(NewRedisCacheFromClient(client), time.Hour, time.Minute), mr
}

func TestNewRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cache, err := NewRedisCache(&config.RedisConfig{
		Host:           mr.Host(),
		Port:           mr.Port(),
		MaxConnections: 4,
	})
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, cache.Close())
	}()

	ctx := testContext(t)
	assert.NoError(t, cache.Ping(ctx))

	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	exists, err := cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Del(ctx, "k"))
	_, err = cache.Get(ctx, "k")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	_, err := NewRedisCache(&config.RedisConfig{Host: "127.0.0.1", Port: "1"})
	assert.Error(t, err)
}

func TestCacheService_GenerateCacheKey(t *testing.T) {
	cache, _ := setupTestCache(t)

	// Base58 is case-sensitive; keys must not be normalized
	assert.Equal(t, "meta:EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		cache.GenerateCacheKey(CacheKeyMetadata, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"))
	assert.NotEqual(t, cache.GenerateCacheKey(CacheKeyPrice, "AbC"), cache.GenerateCacheKey(CacheKeyPrice, "abc"))
}

func TestCacheService_Metadata(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := testContext(t)

	_, found, err := cache.GetMetadata(ctx, "mint")
	require.NoError(t, err)
	assert.False(t, found)

	meta := &types.AssetMetadata{Symbol: "BONK", Name: "Bonk", IconURL: "https://example.com/bonk.png"}
	require.NoError(t, cache.SetMetadata(ctx, "mint", meta))

	got, found, err := cache.GetMetadata(ctx, "mint")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, meta, got)
	assert.Equal(t, time.Hour, mr.TTL("meta:mint"))

	mr.FastForward(time.Hour + time.Second)
	_, found, err = cache.GetMetadata(ctx, "mint")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheService_EmptyMetadataIsCached(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := testContext(t)

	require.NoError(t, cache.SetMetadata(ctx, "mint", &types.AssetMetadata{}))
	got, found, err := cache.GetMetadata(ctx, "mint")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, &types.AssetMetadata{}, got)
}

func TestCacheService_Price(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := testContext(t)

	quote := types.PriceQuote{PriceUSD: 0.000021, PriceChange24h: -3.5, DexID: "raydium"}
	require.NoError(t, cache.SetPrice(ctx, "mint", quote))

	got, found, err := cache.GetPrice(ctx, "mint")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, quote, got)
	assert.Equal(t, time.Minute, mr.TTL("price:mint"))
}

func TestCacheService_CorruptEntryIsAnError(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := testContext(t)

	require.NoError(t, mr.Set("meta:mint", "{not json"))
	_, _, err := cache.GetMetadata(ctx, "mint")
	assert.Error(t, err)
}

func TestCacheService_InvalidatePattern(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := testContext(t)

	require.NoError(t, cache.SetPrice(ctx, "a", types.PriceQuote{PriceUSD: 1}))
	require.NoError(t, cache.SetPrice(ctx, "b", types.PriceQuote{PriceUSD: 2}))
	require.NoError(t, cache.SetMetadata(ctx, "a", &types.AssetMetadata{Symbol: "A"}))

	require.NoError(t, cache.InvalidatePattern(ctx, "price:*"))

	assert.False(t, mr.Exists("price:a"))
	assert.False(t, mr.Exists("price:b"))
	assert.True(t, mr.Exists("meta:a"))

	// Nothing to match is fine
	assert.NoError(t, cache.InvalidatePattern(ctx, "price:*"))
}

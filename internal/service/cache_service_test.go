package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/arc-docs-api/internal/models"
	"github.com/noah-isme/arc-docs-api/internal/repository"
)

func newStatsCache(t *testing.T, metrics *MetricsService) (*CacheService, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheService(repository.NewCacheRepository(client, "arc", nil), metrics, time.Minute, nil, true), srv
}

func TestCacheServiceLookupAndStore(t *testing.T) {
	metrics := NewMetricsService()
	cache, srv := newStatsCache(t, metrics)
	ctx := context.Background()

	var stats models.DocumentStatistics
	assert.False(t, cache.Lookup(ctx, statsAllKey, &stats))

	cache.Store(ctx, statsAllKey, models.DocumentStatistics{TotalDocuments: 7}, 0)
	assert.Equal(t, time.Minute, srv.TTL("arc:stats:all"))
	require.True(t, cache.Lookup(ctx, statsAllKey, &stats))
	assert.Equal(t, 7, stats.TotalDocuments)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheMisses))

	require.NoError(t, srv.Set("arc:stats:user:owner", "{not json"))
	assert.False(t, cache.Lookup(ctx, userStatsKey("owner"), &stats))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.cacheMisses))

	srv.SetError("ERR injected failure")
	assert.False(t, cache.Lookup(ctx, statsAllKey, &stats))
	cache.Store(ctx, statsAllKey, stats, time.Second)
	cache.Invalidate(ctx, statsCachePattern)
	srv.SetError("")
	assert.True(t, srv.Exists("arc:stats:all"))
}

func TestCacheServiceDisabled(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCacheService(repository.NewCacheRepository(client, "arc", nil), nil, 0, nil, false)
	ctx := context.Background()

	cache.Store(ctx, statsAllKey, models.DocumentStatistics{TotalDocuments: 1}, 0)
	assert.False(t, srv.Exists("arc:stats:all"))
	var stats models.DocumentStatistics
	assert.False(t, cache.Lookup(ctx, statsAllKey, &stats))

	var none *CacheService
	assert.False(t, none.Enabled())
	none.Invalidate(ctx, statsCachePattern)
}

func TestUserStatsPatternMatchesOnlyThatUser(t *testing.T) {
	cache, srv := newStatsCache(t, nil)
	ctx := context.Background()

	for _, user := range []string{"a*", "ab", "a?", "a[b]"} {
		cache.Store(ctx, userStatsKey(user), models.DocumentStatistics{}, 0)
	}
	cache.Invalidate(ctx, userStatsPattern("a*"))
	cache.Invalidate(ctx, userStatsPattern("a[b]"))

	assert.False(t, srv.Exists("arc:stats:user:a*"))
	assert.False(t, srv.Exists("arc:stats:user:a[b]"))
	assert.True(t, srv.Exists("arc:stats:user:ab"))
	assert.True(t, srv.Exists("arc:stats:user:a?"))
}

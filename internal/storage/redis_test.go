package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rental-insight/internal/config"
)

func TestRedisCache_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	cache, err := NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		t.Skipf("Skipping test - Redis not available: %v", err)
	}
	defer func() {
		_ = cache.Close()
	}()

	ctx := testContext(t)
	key := "test:buildings:integration"

	require.NoError(t, cache.Set(ctx, key, "v", 10*time.Second))

	exists, err := cache.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	keys, err := cache.Keys(ctx, "test:buildings:*")
	require.NoError(t, err)
	assert.Contains(t, keys, key)

	require.NoError(t, cache.Del(ctx, key))
	exists, err = cache.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/inventory/cache"
	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
)

func TestNewSnapshotCache_DisabledIsNoop(t *testing.T) {
	c, err := cache.NewSnapshotCache(config.CacheConfig{})
	require.NoError(t, err)

	s := domain.NewSnapshot("p-1", time.Now())
	require.NoError(t, c.Set(context.Background(), s))

	got, ok, err := c.Get(context.Background(), "p-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(context.Background(), "p-1"))
}

func TestRedisSnapshotCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()
	container, err := testutil.NewRedisContainer(ctx)
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	defer container.Terminate(ctx)

	client := redis.NewClient(&redis.Options{Addr: container.Addr})
	defer client.Close()

	c := cache.NewRedisSnapshotCache(client, time.Minute)

	_, ok, err := c.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, ok)

	s := domain.NewSnapshot("p-1", time.Now().UTC())
	s.Available = 12
	s.Minimum = 5
	s.Derive(30)
	require.NoError(t, c.Set(ctx, s))

	got, ok, err := c.Get(ctx, "p-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(12), got.Available)
	assert.Equal(t, domain.StateNormal, got.State)

	require.NoError(t, c.Invalidate(ctx, "p-1"))
	_, ok, err = c.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

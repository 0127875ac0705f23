// Package cache keeps read-through copies of derived inventory views in redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockflow/stockflow-backend/internal/inventory/domain"
	"github.com/stockflow/stockflow-backend/pkg/config"
)

const (
	snapshotKeyPrefix = "inventory:snapshot:"
	defaultCacheTTL   = time.Minute
)

// SnapshotCache stores snapshots by product id. A miss is (nil, false, nil).
type SnapshotCache interface {
	Get(ctx context.Context, productID string) (*domain.Snapshot, bool, error)
	Set(ctx context.Context, s *domain.Snapshot) error
	Invalidate(ctx context.Context, productID string) error
}

type redisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopSnapshotCache struct{}

// NewSnapshotCache connects to redis when cfg has an address and returns a
// no-op cache otherwise.
func NewSnapshotCache(cfg config.CacheConfig) (SnapshotCache, error) {
	if !cfg.Enabled() {
		return NewNoopSnapshotCache(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisSnapshotCache(client, cfg.TTL), nil
}

// NewRedisSnapshotCache wraps an existing client.
func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) SnapshotCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &redisSnapshotCache{client: client, ttl: ttl}
}

// NewNoopSnapshotCache returns a cache that never hits.
func NewNoopSnapshotCache() SnapshotCache {
	return &noopSnapshotCache{}
}

func (c *redisSnapshotCache) Get(ctx context.Context, productID string) (*domain.Snapshot, bool, error) {
	payload, err := c.client.Get(ctx, snapshotKey(productID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var s domain.Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, false, fmt.Errorf("decode snapshot cache: %w", err)
	}
	return &s, true, nil
}

func (c *redisSnapshotCache) Set(ctx context.Context, s *domain.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot cache: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey(s.ProductID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisSnapshotCache) Invalidate(ctx context.Context, productID string) error {
	if err := c.client.Del(ctx, snapshotKey(productID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (noopSnapshotCache) Get(context.Context, string) (*domain.Snapshot, bool, error) {
	return nil, false, nil
}

func (noopSnapshotCache) Set(context.Context, *domain.Snapshot) error { return nil }

func (noopSnapshotCache) Invalidate(context.Context, string) error { return nil }

func snapshotKey(productID string) string {
	return snapshotKeyPrefix + productID
}

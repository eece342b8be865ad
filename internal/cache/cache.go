// Package cache wraps a shared Redis client used by internal/session
// (browser state) and internal/compliance (verdict cache). A single
// *redis.Client is created at worker startup and handed to both typed
// repositories rather than each opening its own connection pool.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hoistscout/hoistscout-core/internal/common"
)

// NewClient builds the shared Redis client from configuration.
func NewClient(cfg common.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping verifies connectivity at startup, failing fast rather than
// letting the first job discover a broken cache mid-run.
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/orchestra-mcp/monitor-socket/config"
	"github.com/orchestra-mcp/monitor-socket/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisMetrics serves the latest snapshot published by monitoring agents.
// Agents SET the snapshot JSON under config.RedisConfig.SnapshotKey.
type RedisMetrics struct {
	client *redis.Client
	key    string
	logger zerolog.Logger
}

// NewRedisMetrics creates a Redis-backed metrics source. No connection is
// made until Ping or Snapshot is called.
func NewRedisMetrics(cfg config.RedisConfig, logger zerolog.Logger) *RedisMetrics {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisMetrics{
		client: client,
		key:    cfg.SnapshotKey(),
		logger: logger.With().Str("component", "redis-metrics").Logger(),
	}
}

// Ping checks that Redis is reachable.
func (r *RedisMetrics) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Snapshot reads and decodes the latest published snapshot.
func (r *RedisMetrics) Snapshot(ctx context.Context) (types.Snapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", r.key).Msg("discarding unreadable snapshot")
		return types.Snapshot{}, err
	}
	return snap, nil
}

// Close releases the Redis connection pool.
func (r *RedisMetrics) Close() error {
	return r.client.Close()
}

func decodeSnapshot(data []byte) (types.Snapshot, error) {
	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return types.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

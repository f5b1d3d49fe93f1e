package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/config"
)

// NewRedisClient creates a Redis client and waits until it answers a ping.
// Redis carries the advance lock, answer buffer, worker queues and the
// monitor channel, so the server refuses to start without it.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if opt.PoolSize == 0 {
		opt.PoolSize = int(cfg.MaxDBConns) * 2
	}

	rdb := redis.NewClient(opt)

	err = retry(ctx, cfg.ConnectRetries, func(attempt int) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Redis not ready")
			return err
		}
		return nil
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Int("pool_size", opt.PoolSize).
		Msg("Redis connected")

	return rdb, nil
}

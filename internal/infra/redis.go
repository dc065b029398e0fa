package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wingman/internal/config"
)

// InitRedis returns nil when no redis URL is configured; callers fall back to
// in-process dispatch.
func InitRedis(cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		log.Info("redis not configured, using in-process queue")
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info("connected to redis", zap.String("addr", opts.Addr))
	return client, nil
}

package queue_fx

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"wingman/internal/config"
	"wingman/internal/infra"
	"wingman/pkg/jobqueue"
)

var Module = fx.Provide(
	provideRedis,
	provideDispatcher)

// provideRedis returns a nil client when redis.url is empty.
func provideRedis(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	client, err := infra.InitRedis(cfg, logger)
	if err != nil || client == nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

// provideDispatcher prefers the durable Redis queue and falls back to the
// in-process pool, which loses queued ids on restart. RecoverQueued covers
// that case at the next start.
func provideDispatcher(cfg *config.Config, client *redis.Client, logger *zap.Logger) jobqueue.Dispatcher {
	if client != nil {
		logger.Info("using redis analysis queue", zap.String("queue", cfg.Queue.Name))
		return jobqueue.NewRedisQueue(client, cfg.Queue.Name, cfg.Queue.Workers, cfg.Queue.VisibilityTimeout, logger)
	}
	logger.Warn("redis.url not set, using in-process analysis queue")
	return jobqueue.NewPool(cfg.Queue.Workers, cfg.Queue.Buffer, logger)
}

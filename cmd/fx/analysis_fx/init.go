package analysis_fx

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"wingman/internal/config"
	"wingman/internal/metrics"
	"wingman/internal/repositories"
	"wingman/internal/services"
	"wingman/pkg/jobqueue"
	"wingman/pkg/utils"
)

var Module = fx.Options(
	fx.Provide(
		provideAnalysisRepo,
		provideAnalysisService),
	fx.Invoke(startWorkers),
	fx.Invoke(startIdempotencySweeper),
)

func provideAnalysisRepo(db *gorm.DB) repositories.AnalysisRepository {
	return repositories.NewAnalysisRepository(db)
}

func provideAnalysisService(
	db *gorm.DB,
	cfg *config.Config,
	accounts repositories.AccountRepository,
	analyses repositories.AnalysisRepository,
	idempotency repositories.IdempotencyRepository,
	ledger services.LedgerServiceInterface,
	quota services.QuotaServiceInterface,
	completion utils.CompletionClientInterface,
	dispatcher jobqueue.Dispatcher,
	m *metrics.Metrics,
	clock utils.Clock,
	logger *zap.Logger,
) services.AnalysisServiceInterface {
	return services.NewAnalysisService(db, accounts, analyses, idempotency, ledger, quota, completion, dispatcher,
		services.AnalysisSettings{
			Pricing:        cfg.Pricing,
			CacheRetention: cfg.Cache.Retention,
			IdempotencyTTL: cfg.Idempotency.TTL,
			AITimeout:      cfg.AI.Timeout,
			Temperature:    cfg.AI.Temperature,
		}, m, clock, logger)
}

// startWorkers starts the queue consumers, then re-dispatches analyses left
// queued by a previous process.
func startWorkers(lc fx.Lifecycle, dispatcher jobqueue.Dispatcher, analysis services.AnalysisServiceInterface, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := dispatcher.Start(analysis.Process); err != nil {
				return err
			}
			if _, err := analysis.RecoverQueued(ctx); err != nil {
				logger.Warn("failed to recover queued analyses", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return dispatcher.Stop(ctx)
		},
	})
}

func startIdempotencySweeper(lc fx.Lifecycle, cfg *config.Config, idempotency repositories.IdempotencyRepository, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(cfg.Idempotency.SweepInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case now := <-ticker.C:
						n, err := idempotency.DeleteExpired(ctx, now.Unix())
						if err != nil {
							logger.Warn("idempotency sweep failed", zap.Error(err))
							continue
						}
						if n > 0 {
							logger.Debug("expired idempotency keys removed", zap.Int64("count", n))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

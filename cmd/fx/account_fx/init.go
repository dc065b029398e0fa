package account_fx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"wingman/internal/config"
	"wingman/internal/repositories"
	"wingman/internal/services"
	"wingman/pkg/utils"
)

var Module = fx.Provide(
	provideAccountRepo,
	provideLedgerRepo,
	provideIdempotencyRepo,
	provideTokenIssuer,
	provideLedgerService,
	provideQuotaService,
	provideAccountService)

func provideAccountRepo(db *gorm.DB) repositories.AccountRepository {
	return repositories.NewAccountRepository(db)
}

func provideLedgerRepo(db *gorm.DB) repositories.LedgerRepository {
	return repositories.NewLedgerRepository(db)
}

func provideIdempotencyRepo(db *gorm.DB) repositories.IdempotencyRepository {
	return repositories.NewIdempotencyRepository(db)
}

func provideTokenIssuer(cfg *config.Config, logger *zap.Logger) (*utils.TokenIssuer, error) {
	secret := cfg.JWT.Secret
	if secret == "" {
		logger.Warn("jwt.secret not set, generating a throwaway signing key")
		generated, err := utils.GenerateSecureToken(32)
		if err != nil {
			return nil, err
		}
		secret = generated
	}
	return utils.NewTokenIssuer(secret, cfg.JWT.TTL), nil
}

func provideLedgerService(
	db *gorm.DB,
	accounts repositories.AccountRepository,
	entries repositories.LedgerRepository,
	clock utils.Clock,
	logger *zap.Logger,
) services.LedgerServiceInterface {
	return services.NewLedgerService(db, accounts, entries, clock, logger)
}

func provideQuotaService(
	cfg *config.Config,
	accounts repositories.AccountRepository,
	ledger services.LedgerServiceInterface,
	clock utils.Clock,
	logger *zap.Logger,
) services.QuotaServiceInterface {
	return services.NewQuotaService(accounts, ledger, cfg.Pricing, clock, logger)
}

func provideAccountService(
	db *gorm.DB,
	cfg *config.Config,
	accountRepo repositories.AccountRepository,
	ledgerRepo repositories.LedgerRepository,
	idempotency repositories.IdempotencyRepository,
	ledger services.LedgerServiceInterface,
	quota services.QuotaServiceInterface,
	tokens *utils.TokenIssuer,
	clock utils.Clock,
	logger *zap.Logger,
) services.AccountServiceInterface {
	return services.NewAccountService(db, accountRepo, ledgerRepo, idempotency, ledger, quota, tokens,
		services.AccountSettings{
			Pricing:         cfg.Pricing,
			DefaultTimezone: cfg.Accounts.DefaultTimezone,
		}, clock, logger)
}

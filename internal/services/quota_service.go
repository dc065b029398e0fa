package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wingman/internal/models/db_models"
	"wingman/internal/pricing"
	"wingman/internal/repositories"
	"wingman/pkg/utils"
)

const maxResetAttempts = 3

// QuotaServiceInterface applies the lazy daily and monthly resets. It runs
// at the start of every account-scoped request; there is no background timer.
type QuotaServiceInterface interface {
	EnsureFresh(ctx context.Context, accountID uuid.UUID) (*db_models.Account, error)
	FreeRemaining(account *db_models.Account) int
}

type QuotaService struct {
	accounts repositories.AccountRepository
	ledger   LedgerServiceInterface
	pricing  pricing.Config
	clock    utils.Clock
	logger   *zap.Logger
}

func NewQuotaService(
	accounts repositories.AccountRepository,
	ledger LedgerServiceInterface,
	pricingCfg pricing.Config,
	clock utils.Clock,
	logger *zap.Logger,
) QuotaServiceInterface {
	return &QuotaService{
		accounts: accounts,
		ledger:   ledger,
		pricing:  pricingCfg,
		clock:    clock,
		logger:   logger.Named("quota"),
	}
}

func (q *QuotaService) EnsureFresh(ctx context.Context, accountID uuid.UUID) (*db_models.Account, error) {
	var account *db_models.Account
	for attempt := 0; attempt < maxResetAttempts; attempt++ {
		var err error
		account, err = q.accounts.FindById(ctx, accountID)
		if err != nil {
			return nil, utils.DBError("find account", err)
		}
		if account == nil {
			return nil, utils.ErrAccountNotFound
		}

		now := q.clock()
		loc := utils.LoadLocation(account.Timezone)
		dayStart := utils.StartOfDay(now, loc).Unix()
		monthStart := utils.StartOfMonth(now, loc).Unix()

		stale := false
		if account.DailyAllowance > 0 && account.LastDailyResetAt < dayStart {
			applied, err := q.ledger.ApplyDailyReset(ctx, account, now.Unix())
			if err != nil {
				return nil, err
			}
			if !applied {
				// lost to a concurrent spend or reset; re-read and decide again
				continue
			}
			stale = true
		}

		if account.FreeMonthlyUses > 0 && account.FreeLastUseAt < monthStart {
			reset, err := q.accounts.ResetMonthlyFree(ctx, account.ID, monthStart)
			if err != nil {
				return nil, utils.DBError("reset monthly quota", err)
			}
			if reset {
				q.logger.Info("monthly free quota reset", zap.String("account_id", account.ID.String()))
			}
			stale = true
		}

		if !stale {
			return account, nil
		}
	}

	account, err := q.accounts.FindById(ctx, accountID)
	if err != nil {
		return nil, utils.DBError("find account", err)
	}
	if account == nil {
		return nil, utils.ErrAccountNotFound
	}
	return account, nil
}

func (q *QuotaService) FreeRemaining(account *db_models.Account) int {
	if account.Tier != pricing.TierFree {
		return 0
	}
	used := account.FreeMonthlyUses
	if account.FreeLastUseAt < utils.StartOfMonth(q.clock(), utils.LoadLocation(account.Timezone)).Unix() {
		used = 0
	}
	if remaining := q.pricing.FreeMonthlyLimit - used; remaining > 0 {
		return remaining
	}
	return 0
}

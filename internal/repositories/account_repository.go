package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"wingman/internal/models/db_models"
	"wingman/internal/pricing"
)

// AccountRepository never writes balance or quota columns with Save. Every
// mutation is a single conditional UPDATE whose RowsAffected is the outcome.
type AccountRepository interface {
	WithTx(tx *gorm.DB) AccountRepository
	Insert(ctx context.Context, account *db_models.Account) error
	FindById(ctx context.Context, id uuid.UUID) (*db_models.Account, error)
	FindByEmail(ctx context.Context, email string) (*db_models.Account, error)

	// Debit subtracts amount only if the balance covers it.
	Debit(ctx context.Context, id uuid.UUID, amount int64) (bool, error)
	Credit(ctx context.Context, id uuid.UUID, amount int64) (bool, error)
	Balance(ctx context.Context, id uuid.UUID) (int64, error)

	// ResetDaily sets the balance to newBalance only if nobody touched the
	// balance or the reset marker since the caller read them.
	ResetDaily(ctx context.Context, id uuid.UUID, prevResetAt, prevBalance, newBalance, resetAt int64) (bool, error)

	MarkFreeUse(ctx context.Context, id uuid.UUID, limit int, at int64) (bool, error)
	UnmarkFreeUse(ctx context.Context, id uuid.UUID) error
	ResetMonthlyFree(ctx context.Context, id uuid.UUID, monthStart int64) (bool, error)

	UpdateTier(ctx context.Context, id uuid.UUID, tier pricing.Tier, dailyAllowance int64) (bool, error)
	SoftDelete(ctx context.Context, id uuid.UUID) (bool, error)
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{
		db: db,
	}
}

func (a *accountRepository) WithTx(tx *gorm.DB) AccountRepository {
	return &accountRepository{db: tx}
}

func (a *accountRepository) Insert(ctx context.Context, account *db_models.Account) error {
	return a.db.WithContext(ctx).Create(account).Error
}

func (a *accountRepository) FindById(ctx context.Context, id uuid.UUID) (*db_models.Account, error) {
	var account db_models.Account
	err := a.db.WithContext(ctx).First(&account, "id = ?", id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &account, nil
}

func (a *accountRepository) FindByEmail(ctx context.Context, email string) (*db_models.Account, error) {
	var account db_models.Account
	err := a.db.WithContext(ctx).First(&account, "email = ?", email).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &account, nil
}

func (a *accountRepository) model(ctx context.Context) *gorm.DB {
	return a.db.WithContext(ctx).Model(&db_models.Account{})
}

func (a *accountRepository) Debit(ctx context.Context, id uuid.UUID, amount int64) (bool, error) {
	res := a.model(ctx).
		Where("id = ? AND balance >= ?", id, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	return res.RowsAffected == 1, res.Error
}

func (a *accountRepository) Credit(ctx context.Context, id uuid.UUID, amount int64) (bool, error) {
	res := a.model(ctx).
		Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount))
	return res.RowsAffected == 1, res.Error
}

func (a *accountRepository) Balance(ctx context.Context, id uuid.UUID) (int64, error) {
	var balances []int64
	err := a.model(ctx).Where("id = ?", id).Limit(1).Pluck("balance", &balances).Error
	if err != nil {
		return 0, err
	}
	if len(balances) == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return balances[0], nil
}

func (a *accountRepository) ResetDaily(ctx context.Context, id uuid.UUID, prevResetAt, prevBalance, newBalance, resetAt int64) (bool, error) {
	res := a.model(ctx).
		Where("id = ? AND last_daily_reset_at = ? AND balance = ?", id, prevResetAt, prevBalance).
		Updates(map[string]interface{}{
			"balance":             newBalance,
			"last_daily_reset_at": resetAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (a *accountRepository) MarkFreeUse(ctx context.Context, id uuid.UUID, limit int, at int64) (bool, error) {
	res := a.model(ctx).
		Where("id = ? AND free_monthly_uses < ?", id, limit).
		Updates(map[string]interface{}{
			"free_monthly_uses": gorm.Expr("free_monthly_uses + 1"),
			"free_last_use_at":  at,
		})
	return res.RowsAffected == 1, res.Error
}

func (a *accountRepository) UnmarkFreeUse(ctx context.Context, id uuid.UUID) error {
	return a.model(ctx).
		Where("id = ? AND free_monthly_uses > 0", id).
		Update("free_monthly_uses", gorm.Expr("free_monthly_uses - 1")).Error
}

func (a *accountRepository) ResetMonthlyFree(ctx context.Context, id uuid.UUID, monthStart int64) (bool, error) {
	res := a.model(ctx).
		Where("id = ? AND free_monthly_uses > 0 AND free_last_use_at < ?", id, monthStart).
		Update("free_monthly_uses", 0)
	return res.RowsAffected == 1, res.Error
}

func (a *accountRepository) UpdateTier(ctx context.Context, id uuid.UUID, tier pricing.Tier, dailyAllowance int64) (bool, error) {
	res := a.model(ctx).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"tier":            tier,
			"daily_allowance": dailyAllowance,
		})
	return res.RowsAffected == 1, res.Error
}

func (a *accountRepository) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := a.db.WithContext(ctx).Delete(&db_models.Account{}, "id = ?", id)
	return res.RowsAffected == 1, res.Error
}

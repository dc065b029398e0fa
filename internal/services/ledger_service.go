package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"wingman/internal/models/db_models"
	"wingman/internal/repositories"
	"wingman/pkg/utils"
)

type LedgerResult struct {
	EntryID uuid.UUID
	Balance int64
}

// LedgerServiceInterface is the only writer of account balances. Every
// balance change and its ledger entry commit in one transaction.
type LedgerServiceInterface interface {
	// WithTx binds the service to an outer transaction; its own
	// transactions then run as savepoints inside it.
	WithTx(tx *gorm.DB) LedgerServiceInterface

	Reserve(ctx context.Context, accountID uuid.UUID, amount int64, kind db_models.LedgerKind, detail map[string]any) (*LedgerResult, error)
	Credit(ctx context.Context, accountID uuid.UUID, amount int64, kind db_models.LedgerKind, detail map[string]any) (*LedgerResult, error)
	Refund(ctx context.Context, accountID uuid.UUID, amount int64, spendEntryID uuid.UUID, detail map[string]any) (*LedgerResult, error)

	// ApplyDailyReset raises the balance to the daily allowance if it is
	// below it and stamps the reset time. applied=false means the snapshot
	// was stale and the caller should re-read.
	ApplyDailyReset(ctx context.Context, snapshot *db_models.Account, resetAt int64) (applied bool, err error)
}

type LedgerService struct {
	db       *gorm.DB
	accounts repositories.AccountRepository
	entries  repositories.LedgerRepository
	clock    utils.Clock
	logger   *zap.Logger
}

func NewLedgerService(
	db *gorm.DB,
	accounts repositories.AccountRepository,
	entries repositories.LedgerRepository,
	clock utils.Clock,
	logger *zap.Logger,
) LedgerServiceInterface {
	return &LedgerService{
		db:       db,
		accounts: accounts,
		entries:  entries,
		clock:    clock,
		logger:   logger.Named("ledger"),
	}
}

func (s *LedgerService) WithTx(tx *gorm.DB) LedgerServiceInterface {
	return &LedgerService{
		db:       tx,
		accounts: s.accounts,
		entries:  s.entries,
		clock:    s.clock,
		logger:   s.logger,
	}
}

func (s *LedgerService) Reserve(ctx context.Context, accountID uuid.UUID, amount int64, kind db_models.LedgerKind, detail map[string]any) (*LedgerResult, error) {
	if amount <= 0 {
		return nil, &utils.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	payload, err := marshalDetail(detail)
	if err != nil {
		return nil, err
	}

	var result *LedgerResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accounts := s.accounts.WithTx(tx)

		ok, err := accounts.Debit(ctx, accountID, amount)
		if err != nil {
			return utils.DBError("debit balance", err)
		}
		if !ok {
			balance, err := accounts.Balance(ctx, accountID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrAccountNotFound
			}
			if err != nil {
				return utils.DBError("read balance", err)
			}
			return &utils.InsufficientCreditsError{Balance: balance, Required: amount}
		}

		result, err = s.appendEntry(ctx, tx, accountID, -amount, kind, nil, payload)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("credits reserved",
		zap.String("account_id", accountID.String()),
		zap.Int64("amount", amount),
		zap.Int64("balance", result.Balance),
		zap.String("entry_id", result.EntryID.String()))
	return result, nil
}

func (s *LedgerService) Credit(ctx context.Context, accountID uuid.UUID, amount int64, kind db_models.LedgerKind, detail map[string]any) (*LedgerResult, error) {
	return s.credit(ctx, accountID, amount, kind, nil, detail)
}

func (s *LedgerService) Refund(ctx context.Context, accountID uuid.UUID, amount int64, spendEntryID uuid.UUID, detail map[string]any) (*LedgerResult, error) {
	return s.credit(ctx, accountID, amount, db_models.LedgerRefund, &spendEntryID, detail)
}

func (s *LedgerService) credit(ctx context.Context, accountID uuid.UUID, amount int64, kind db_models.LedgerKind, ref *uuid.UUID, detail map[string]any) (*LedgerResult, error) {
	if amount <= 0 {
		return nil, &utils.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	payload, err := marshalDetail(detail)
	if err != nil {
		return nil, err
	}

	var result *LedgerResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.accounts.WithTx(tx).Credit(ctx, accountID, amount)
		if err != nil {
			return utils.DBError("credit balance", err)
		}
		if !ok {
			return utils.ErrAccountNotFound
		}
		result, err = s.appendEntry(ctx, tx, accountID, amount, kind, ref, payload)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("credits added",
		zap.String("account_id", accountID.String()),
		zap.String("kind", string(kind)),
		zap.Int64("amount", amount),
		zap.Int64("balance", result.Balance))
	return result, nil
}

// ApplyDailyReset tops the balance up to the daily allowance and never lowers it;
// credit above the allowance (purchases, signup bonus) is kept. It is a CAS on
// the snapshot's (last reset, balance) and reports false when another caller won.
func (s *LedgerService) ApplyDailyReset(ctx context.Context, snapshot *db_models.Account, resetAt int64) (bool, error) {
	newBalance := snapshot.Balance
	if newBalance < snapshot.DailyAllowance {
		newBalance = snapshot.DailyAllowance
	}
	delta := newBalance - snapshot.Balance
	payload, err := marshalDetail(map[string]any{
		"allowance":      snapshot.DailyAllowance,
		"balance_before": snapshot.Balance,
		"previous_reset": snapshot.LastDailyResetAt,
	})
	if err != nil {
		return false, err
	}

	applied := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.accounts.WithTx(tx).ResetDaily(ctx, snapshot.ID,
			snapshot.LastDailyResetAt, snapshot.Balance, newBalance, resetAt)
		if err != nil {
			return utils.DBError("reset daily allowance", err)
		}
		if !ok {
			return nil
		}
		applied = true
		if delta == 0 {
			return nil
		}
		_, err = s.appendEntry(ctx, tx, snapshot.ID, delta, db_models.LedgerDailyReset, nil, payload)
		return err
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.logger.Info("daily allowance reset",
			zap.String("account_id", snapshot.ID.String()),
			zap.Int64("credited", delta),
			zap.Int64("balance", newBalance))
	}
	return applied, nil
}

// appendEntry must run inside the transaction that changed the balance so
// BalanceAfter is the value this mutation produced.
func (s *LedgerService) appendEntry(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, amount int64, kind db_models.LedgerKind, ref *uuid.UUID, detail datatypes.JSON) (*LedgerResult, error) {
	balance, err := s.accounts.WithTx(tx).Balance(ctx, accountID)
	if err != nil {
		return nil, utils.DBError("read balance", err)
	}

	entry := &db_models.LedgerEntry{
		AccountID:    accountID,
		Amount:       amount,
		BalanceAfter: balance,
		Kind:         kind,
		ReferenceID:  ref,
		Detail:       detail,
		CreatedAt:    s.clock().Unix(),
	}
	if err := s.entries.WithTx(tx).Insert(ctx, entry); err != nil {
		return nil, utils.DBError("insert ledger entry", err)
	}
	return &LedgerResult{EntryID: entry.ID, Balance: balance}, nil
}

func marshalDetail(detail map[string]any) (datatypes.JSON, error) {
	if len(detail) == 0 {
		return datatypes.JSON("{}"), nil
	}
	b, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger detail: %w", err)
	}
	return datatypes.JSON(b), nil
}

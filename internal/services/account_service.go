package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"wingman/internal/infra"
	"wingman/internal/models/db_models"
	"wingman/internal/models/request_models"
	"wingman/internal/models/response_models"
	"wingman/internal/pricing"
	"wingman/internal/repositories"
	"wingman/pkg/utils"
)

const (
	idempotencyScopePurchase = "purchase"
	defaultHistoryPageSize   = 20
)

type AccountSettings struct {
	Pricing         pricing.Config
	DefaultTimezone string
}

type AccountServiceInterface interface {
	Login(ctx context.Context, request request_models.LoginRequest) (string, error)
	Signup(ctx context.Context, request request_models.SignUpRequest) (*response_models.AccountResponse, error)
	Summary(ctx context.Context, accountID uuid.UUID) (*response_models.AccountResponse, error)
	History(ctx context.Context, accountID uuid.UUID, page, pageSize int) (*response_models.LedgerHistoryResponse, error)

	// Purchase is what the payment webhook calls once a payment settles.
	// A reference that was already credited is replayed, not credited again.
	Purchase(ctx context.Context, accountID uuid.UUID, credits int64, reference string) (*response_models.PurchaseResponse, error)
	ChangeTier(ctx context.Context, accountID uuid.UUID, tier string) (*response_models.AccountResponse, error)
	Deactivate(ctx context.Context, accountID uuid.UUID) error
}

type AccountService struct {
	db          *gorm.DB
	accountRepo repositories.AccountRepository
	ledgerRepo  repositories.LedgerRepository
	idempotency repositories.IdempotencyRepository
	ledger      LedgerServiceInterface
	quota       QuotaServiceInterface
	tokens      *utils.TokenIssuer
	settings    AccountSettings
	clock       utils.Clock
	logger      *zap.Logger
}

func NewAccountService(
	db *gorm.DB,
	accountRepo repositories.AccountRepository,
	ledgerRepo repositories.LedgerRepository,
	idempotency repositories.IdempotencyRepository,
	ledger LedgerServiceInterface,
	quota QuotaServiceInterface,
	tokens *utils.TokenIssuer,
	settings AccountSettings,
	clock utils.Clock,
	logger *zap.Logger,
) AccountServiceInterface {
	return &AccountService{
		db:          db,
		accountRepo: accountRepo,
		ledgerRepo:  ledgerRepo,
		idempotency: idempotency,
		ledger:      ledger,
		quota:       quota,
		tokens:      tokens,
		settings:    settings,
		clock:       clock,
		logger:      logger.Named("account"),
	}
}

func (a *AccountService) Login(ctx context.Context, request request_models.LoginRequest) (string, error) {
	account, err := a.accountRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(request.Email)))
	if err != nil {
		return "", utils.DBError("find account", err)
	}
	if account == nil {
		return "", utils.ErrInvalidCredentials
	}

	if err := utils.ComparePasswords(account.PasswordHash, request.Password); err != nil {
		return "", utils.ErrInvalidCredentials
	}

	token, err := a.tokens.CreateToken(account.ID, account.Role)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (a *AccountService) Signup(ctx context.Context, request request_models.SignUpRequest) (*response_models.AccountResponse, error) {
	tier := pricing.TierFree
	if request.Tier != "" {
		t, err := pricing.ParseTier(request.Tier)
		if err != nil {
			return nil, &utils.ValidationError{Field: "tier", Reason: err.Error()}
		}
		tier = t
	}

	timezone := request.Timezone
	if timezone == "" {
		timezone = a.settings.DefaultTimezone
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, &utils.ValidationError{Field: "timezone", Reason: "unknown time zone"}
	}

	email := strings.ToLower(strings.TrimSpace(request.Email))
	existing, err := a.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, utils.DBError("find account", err)
	}
	if existing != nil {
		return nil, utils.ErrAccountExists
	}

	hashedPassword, err := utils.HashPassword(request.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	policy := a.settings.Pricing.Policy(tier)
	account := &db_models.Account{
		Name:           request.DisplayName,
		Email:          email,
		PasswordHash:   hashedPassword,
		Role:           "user",
		Tier:           tier,
		DailyAllowance: policy.DailyAllowance,
		Timezone:       timezone,
		// the welcome bonus covers today
		LastDailyResetAt: a.clock().Unix(),
	}

	tx, err := infra.StartTransaction(a.db.WithContext(ctx))
	if err != nil {
		return nil, utils.DBError("begin signup", err)
	}
	err = a.createAccount(ctx, tx, account, policy.WelcomeCredits)
	if err = infra.ReleaseTransaction(tx, err); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, utils.ErrAccountExists
		}
		if errors.Is(err, utils.ErrDatabaseError) {
			return nil, err
		}
		return nil, utils.DBError("signup", err)
	}

	a.logger.Info("account created",
		zap.String("account_id", account.ID.String()),
		zap.String("tier", string(tier)),
		zap.Int64("welcome_credits", policy.WelcomeCredits))
	return a.Summary(ctx, account.ID)
}

func (a *AccountService) createAccount(ctx context.Context, tx *gorm.DB, account *db_models.Account, welcome int64) error {
	if err := a.accountRepo.WithTx(tx).Insert(ctx, account); err != nil {
		return err
	}
	if welcome <= 0 {
		return nil
	}
	_, err := a.ledger.WithTx(tx).Credit(ctx, account.ID, welcome, db_models.LedgerSignupBonus, map[string]any{
		"tier": account.Tier,
	})
	return err
}

func (a *AccountService) Summary(ctx context.Context, accountID uuid.UUID) (*response_models.AccountResponse, error) {
	account, err := a.quota.EnsureFresh(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &response_models.AccountResponse{
		ID:                 account.ID,
		Name:               account.Name,
		Email:              account.Email,
		Role:               account.Role,
		Tier:               account.Tier,
		Balance:            account.Balance,
		DailyAllowance:     account.DailyAllowance,
		Timezone:           account.Timezone,
		FreeQuotaRemaining: a.quota.FreeRemaining(account),
		LastDailyResetAt:   utils.FormatRFC3339(utils.FromUnixSeconds(account.LastDailyResetAt)),
	}, nil
}

func (a *AccountService) History(ctx context.Context, accountID uuid.UUID, page, pageSize int) (*response_models.LedgerHistoryResponse, error) {
	if _, err := a.quota.EnsureFresh(ctx, accountID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultHistoryPageSize
	}

	entries, total, err := a.ledgerRepo.ListByAccount(ctx, accountID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, utils.DBError("list ledger", err)
	}

	resp := &response_models.LedgerHistoryResponse{
		Entries:  make([]response_models.LedgerEntryResponse, 0, len(entries)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, response_models.LedgerEntryResponse{
			ID:           e.ID,
			Kind:         string(e.Kind),
			Amount:       e.Amount,
			BalanceAfter: e.BalanceAfter,
			ReferenceID:  e.ReferenceID,
			Detail:       e.Detail,
			CreatedAt:    utils.FormatRFC3339(utils.FromUnixSeconds(e.CreatedAt)),
		})
	}
	return resp, nil
}

func (a *AccountService) Purchase(ctx context.Context, accountID uuid.UUID, credits int64, reference string) (*response_models.PurchaseResponse, error) {
	if credits <= 0 {
		return nil, &utils.ValidationError{Field: "credits", Reason: "must be positive"}
	}
	if strings.TrimSpace(reference) == "" {
		return nil, &utils.ValidationError{Field: "reference", Reason: "required"}
	}

	now := a.clock()
	var resp *response_models.PurchaseResponse
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// purchase references never expire
		claim, claimed, err := a.idempotency.WithTx(tx).Claim(ctx, accountID, idempotencyScopePurchase, reference,
			now.Unix(), now.AddDate(100, 0, 0).Unix())
		if err != nil {
			return utils.DBError("claim purchase reference", err)
		}
		if !claimed {
			var replay response_models.PurchaseResponse
			if err := json.Unmarshal(claim.Response, &replay); err != nil {
				return fmt.Errorf("decode stored purchase: %w", err)
			}
			replay.Replayed = true
			resp = &replay
			return nil
		}

		res, err := a.ledger.WithTx(tx).Credit(ctx, accountID, credits, db_models.LedgerPurchase, map[string]any{
			"reference": reference,
		})
		if err != nil {
			return err
		}
		resp = &response_models.PurchaseResponse{EntryID: res.EntryID, Credited: credits, Balance: res.Balance}

		stored, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		if err := a.idempotency.WithTx(tx).Complete(ctx, claim.ID, datatypes.JSON(stored)); err != nil {
			return utils.DBError("complete purchase reference", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !resp.Replayed {
		a.logger.Info("credits purchased",
			zap.String("account_id", accountID.String()),
			zap.Int64("credits", credits),
			zap.String("reference", reference))
	}
	return resp, nil
}

func (a *AccountService) ChangeTier(ctx context.Context, accountID uuid.UUID, tier string) (*response_models.AccountResponse, error) {
	t, err := pricing.ParseTier(tier)
	if err != nil {
		return nil, &utils.ValidationError{Field: "tier", Reason: err.Error()}
	}

	ok, err := a.accountRepo.UpdateTier(ctx, accountID, t, a.settings.Pricing.Policy(t).DailyAllowance)
	if err != nil {
		return nil, utils.DBError("update tier", err)
	}
	if !ok {
		return nil, utils.ErrAccountNotFound
	}

	a.logger.Info("tier changed", zap.String("account_id", accountID.String()), zap.String("tier", string(t)))
	return a.Summary(ctx, accountID)
}

func (a *AccountService) Deactivate(ctx context.Context, accountID uuid.UUID) error {
	ok, err := a.accountRepo.SoftDelete(ctx, accountID)
	if err != nil {
		return utils.DBError("deactivate account", err)
	}
	if !ok {
		return utils.ErrAccountNotFound
	}
	a.logger.Info("account deactivated", zap.String("account_id", accountID.String()))
	return nil
}

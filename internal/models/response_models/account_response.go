package response_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"wingman/internal/pricing"
)

type AccountLoginResponse struct {
	Token string `json:"token"`
}

type AccountResponse struct {
	ID                 uuid.UUID    `json:"id"`
	Name               string       `json:"name"`
	Email              string       `json:"email"`
	Role               string       `json:"role"`
	Tier               pricing.Tier `json:"tier"`
	Balance            int64        `json:"balance"`
	DailyAllowance     int64        `json:"daily_allowance"`
	Timezone           string       `json:"timezone"`
	FreeQuotaRemaining int          `json:"free_quota_remaining"`
	LastDailyResetAt   string       `json:"last_daily_reset_at,omitempty"`
}

type LedgerEntryResponse struct {
	ID           uuid.UUID      `json:"id"`
	Kind         string         `json:"kind"`
	Amount       int64          `json:"amount"`
	BalanceAfter int64          `json:"balance_after"`
	ReferenceID  *uuid.UUID     `json:"reference_id,omitempty"`
	Detail       datatypes.JSON `json:"detail,omitempty"`
	CreatedAt    string         `json:"created_at"`
}

type LedgerHistoryResponse struct {
	Entries  []LedgerEntryResponse `json:"entries"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

type PurchaseResponse struct {
	EntryID  uuid.UUID `json:"entry_id"`
	Credited int64     `json:"credited"`
	Balance  int64     `json:"balance"`
	Replayed bool      `json:"replayed"`
}

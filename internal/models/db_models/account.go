package db_models

import "wingman/internal/pricing"

// Account holds the credit balance. Balance and quota columns are only ever
// changed through conditional UPDATEs in AccountRepository, never by Save.
type Account struct {
	BaseModel
	Name           string
	Email          string       `gorm:"uniqueIndex"`
	PasswordHash   string       `json:"-"`
	Role           string       `gorm:"type:varchar(16);not null;default:'user'"`
	Tier           pricing.Tier `gorm:"type:varchar(16);not null;default:'free'"`
	Balance        int64        `gorm:"not null;default:0;check:balance >= 0"`
	DailyAllowance int64        `gorm:"not null;default:0"`
	Timezone       string       `gorm:"type:varchar(64);not null;default:'UTC'"`

	// Unix seconds of the last daily top-up; 0 means never.
	LastDailyResetAt int64 `gorm:"not null;default:0"`

	FreeMonthlyUses int   `gorm:"not null;default:0"`
	FreeLastUseAt   int64 `gorm:"not null;default:0"`
}

package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type LedgerKind string

const (
	LedgerSignupBonus LedgerKind = "signup_bonus"
	LedgerPurchase    LedgerKind = "purchase"
	LedgerActionSpend LedgerKind = "action_spend"
	LedgerRefund      LedgerKind = "refund"
	LedgerDailyReset  LedgerKind = "daily_reset"
)

// LedgerEntry is append-only. Amount is signed: negative is a debit.
type LedgerEntry struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	AccountID    uuid.UUID  `gorm:"type:uuid;index;not null"`
	Amount       int64      `gorm:"not null"`
	BalanceAfter int64      `gorm:"not null"`
	Kind         LedgerKind `gorm:"type:varchar(32);index;not null"`
	// ReferenceID links a refund back to the action_spend it reverses.
	ReferenceID *uuid.UUID     `gorm:"type:uuid;index"`
	Detail      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   int64          `gorm:"autoCreateTime;index"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type IdempotencyStatus string

const (
	IdempotencyInProgress IdempotencyStatus = "in_progress"
	IdempotencyCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord stores the first response produced for (account, scope, key)
// so that a retried request replays it instead of re-running side effects.
type IdempotencyRecord struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	AccountID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:ux_idem_account_scope_key,priority:1"`
	Scope     string            `gorm:"type:varchar(32);not null;uniqueIndex:ux_idem_account_scope_key,priority:2"`
	Key       string            `gorm:"type:varchar(128);not null;uniqueIndex:ux_idem_account_scope_key,priority:3"`
	Status    IdempotencyStatus `gorm:"type:varchar(16);not null"`
	Response  datatypes.JSON    `gorm:"type:jsonb"`
	CreatedAt int64             `gorm:"autoCreateTime"`
	ExpiresAt int64             `gorm:"index"`
}

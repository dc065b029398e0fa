package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"wingman/internal/pricing"
)

type AnalysisStatus string

const (
	AnalysisQueued AnalysisStatus = "queued"
	AnalysisDone   AnalysisStatus = "done"
	AnalysisFailed AnalysisStatus = "failed"
)

type AnalysisRequest struct {
	BaseModel
	AccountID uuid.UUID                   `gorm:"type:uuid;not null;index:idx_analysis_cache,priority:1"`
	InputText *string                     `gorm:"type:text"`
	Images    datatypes.JSONSlice[string] `gorm:"type:jsonb"`

	RequestedMode pricing.Mode `gorm:"type:varchar(16)"`
	ResolvedMode  pricing.Mode `gorm:"type:varchar(16);not null"`
	ResolvedModel string       `gorm:"type:varchar(128);not null"`
	Tier          pricing.Tier `gorm:"type:varchar(16);not null"`
	DeepToggle    bool         `gorm:"not null;default:false"`
	ExplainToggle bool         `gorm:"not null;default:false"`

	// CreditsCharged is fixed at charge time and never rewritten.
	CreditsCharged  int64 `gorm:"not null;default:0"`
	UsedFreeQuota   bool  `gorm:"not null;default:false"`
	EstimatedTokens int   `gorm:"not null;default:0"`
	TokensActual    *int

	Fingerprint   string         `gorm:"type:char(64);not null;index:idx_analysis_cache,priority:2"`
	Status        AnalysisStatus `gorm:"type:varchar(16);not null;index:idx_analysis_cache,priority:3"`
	Result        datatypes.JSON `gorm:"type:jsonb"`
	FailureReason string         `gorm:"type:text"`

	LedgerEntryID *uuid.UUID `gorm:"type:uuid"`
	RefundEntryID *uuid.UUID `gorm:"type:uuid"`
	CompletedAt   *int64
}

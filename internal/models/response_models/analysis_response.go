package response_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"wingman/internal/pricing"
)

type AnalysisSubmitResponse struct {
	AnalysisID       uuid.UUID         `json:"analysis_id"`
	Status           string            `json:"status"`
	CreditsCharged   int64             `json:"credits_charged"`
	CreditsRemaining int64             `json:"credits_remaining"`
	ResolvedMode     pricing.Mode      `json:"resolved_mode"`
	ResolvedModel    string            `json:"resolved_model"`
	Breakdown        pricing.Breakdown `json:"breakdown"`
	EstimatedTokens  int               `json:"estimated_tokens"`
	CacheHit         bool              `json:"cache_hit"`
	FreeQuotaUsed    bool              `json:"free_quota_used"`
	Result           datatypes.JSON    `json:"result,omitempty"`
}

type AnalysisQuoteResponse struct {
	ResolvedMode       pricing.Mode      `json:"resolved_mode"`
	ResolvedModel      string            `json:"resolved_model"`
	CreditsRequired    int64             `json:"credits_required"`
	Breakdown          pricing.Breakdown `json:"breakdown"`
	EstimatedTokens    int               `json:"estimated_tokens"`
	Balance            int64             `json:"balance"`
	FreeQuotaRemaining int               `json:"free_quota_remaining"`
}

type AnalysisStatusResponse struct {
	AnalysisID     uuid.UUID      `json:"analysis_id"`
	Status         string         `json:"status"`
	ResolvedMode   pricing.Mode   `json:"resolved_mode"`
	ResolvedModel  string         `json:"resolved_model"`
	CreditsCharged int64          `json:"credits_charged"`
	Refunded       bool           `json:"refunded"`
	Result         datatypes.JSON `json:"result,omitempty"`
	TokensActual   *int           `json:"tokens_actual,omitempty"`
	FailureReason  string         `json:"failure_reason,omitempty"`
	CreatedAt      string         `json:"created_at"`
	CompletedAt    string         `json:"completed_at,omitempty"`
}

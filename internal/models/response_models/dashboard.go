package response_models

import (
	"time"

	"github.com/google/uuid"
)

type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// "day" | "week"
	Interval string `json:"interval"`
}

type KPIBlock struct {
	TotalAccounts int64 `json:"total_accounts"`
	NewAccounts   int64 `json:"new_accounts"`

	AnalysesTotal  int64   `json:"analyses_total"`
	AnalysesDone   int64   `json:"analyses_done"`
	AnalysesFailed int64   `json:"analyses_failed"`
	AnalysesQueued int64   `json:"analyses_queued"`
	FailurePct     float64 `json:"failure_pct"` // failed / (done + failed) * 100

	CreditsSpent     int64 `json:"credits_spent"` // action_spend minus refunds
	CreditsRefunded  int64 `json:"credits_refunded"`
	CreditsPurchased int64 `json:"credits_purchased"`
	CreditsGranted   int64 `json:"credits_granted"` // signup bonus + daily resets
}

type SeriesPoint struct {
	Bucket time.Time `json:"bucket"`
	Value  int64     `json:"value"`
}

type CountSeries struct {
	Points []SeriesPoint `json:"points"`
	Total  int64         `json:"total"`
}

type TierMixItem struct {
	Tier    string  `json:"tier"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

type ModeUsageItem struct {
	Mode               string  `json:"mode"`
	Count              int64   `json:"count"`
	Credits            int64   `json:"credits"`
	AvgEstimatedTokens float64 `json:"avg_estimated_tokens"`
	AvgActualTokens    float64 `json:"avg_actual_tokens"`
}

type TopSpender struct {
	AccountID uuid.UUID `json:"account_id"`
	Email     string    `json:"email"`
	Tier      string    `json:"tier"`
	Spent     int64     `json:"spent"`
}

type DashboardReport struct {
	Range       TimeRange       `json:"range"`
	KPIs        KPIBlock        `json:"kpis"`
	Spend       CountSeries     `json:"spend"`
	TierMix     []TierMixItem   `json:"tier_mix"`
	ModeUsage   []ModeUsageItem `json:"mode_usage"`
	TopSpenders []TopSpender    `json:"top_spenders"`
}

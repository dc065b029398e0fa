package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingman/internal/models/db_models"
	resp "wingman/internal/models/response_models"
	"wingman/internal/pricing"
	"wingman/internal/repositories"
)

func TestBuildDashboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewDashboardService(repositories.NewDashboardRepository(env.db), func() time.Time { return env.now })

	pro := env.seedAccount(t, pricing.TierPro, 100)
	plus := env.seedAccount(t, pricing.TierPlus, 300)
	env.seedAccount(t, pricing.TierFree, 0)

	env.submitAndProcess(t, pro.ID, textRequest(strings.Repeat("a", 150)))
	env.ai.err = errProvider
	env.submitAndProcess(t, plus.ID, textRequest(strings.Repeat("b", 300)))
	env.ai.err = nil
	env.submitAndProcess(t, plus.ID, textRequest("short one"))
	_, err := env.account.Purchase(ctx, pro.ID, 200, "pay_1")
	require.NoError(t, err)

	report, err := svc.BuildDashboard(ctx, resp.TimeRange{
		Start: env.now.Add(-time.Hour),
		End:   env.now.Add(time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.KPIs.TotalAccounts)
	assert.Equal(t, "day", report.Range.Interval)
	assert.Equal(t, int64(3), report.KPIs.AnalysesTotal)
	assert.Equal(t, int64(2), report.KPIs.AnalysesDone)
	assert.Equal(t, int64(1), report.KPIs.AnalysesFailed)
	assert.InDelta(t, 33.33, report.KPIs.FailurePct, 0.01)

	// 5 (pro) + 12 (plus, refunded) + 5 (plus)
	assert.Equal(t, int64(12), report.KPIs.CreditsRefunded)
	assert.Equal(t, int64(10), report.KPIs.CreditsSpent)
	assert.Equal(t, int64(200), report.KPIs.CreditsPurchased)
	require.Len(t, report.Spend.Points, 1)
	assert.Equal(t, int64(22), report.Spend.Total)

	require.Len(t, report.TopSpenders, 2)
	assert.Equal(t, int64(5), report.TopSpenders[0].Spent)

	require.Len(t, report.TierMix, 3)
	var modes []string
	for _, m := range report.ModeUsage {
		modes = append(modes, m.Mode)
	}
	assert.ElementsMatch(t, []string{string(pricing.ModeSnapshot), string(pricing.ModeExpanded)}, modes)
	assert.Empty(t, env.entriesOf(t, pro.ID, db_models.LedgerDailyReset))
}

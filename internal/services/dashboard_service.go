package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	dbm "wingman/internal/models/db_models"
	resp "wingman/internal/models/response_models"
	"wingman/internal/repositories"
	"wingman/pkg/utils"
)

const topSpendersLimit = 10

type DashboardService interface {
	BuildDashboard(ctx context.Context, rng resp.TimeRange) (*resp.DashboardReport, error)
}

type dashboardService struct {
	repo  repositories.DashboardRepository
	clock utils.Clock
}

func NewDashboardService(repo repositories.DashboardRepository, clock utils.Clock) DashboardService {
	return &dashboardService{repo: repo, clock: clock}
}

// normalizeRange ensures sane defaults and ordering
func (s *dashboardService) normalizeRange(r resp.TimeRange) resp.TimeRange {
	out := r
	if out.Interval == "" {
		out.Interval = "day"
	}
	if out.End.IsZero() {
		out.End = s.clock().UTC()
	}
	if out.Start.IsZero() {
		out.Start = out.End.AddDate(0, 0, -30) // last 30 days default
	}
	if out.Start.After(out.End) {
		out.Start, out.End = out.End, out.Start
	}
	return out
}

func bucketWidth(interval string) time.Duration {
	if interval == "week" {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) * 100.0 / float64(whole)
}

func (s *dashboardService) BuildDashboard(ctx context.Context, rng resp.TimeRange) (*resp.DashboardReport, error) {
	rng = s.normalizeRange(rng)
	report := &resp.DashboardReport{Range: rng}

	// ---------- Accounts ----------
	totalAccounts, err := s.repo.CountTotalAccounts(ctx)
	if err != nil {
		return nil, utils.DBError("count accounts", err)
	}
	newAccounts, err := s.repo.CountNewAccounts(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, utils.DBError("count new accounts", err)
	}
	report.KPIs.TotalAccounts = totalAccounts
	report.KPIs.NewAccounts = newAccounts

	tierRows, err := s.repo.AccountsByTier(ctx)
	if err != nil {
		return nil, utils.DBError("tier mix", err)
	}
	report.TierMix = make([]resp.TierMixItem, 0, len(tierRows))
	for _, r := range tierRows {
		report.TierMix = append(report.TierMix, resp.TierMixItem{
			Tier:    r.Tier,
			Count:   r.Count,
			Percent: percent(r.Count, totalAccounts),
		})
	}

	// ---------- Credits ----------
	kindRows, err := s.repo.CreditsByKind(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, utils.DBError("credits by kind", err)
	}
	var spent, refunded int64
	for _, r := range kindRows {
		switch dbm.LedgerKind(r.Kind) {
		case dbm.LedgerActionSpend:
			spent = -r.Sum
		case dbm.LedgerRefund:
			refunded = r.Sum
		case dbm.LedgerPurchase:
			report.KPIs.CreditsPurchased += r.Sum
		case dbm.LedgerSignupBonus, dbm.LedgerDailyReset:
			report.KPIs.CreditsGranted += r.Sum
		}
	}
	report.KPIs.CreditsSpent = spent - refunded
	report.KPIs.CreditsRefunded = refunded

	width := bucketWidth(rng.Interval)
	spendRows, err := s.repo.SpendSeries(ctx, rng.Start, rng.End, width)
	if err != nil {
		return nil, utils.DBError("spend series", err)
	}
	for _, r := range spendRows {
		report.Spend.Points = append(report.Spend.Points, resp.SeriesPoint{
			Bucket: rng.Start.Add(time.Duration(r.Bucket) * width),
			Value:  r.Sum,
		})
		report.Spend.Total += r.Sum
	}

	spenderRows, err := s.repo.TopSpenders(ctx, rng.Start, rng.End, topSpendersLimit)
	if err != nil {
		return nil, utils.DBError("top spenders", err)
	}
	for _, r := range spenderRows {
		id, err := uuid.Parse(r.AccountID)
		if err != nil {
			return nil, errors.New("invalid account UUID in top spenders")
		}
		report.TopSpenders = append(report.TopSpenders, resp.TopSpender{
			AccountID: id,
			Email:     r.Email,
			Tier:      r.Tier,
			Spent:     r.Spent,
		})
	}

	// ---------- Analyses ----------
	statusRows, err := s.repo.AnalysesByStatus(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, utils.DBError("analyses by status", err)
	}
	for _, r := range statusRows {
		report.KPIs.AnalysesTotal += r.Count
		switch dbm.AnalysisStatus(r.Status) {
		case dbm.AnalysisDone:
			report.KPIs.AnalysesDone = r.Count
		case dbm.AnalysisFailed:
			report.KPIs.AnalysesFailed = r.Count
		case dbm.AnalysisQueued:
			report.KPIs.AnalysesQueued = r.Count
		}
	}
	report.KPIs.FailurePct = percent(report.KPIs.AnalysesFailed, report.KPIs.AnalysesDone+report.KPIs.AnalysesFailed)

	modeRows, err := s.repo.AnalysesByMode(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, utils.DBError("analyses by mode", err)
	}
	for _, r := range modeRows {
		report.ModeUsage = append(report.ModeUsage, resp.ModeUsageItem{
			Mode:               r.Mode,
			Count:              r.Count,
			Credits:            r.Credits,
			AvgEstimatedTokens: r.AvgEstimated,
			AvgActualTokens:    r.AvgActual,
		})
	}

	return report, nil
}

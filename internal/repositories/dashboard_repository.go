package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	dbm "wingman/internal/models/db_models"
)

// DashboardRepository serves the admin usage report. Queries avoid
// dialect-specific date functions: timestamps are unix seconds and buckets are
// computed with integer division.
type DashboardRepository interface {
	// KPIs / counts
	CountTotalAccounts(ctx context.Context) (int64, error)
	CountNewAccounts(ctx context.Context, start, end time.Time) (int64, error)
	AccountsByTier(ctx context.Context) ([]TierCountRow, error)

	// Credits
	CreditsByKind(ctx context.Context, start, end time.Time) ([]KindSumRow, error)
	SpendSeries(ctx context.Context, start, end time.Time, bucket time.Duration) ([]BucketSum, error)
	TopSpenders(ctx context.Context, start, end time.Time, limit int) ([]SpenderRow, error)

	// Analyses
	AnalysesByStatus(ctx context.Context, start, end time.Time) ([]StatusCountRow, error)
	AnalysesByMode(ctx context.Context, start, end time.Time) ([]ModeUsageRow, error)
}

type dashboardRepository struct {
	db *gorm.DB
}

func NewDashboardRepository(db *gorm.DB) DashboardRepository {
	return &dashboardRepository{db: db}
}

// ---------- Row helpers ----------
type BucketSum struct {
	Bucket int64 `gorm:"column:bucket"` // index from the range start
	Sum    int64 `gorm:"column:sum"`
}

type TierCountRow struct {
	Tier  string `gorm:"column:tier"`
	Count int64  `gorm:"column:count"`
}

type KindSumRow struct {
	Kind  string `gorm:"column:kind"`
	Sum   int64  `gorm:"column:sum"`
	Count int64  `gorm:"column:count"`
}

type SpenderRow struct {
	AccountID string `gorm:"column:account_id"`
	Email     string `gorm:"column:email"`
	Tier      string `gorm:"column:tier"`
	Spent     int64  `gorm:"column:spent"`
}

type StatusCountRow struct {
	Status string `gorm:"column:status"`
	Count  int64  `gorm:"column:count"`
}

type ModeUsageRow struct {
	Mode         string  `gorm:"column:mode"`
	Count        int64   `gorm:"column:count"`
	Credits      int64   `gorm:"column:credits"`
	AvgEstimated float64 `gorm:"column:avg_estimated"`
	AvgActual    float64 `gorm:"column:avg_actual"`
}

// ---------- Counts ----------
func (r *dashboardRepository) CountTotalAccounts(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&dbm.Account{}).Count(&n).Error
	return n, err
}

func (r *dashboardRepository) CountNewAccounts(ctx context.Context, start, end time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&dbm.Account{}).
		Where("created_at BETWEEN ? AND ?", start.Unix(), end.Unix()).
		Count(&n).Error
	return n, err
}

func (r *dashboardRepository) AccountsByTier(ctx context.Context) ([]TierCountRow, error) {
	var rows []TierCountRow
	err := r.db.WithContext(ctx).
		Model(&dbm.Account{}).
		Select("tier, COUNT(*) AS count").
		Group("tier").
		Order("tier ASC").
		Find(&rows).Error
	return rows, err
}

// ---------- Credits ----------
func (r *dashboardRepository) CreditsByKind(ctx context.Context, start, end time.Time) ([]KindSumRow, error) {
	var rows []KindSumRow
	err := r.db.WithContext(ctx).
		Model(&dbm.LedgerEntry{}).
		Select("kind, SUM(amount) AS sum, COUNT(*) AS count").
		Where("created_at BETWEEN ? AND ?", start.Unix(), end.Unix()).
		Group("kind").
		Order("kind ASC").
		Find(&rows).Error
	return rows, err
}

// SpendSeries sums debits per bucket; the result is positive credits spent.
func (r *dashboardRepository) SpendSeries(ctx context.Context, start, end time.Time, bucket time.Duration) ([]BucketSum, error) {
	var rows []BucketSum
	width := int64(bucket / time.Second)
	err := r.db.WithContext(ctx).
		Model(&dbm.LedgerEntry{}).
		Select("(created_at - ?) / ? AS bucket, -SUM(amount) AS sum", start.Unix(), width).
		Where("kind = ?", dbm.LedgerActionSpend).
		Where("created_at BETWEEN ? AND ?", start.Unix(), end.Unix()).
		Group("bucket").
		Order("bucket ASC").
		Find(&rows).Error
	return rows, err
}

// TopSpenders nets refunds against spends so failed analyses do not count.
func (r *dashboardRepository) TopSpenders(ctx context.Context, start, end time.Time, limit int) ([]SpenderRow, error) {
	var rows []SpenderRow
	err := r.db.WithContext(ctx).
		Table("ledger_entries l").
		Select("l.account_id, a.email, a.tier, -SUM(l.amount) AS spent").
		Joins("JOIN accounts a ON a.id = l.account_id").
		Where("l.kind IN ?", []dbm.LedgerKind{dbm.LedgerActionSpend, dbm.LedgerRefund}).
		Where("l.created_at BETWEEN ? AND ?", start.Unix(), end.Unix()).
		Group("l.account_id, a.email, a.tier").
		Having("-SUM(l.amount) > 0").
		Order("spent DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ---------- Analyses ----------
func (r *dashboardRepository) AnalysesByStatus(ctx context.Context, start, end time.Time) ([]StatusCountRow, error) {
	var rows []StatusCountRow
	err := r.db.WithContext(ctx).
		Model(&dbm.AnalysisRequest{}).
		Select("status, COUNT(*) AS count").
		Where("created_at BETWEEN ? AND ?", start.Unix(), end.Unix()).
		Group("status").
		Find(&rows).Error
	return rows, err
}

func (r *dashboardRepository) AnalysesByMode(ctx context.Context, start, end time.Time) ([]ModeUsageRow, error) {
	var rows []ModeUsageRow
	err := r.db.WithContext(ctx).
		Model(&dbm.AnalysisRequest{}).
		Select(`
			resolved_mode AS mode,
			COUNT(*) AS count,
			COALESCE(SUM(credits_charged), 0) AS credits,
			COALESCE(AVG(estimated_tokens), 0) AS avg_estimated,
			COALESCE(AVG(tokens_actual), 0) AS avg_actual`).
		Where("created_at BETWEEN ? AND ?", start.Unix(), end.Unix()).
		Group("resolved_mode").
		Order("count DESC").
		Find(&rows).Error
	return rows, err
}

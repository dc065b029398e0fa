package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wingman/internal/infra"
	"wingman/internal/metrics"
	"wingman/internal/models/db_models"
	"wingman/internal/pricing"
	"wingman/internal/repositories"
	"wingman/pkg/jobqueue"
	"wingman/pkg/utils"
)

const validAnalysis = `{"summary":"They are keen.","tone":"playful","suggested_replies":["Sure!","Tell me more"]}`

type fakeCompletion struct {
	mu      sync.Mutex
	calls   []utils.CompletionRequest
	content string
	tokens  int
	err     error
	block   bool
}

func (f *fakeCompletion) Complete(ctx context.Context, req utils.CompletionRequest) (utils.CompletionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	content, tokens, err, block := f.content, f.tokens, f.err, f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return utils.CompletionResult{}, ctx.Err()
	}
	if err != nil {
		return utils.CompletionResult{}, err
	}
	return utils.CompletionResult{Content: content, TokensUsed: tokens}, nil
}

func (f *fakeCompletion) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *fakeDispatcher) Enqueue(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

func (d *fakeDispatcher) Start(jobqueue.Handler) error { return nil }
func (d *fakeDispatcher) Stop(context.Context) error    { return nil }

func (d *fakeDispatcher) enqueued() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

type testEnv struct {
	db  *gorm.DB
	now time.Time

	accounts repositories.AccountRepository
	entries  repositories.LedgerRepository
	analyses repositories.AnalysisRepository
	idem     repositories.IdempotencyRepository

	ledger   LedgerServiceInterface
	quota    QuotaServiceInterface
	analysis *AnalysisService
	account  AccountServiceInterface

	ai         *fakeCompletion
	dispatcher *fakeDispatcher
	settings   AnalysisSettings
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, infra.Migrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		db:         newTestDB(t),
		now:        time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		ai:         &fakeCompletion{content: validAnalysis, tokens: 321},
		dispatcher: &fakeDispatcher{},
	}
	clock := func() time.Time { return env.now }
	log := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())

	env.accounts = repositories.NewAccountRepository(env.db)
	env.entries = repositories.NewLedgerRepository(env.db)
	env.analyses = repositories.NewAnalysisRepository(env.db)
	env.idem = repositories.NewIdempotencyRepository(env.db)

	cfg := pricing.DefaultConfig()
	env.ledger = NewLedgerService(env.db, env.accounts, env.entries, clock, log)
	env.quota = NewQuotaService(env.accounts, env.ledger, cfg, clock, log)
	env.settings = AnalysisSettings{
		Pricing:        cfg,
		CacheRetention: 30 * 24 * time.Hour,
		IdempotencyTTL: 24 * time.Hour,
		AITimeout:      2 * time.Second,
		Temperature:    0.7,
	}
	env.analysis = NewAnalysisService(env.db, env.accounts, env.analyses, env.idem, env.ledger, env.quota,
		env.ai, env.dispatcher, env.settings, m, clock, log).(*AnalysisService)
	env.account = NewAccountService(env.db, env.accounts, env.entries, env.idem, env.ledger, env.quota,
		utils.NewTokenIssuer("test-secret", time.Hour),
		AccountSettings{Pricing: cfg, DefaultTimezone: "UTC"}, clock, log)
	return env
}

// seedAccount inserts an account that already had today's reset.
func (e *testEnv) seedAccount(t *testing.T, tier pricing.Tier, balance int64) *db_models.Account {
	t.Helper()
	acc := &db_models.Account{
		Name:             "Test " + string(tier),
		Email:            uuid.NewString() + "@example.com",
		Tier:             tier,
		Balance:          balance,
		DailyAllowance:   pricing.DefaultConfig().Policy(tier).DailyAllowance,
		Timezone:         "UTC",
		LastDailyResetAt: e.now.Unix(),
	}
	require.NoError(t, e.accounts.Insert(context.Background(), acc))
	return acc
}

func (e *testEnv) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	b, err := e.accounts.Balance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (e *testEnv) entriesOf(t *testing.T, id uuid.UUID, kind db_models.LedgerKind) []db_models.LedgerEntry {
	t.Helper()
	var out []db_models.LedgerEntry
	require.NoError(t, e.db.Where("account_id = ? AND kind = ?", id, kind).Order("created_at").Find(&out).Error)
	return out
}

func (e *testEnv) analysisCount(t *testing.T, accountID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&db_models.AnalysisRequest{}).Where("account_id = ?", accountID).Count(&n).Error)
	return n
}

var errProvider = errors.New("provider exploded")

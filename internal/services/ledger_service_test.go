package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingman/internal/models/db_models"
	"wingman/internal/pricing"
	"wingman/pkg/utils"
)

func TestReserveWritesBalanceAndEntry(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, pricing.TierPro, 100)

	res, err := env.ledger.Reserve(context.Background(), acc.ID, 30, db_models.LedgerActionSpend, map[string]any{"note": "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(70), res.Balance)
	assert.Equal(t, int64(70), env.balance(t, acc.ID))

	spends := env.entriesOf(t, acc.ID, db_models.LedgerActionSpend)
	require.Len(t, spends, 1)
	assert.Equal(t, res.EntryID, spends[0].ID)
	assert.Equal(t, int64(-30), spends[0].Amount)
	assert.Equal(t, int64(70), spends[0].BalanceAfter)
	assert.JSONEq(t, `{"note":"x"}`, string(spends[0].Detail))
}

func TestReserveInsufficientChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, pricing.TierPro, 10)

	_, err := env.ledger.Reserve(context.Background(), acc.ID, 20, db_models.LedgerActionSpend, nil)
	require.ErrorIs(t, err, utils.ErrInsufficientCredits)

	var ice *utils.InsufficientCreditsError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, int64(10), ice.Balance)
	assert.Equal(t, int64(20), ice.Required)

	assert.Equal(t, int64(10), env.balance(t, acc.ID))
	assert.Empty(t, env.entriesOf(t, acc.ID, db_models.LedgerActionSpend))
}

func TestLedgerRejectsUnknownAccountAndBadAmounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ledger.Reserve(ctx, uuid.New(), 5, db_models.LedgerActionSpend, nil)
	assert.ErrorIs(t, err, utils.ErrAccountNotFound)

	_, err = env.ledger.Credit(ctx, uuid.New(), 5, db_models.LedgerPurchase, nil)
	assert.ErrorIs(t, err, utils.ErrAccountNotFound)

	acc := env.seedAccount(t, pricing.TierPro, 10)
	_, err = env.ledger.Reserve(ctx, acc.ID, 0, db_models.LedgerActionSpend, nil)
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
	_, err = env.ledger.Credit(ctx, acc.ID, -5, db_models.LedgerPurchase, nil)
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}

func TestConcurrentReservesNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	const start = int64(100)
	acc := env.seedAccount(t, pricing.TierPro, start)

	amounts := []int64{7, 13, 5, 20, 11, 3, 17, 9, 25, 8, 6, 14, 19, 4, 12, 10, 2, 16, 21, 1}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded []int64
		failed    []int64
	)
	for _, amt := range amounts {
		wg.Add(1)
		go func(amt int64) {
			defer wg.Done()
			_, err := env.ledger.Reserve(context.Background(), acc.ID, amt, db_models.LedgerActionSpend, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, utils.ErrInsufficientCredits)
				failed = append(failed, amt)
				return
			}
			succeeded = append(succeeded, amt)
		}(amt)
	}
	wg.Wait()

	final := env.balance(t, acc.ID)
	assert.GreaterOrEqual(t, final, int64(0))

	var spent int64
	for _, a := range succeeded {
		spent += a
	}
	assert.Equal(t, start-spent, final)
	assert.Len(t, env.entriesOf(t, acc.ID, db_models.LedgerActionSpend), len(succeeded))

	// the balance only went down, so a rejected amount that fits now would
	// also have fitted when it was rejected
	for _, a := range failed {
		assert.Greater(t, a, final, "reserve of %d was rejected although it fits", a)
	}
}

func TestRefundRestoresBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.seedAccount(t, pricing.TierPlus, 300)

	spend, err := env.ledger.Reserve(ctx, acc.ID, 24, db_models.LedgerActionSpend, nil)
	require.NoError(t, err)
	refund, err := env.ledger.Refund(ctx, acc.ID, 24, spend.EntryID, map[string]any{"reason": "test"})
	require.NoError(t, err)

	assert.Equal(t, int64(300), refund.Balance)
	assert.Equal(t, int64(300), env.balance(t, acc.ID))

	found, err := env.entries.FindByReference(ctx, spend.EntryID, db_models.LedgerRefund)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, refund.EntryID, found.ID)
	assert.Equal(t, int64(24), found.Amount)
}

func TestApplyDailyReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.seedAccount(t, pricing.TierPro, 20)
	acc.LastDailyResetAt = 0
	require.NoError(t, env.db.Model(acc).Update("last_daily_reset_at", 0).Error)

	applied, err := env.ledger.ApplyDailyReset(ctx, acc, env.now.Unix())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(100), env.balance(t, acc.ID))

	resets := env.entriesOf(t, acc.ID, db_models.LedgerDailyReset)
	require.Len(t, resets, 1)
	assert.Equal(t, int64(80), resets[0].Amount)

	// same stale snapshot again: the CAS no longer matches
	applied, err = env.ledger.ApplyDailyReset(ctx, acc, env.now.Unix())
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Len(t, env.entriesOf(t, acc.ID, db_models.LedgerDailyReset), 1)
}

func TestApplyDailyResetKeepsHigherBalance(t *testing.T) {
	env := newTestEnv(t)
	acc := env.seedAccount(t, pricing.TierPro, 250)
	require.NoError(t, env.db.Model(acc).Update("last_daily_reset_at", 0).Error)
	acc.LastDailyResetAt = 0

	applied, err := env.ledger.ApplyDailyReset(context.Background(), acc, env.now.Unix())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(250), env.balance(t, acc.ID))
	assert.Empty(t, env.entriesOf(t, acc.ID, db_models.LedgerDailyReset))
}

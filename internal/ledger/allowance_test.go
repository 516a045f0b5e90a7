package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/allowance-ledger/internal/interfaces"
	"github.com/sheikh-saqib/allowance-ledger/internal/models"
	"github.com/sheikh-saqib/allowance-ledger/internal/storage/memory"
)

func (f fixture) allowance(t *testing.T, accountID string, freq models.Frequency, amount int64, active bool) {
	t.Helper()
	_, err := f.ledger.UpsertAllowanceConfig(context.Background(), accountID, freq, amount, active)
	require.NoError(t, err)
}

func TestRunPayoutCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("pays a never paid allowance once", func(t *testing.T) {
		f := newFixture(t)
		f.account(t, "kid", 100)
		f.allowance(t, "kid", models.FrequencyWeekly, 20, true)

		result, err := f.ledger.RunPayoutCycle(ctx, wednesday)
		require.NoError(t, err)
		assert.Equal(t, PayoutResult{Processed: 1}, result)
		assert.Equal(t, int64(120), f.balance(t, "kid"))

		txns, err := f.ledger.ListTransactions(ctx, "kid", 1)
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, models.KindAllowance, txns[0].Kind)
		assert.Equal(t, "Weekly allowance", txns[0].Description)
		assert.Equal(t, int64(20), txns[0].Amount)

		cfg, err := f.ledger.GetAllowanceConfig(ctx, "kid")
		require.NoError(t, err)
		require.NotNil(t, cfg.LastPaid)
		assert.True(t, wednesday.Equal(*cfg.LastPaid))

		again, err := f.ledger.RunPayoutCycle(ctx, wednesday)
		require.NoError(t, err)
		assert.Equal(t, PayoutResult{Skipped: 1}, again)
		assert.Equal(t, int64(120), f.balance(t, "kid"))
		f.assertConsistent(t, "kid")
	})

	t.Run("due again after the interval", func(t *testing.T) {
		f := newFixture(t)
		f.account(t, "kid", 0)
		f.allowance(t, "kid", models.FrequencyDaily, 5, true)

		_, err := f.ledger.RunPayoutCycle(ctx, wednesday)
		require.NoError(t, err)

		early, err := f.ledger.RunPayoutCycle(ctx, wednesday.Add(23*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, early.Skipped)

		onTime, err := f.ledger.RunPayoutCycle(ctx, wednesday.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, onTime.Processed)
		assert.Equal(t, int64(10), f.balance(t, "kid"))
	})

	t.Run("inactive configs are not listed", func(t *testing.T) {
		f := newFixture(t)
		f.account(t, "kid", 0)
		f.allowance(t, "kid", models.FrequencyWeekly, 20, false)

		result, err := f.ledger.RunPayoutCycle(ctx, wednesday)
		require.NoError(t, err)
		assert.Equal(t, PayoutResult{}, result)
		assert.Equal(t, int64(0), f.balance(t, "kid"))
	})

	t.Run("mixed batch", func(t *testing.T) {
		f := newFixture(t)
		for _, id := range []string{"a", "b", "c"} {
			f.account(t, id, 0)
		}
		f.allowance(t, "a", models.FrequencyWeekly, 20, true)
		f.allowance(t, "b", models.FrequencyMonthly, 50, true)
		f.allowance(t, "c", models.FrequencyDaily, 3, true)

		_, err := f.ledger.RunPayoutCycle(ctx, wednesday)
		require.NoError(t, err)

		result, err := f.ledger.RunPayoutCycle(ctx, wednesday.AddDate(0, 0, 7))
		require.NoError(t, err)
		assert.Equal(t, PayoutResult{Processed: 2, Skipped: 1}, result)
		assert.Equal(t, int64(40), f.balance(t, "a"))
		assert.Equal(t, int64(50), f.balance(t, "b"))
		assert.Equal(t, int64(6), f.balance(t, "c"))
	})
}

// failingStore fails every unit for one account.
type failingStore struct {
	*memory.MemoryLedgerStore
	failFor string
}

func (s *failingStore) RunInTx(ctx context.Context, accountID string, fn func(ctx context.Context, tx interfaces.AccountTx) error) error {
	if accountID == s.failFor {
		return errors.New("disk on fire")
	}
	return s.MemoryLedgerStore.RunInTx(ctx, accountID, fn)
}

func TestRunPayoutCycleIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryLedgerStore: memory.NewMemoryLedgerStore(), failFor: "b"}
	l := NewLedger(store, WithClock(func() time.Time { return wednesday }))

	for _, id := range []string{"a", "b", "c"} {
		_, err := store.CreateAccount(ctx, models.Account{ID: id})
		require.NoError(t, err)
		_, err = l.UpsertAllowanceConfig(ctx, id, models.FrequencyWeekly, 20, true)
		require.NoError(t, err)
	}

	result, err := l.RunPayoutCycle(ctx, wednesday)
	require.NoError(t, err)
	assert.Equal(t, PayoutResult{Processed: 2, Errors: 1}, result)

	for id, want := range map[string]int64{"a": 20, "b": 0, "c": 20} {
		b, err := l.GetBalance(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, b, id)
	}

	cfg, err := l.GetAllowanceConfig(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, cfg.LastPaid, "a failed payout leaves lastPaid untouched")
}

func TestOverlappingPayoutCyclesPayOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "kid", 0)
	f.allowance(t, "kid", models.FrequencyWeekly, 20, true)

	const cycles = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []PayoutResult
	)
	for i := 0; i < cycles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.ledger.RunPayoutCycle(ctx, wednesday)
			assert.NoError(t, err)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var processed, skipped int
	for _, r := range results {
		processed += r.Processed
		skipped += r.Skipped
		assert.Zero(t, r.Errors)
	}
	assert.Equal(t, 1, processed)
	assert.Equal(t, cycles-1, skipped)
	assert.Equal(t, int64(20), f.balance(t, "kid"))
	f.assertConsistent(t, "kid")
}

func TestUpsertAllowanceConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("validates input", func(t *testing.T) {
		f := newFixture(t)
		f.account(t, "kid", 0)

		_, err := f.ledger.UpsertAllowanceConfig(ctx, "kid", models.Frequency("hourly"), 10, true)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = f.ledger.UpsertAllowanceConfig(ctx, "kid", models.FrequencyWeekly, -1, true)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = f.ledger.UpsertAllowanceConfig(ctx, "nobody", models.FrequencyWeekly, 10, true)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("update keeps lastPaid", func(t *testing.T) {
		f := newFixture(t)
		f.account(t, "kid", 0)
		f.allowance(t, "kid", models.FrequencyWeekly, 20, true)
		_, err := f.ledger.RunPayoutCycle(ctx, wednesday)
		require.NoError(t, err)

		updated, err := f.ledger.UpsertAllowanceConfig(ctx, "kid", models.FrequencyWeekly, 30, true)
		require.NoError(t, err)
		assert.Equal(t, int64(30), updated.Amount)
		require.NotNil(t, updated.LastPaid)

		result, err := f.ledger.RunPayoutCycle(ctx, wednesday.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, PayoutResult{Skipped: 1}, result)
	})

	t.Run("delete", func(t *testing.T) {
		f := newFixture(t)
		f.account(t, "kid", 0)
		f.allowance(t, "kid", models.FrequencyWeekly, 20, true)

		require.NoError(t, f.ledger.DeleteAllowanceConfig(ctx, "kid"))
		assert.ErrorIs(t, f.ledger.DeleteAllowanceConfig(ctx, "kid"), ErrAllowanceConfigNotFound)

		_, err := f.ledger.GetAllowanceConfig(ctx, "kid")
		assert.ErrorIs(t, err, ErrAllowanceConfigNotFound)

		result, err := f.ledger.RunPayoutCycle(ctx, wednesday)
		require.NoError(t, err)
		assert.Equal(t, PayoutResult{}, result)
	})
}

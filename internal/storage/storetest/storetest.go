// Package storetest holds the behaviour every LedgerStore implementation
// must show. Store packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/allowance-ledger/internal/interfaces"
	"github.com/sheikh-saqib/allowance-ledger/internal/models"
)

// Store is the surface under test.
type Store interface {
	interfaces.LedgerStore
	interfaces.CatalogStore
}

var base = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

// Run executes the contract suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("products", func(t *testing.T) { testProducts(t, newStore(t)) })
	t.Run("unit commits together", func(t *testing.T) { testUnitCommit(t, newStore(t)) })
	t.Run("unit rolls back on error", func(t *testing.T) { testUnitRollback(t, newStore(t)) })
	t.Run("negative balance rejected", func(t *testing.T) { testNegativeBalance(t, newStore(t)) })
	t.Run("purchase window queries", func(t *testing.T) { testPurchaseQueries(t, newStore(t)) })
	t.Run("transactions newest first", func(t *testing.T) { testListTransactions(t, newStore(t)) })
	t.Run("allowance configs", func(t *testing.T) { testAllowanceConfigs(t, newStore(t)) })
	t.Run("same account units are linearized", func(t *testing.T) { testConcurrentUnits(t, newStore(t)) })
}

func seedAccount(t *testing.T, s Store, id string) {
	t.Helper()
	_, err := s.CreateAccount(context.Background(), models.Account{ID: id, Name: "Kid " + id, CreatedAt: base})
	require.NoError(t, err)
}

func credit(t *testing.T, s Store, accountID string, kind models.TransactionKind, amount int64, productID string, at time.Time) models.Transaction {
	t.Helper()
	var stored models.Transaction
	err := s.RunInTx(context.Background(), accountID, func(ctx context.Context, tx interfaces.AccountTx) error {
		account, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		stored, err = tx.AppendTransaction(ctx, models.Transaction{
			ID:          ulid.Make().String(),
			AccountID:   accountID,
			Kind:        kind,
			Amount:      amount,
			Description: fmt.Sprintf("%s %d", kind, amount),
			ProductID:   productID,
			CreatedAt:   at,
		})
		if err != nil {
			return err
		}
		return tx.UpdateBalance(ctx, account.Balance+amount)
	})
	require.NoError(t, err)
	return stored
}

func testAccounts(t *testing.T, s Store) {
	ctx := context.Background()

	created, err := s.CreateAccount(ctx, models.Account{ID: "acc-1", Name: "Ada", Balance: 500, CreatedAt: base})
	require.NoError(t, err)
	assert.Equal(t, int64(0), created.Balance, "new accounts start at zero")

	got, err := s.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, int64(0), got.Balance)
	assert.True(t, base.Equal(got.CreatedAt))

	_, err = s.CreateAccount(ctx, models.Account{ID: "acc-1", Name: "Again"})
	assert.ErrorIs(t, err, interfaces.ErrAlreadyExists)

	_, err = s.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func testProducts(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.SaveProduct(ctx, models.Product{ID: "p-1", Name: "Ice cream", Price: 40, Active: true})
	require.NoError(t, err)
	_, err = s.SaveProduct(ctx, models.Product{ID: "p-1", Name: "Ice cream", Description: "two scoops", Price: 45, Active: false})
	require.NoError(t, err)

	got, err := s.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(45), got.Price)
	assert.Equal(t, "two scoops", got.Description)
	assert.False(t, got.Active)

	_, err = s.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func testUnitCommit(t *testing.T, s Store) {
	ctx := context.Background()
	seedAccount(t, s, "acc-1")

	credit(t, s, "acc-1", models.KindAdjustment, 100, "", base)
	credit(t, s, "acc-1", models.KindAdjustment, -30, "", base.Add(time.Minute))

	account, err := s.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), account.Balance)

	err = s.RunInTx(ctx, "acc-1", func(ctx context.Context, tx interfaces.AccountTx) error {
		sum, err := tx.SumTransactions(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(70), sum)
		return nil
	})
	require.NoError(t, err)
}

func testUnitRollback(t *testing.T, s Store) {
	ctx := context.Background()
	seedAccount(t, s, "acc-1")
	credit(t, s, "acc-1", models.KindAdjustment, 100, "", base)

	boom := errors.New("boom")
	err := s.RunInTx(ctx, "acc-1", func(ctx context.Context, tx interfaces.AccountTx) error {
		_, err := tx.AppendTransaction(ctx, models.Transaction{
			ID: ulid.Make().String(), AccountID: "acc-1", Kind: models.KindAdjustment,
			Amount: 50, Description: "never", CreatedAt: base,
		})
		require.NoError(t, err)
		require.NoError(t, tx.UpdateBalance(ctx, 150))

		account, err := tx.Account(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(150), account.Balance, "unit sees its own writes")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	account, err := s.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance)

	txns, err := s.ListTransactions(ctx, "acc-1", 10)
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	err = s.RunInTx(ctx, "missing", func(ctx context.Context, tx interfaces.AccountTx) error {
		_, err := tx.Account(ctx)
		return err
	})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func testNegativeBalance(t *testing.T, s Store) {
	ctx := context.Background()
	seedAccount(t, s, "acc-1")

	err := s.RunInTx(ctx, "acc-1", func(ctx context.Context, tx interfaces.AccountTx) error {
		return tx.UpdateBalance(ctx, -1)
	})
	assert.ErrorIs(t, err, interfaces.ErrNegativeBalance)

	account, err := s.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.Balance)
}

func testPurchaseQueries(t *testing.T, s Store) {
	ctx := context.Background()
	seedAccount(t, s, "acc-1")
	seedAccount(t, s, "acc-2")
	credit(t, s, "acc-1", models.KindAdjustment, 500, "", base.Add(-48*time.Hour))

	boundary := base.Add(-time.Hour)
	credit(t, s, "acc-1", models.KindPurchase, -10, "old", boundary.Add(-time.Second))
	credit(t, s, "acc-1", models.KindPurchase, -10, "edge", boundary)
	credit(t, s, "acc-1", models.KindPurchase, -10, "new", base)

	cases := []struct {
		accountID, productID string
		want                 bool
	}{
		{"acc-1", "old", false},
		{"acc-1", "edge", true},
		{"acc-1", "new", true},
		{"acc-2", "new", false},
	}
	for _, tc := range cases {
		t.Run(tc.accountID+"/"+tc.productID, func(t *testing.T) {
			got, err := s.HasPurchaseSince(ctx, tc.accountID, tc.productID, boundary)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			err = s.RunInTx(ctx, tc.accountID, func(ctx context.Context, tx interfaces.AccountTx) error {
				inUnit, err := tx.HasPurchaseSince(ctx, tc.productID, boundary)
				require.NoError(t, err)
				assert.Equal(t, tc.want, inUnit)
				return nil
			})
			require.NoError(t, err)
		})
	}

	ids, err := s.PurchasedProductsSince(ctx, "acc-1", boundary)
	require.NoError(t, err)
	assert.Equal(t, []string{"edge", "new"}, ids)
}

func testListTransactions(t *testing.T, s Store) {
	ctx := context.Background()
	seedAccount(t, s, "acc-1")
	for i := 0; i < 5; i++ {
		credit(t, s, "acc-1", models.KindAllowance, int64(i+1), "", base.Add(time.Duration(i)*time.Hour))
	}

	txns, err := s.ListTransactions(ctx, "acc-1", 3)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, []int64{5, 4, 3}, []int64{txns[0].Amount, txns[1].Amount, txns[2].Amount})
	assert.Equal(t, models.KindAllowance, txns[0].Kind)
	assert.Empty(t, txns[0].ProductID)

	none, err := s.ListTransactions(ctx, "missing", 3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testAllowanceConfigs(t *testing.T, s Store) {
	ctx := context.Background()
	seedAccount(t, s, "acc-1")
	seedAccount(t, s, "acc-2")

	_, err := s.UpsertAllowanceConfig(ctx, models.AllowanceConfig{
		ID: "cfg-x", AccountID: "missing", Frequency: models.FrequencyWeekly, Amount: 20, Active: true,
		CreatedAt: base, UpdatedAt: base,
	})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	saved, err := s.UpsertAllowanceConfig(ctx, models.AllowanceConfig{
		ID: "cfg-1", AccountID: "acc-1", Frequency: models.FrequencyWeekly, Amount: 20, Active: true,
		CreatedAt: base, UpdatedAt: base,
	})
	require.NoError(t, err)
	assert.Equal(t, "cfg-1", saved.ID)
	assert.Nil(t, saved.LastPaid)

	_, err = s.UpsertAllowanceConfig(ctx, models.AllowanceConfig{
		ID: "cfg-2", AccountID: "acc-2", Frequency: models.FrequencyDaily, Amount: 5, Active: false,
		CreatedAt: base, UpdatedAt: base,
	})
	require.NoError(t, err)

	paidAt := base.Add(2 * time.Hour)
	err = s.RunInTx(ctx, "acc-1", func(ctx context.Context, tx interfaces.AccountTx) error {
		return tx.SetAllowanceLastPaid(ctx, paidAt)
	})
	require.NoError(t, err)

	active, err := s.ListActiveAllowanceConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "acc-1", active[0].Account.ID)
	require.NotNil(t, active[0].Config.LastPaid)
	assert.True(t, paidAt.Equal(*active[0].Config.LastPaid))

	updated, err := s.UpsertAllowanceConfig(ctx, models.AllowanceConfig{
		ID: "ignored", AccountID: "acc-1", Frequency: models.FrequencyMonthly, Amount: 80, Active: true,
		CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "cfg-1", updated.ID, "upsert keeps the original id")
	assert.Equal(t, models.FrequencyMonthly, updated.Frequency)
	assert.Equal(t, int64(80), updated.Amount)
	require.NotNil(t, updated.LastPaid, "upsert keeps lastPaid")
	assert.True(t, paidAt.Equal(*updated.LastPaid))

	require.NoError(t, s.DeleteAllowanceConfig(ctx, "acc-1"))
	assert.ErrorIs(t, s.DeleteAllowanceConfig(ctx, "acc-1"), interfaces.ErrNotFound)
	_, err = s.GetAllowanceConfig(ctx, "acc-1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	err = s.RunInTx(ctx, "acc-1", func(ctx context.Context, tx interfaces.AccountTx) error {
		return tx.SetAllowanceLastPaid(ctx, paidAt)
	})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func testConcurrentUnits(t *testing.T, s Store) {
	ctx := context.Background()
	seedAccount(t, s, "acc-1")

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := s.RunInTx(ctx, "acc-1", func(ctx context.Context, tx interfaces.AccountTx) error {
					account, err := tx.Account(ctx)
					if err != nil {
						return err
					}
					if _, err := tx.AppendTransaction(ctx, models.Transaction{
						ID: ulid.Make().String(), AccountID: "acc-1", Kind: models.KindAllowance,
						Amount: 1, Description: "tick", CreatedAt: base,
					}); err != nil {
						return err
					}
					return tx.UpdateBalance(ctx, account.Balance+1)
				})
				if errors.Is(err, interfaces.ErrConflict) {
					continue
				}
				errs <- err
				return
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	account, err := s.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), account.Balance)

	err = s.RunInTx(ctx, "acc-1", func(ctx context.Context, tx interfaces.AccountTx) error {
		sum, err := tx.SumTransactions(ctx)
		assert.Equal(t, int64(workers), sum)
		return err
	})
	require.NoError(t, err)
}

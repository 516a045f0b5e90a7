package interfaces

import (
	"context"
	"time"

	"github.com/sheikh-saqib/allowance-ledger/internal/models"
)

// LedgerStore is the durable record of balances and transaction history.
// Every write to an account goes through RunInTx.
type LedgerStore interface {
	GetAccount(ctx context.Context, accountID string) (models.Account, error)
	GetProduct(ctx context.Context, productID string) (models.Product, error)

	HasPurchaseSince(ctx context.Context, accountID, productID string, since time.Time) (bool, error)
	PurchasedProductsSince(ctx context.Context, accountID string, since time.Time) ([]string, error)

	// ListTransactions returns at most limit transactions, newest first.
	ListTransactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error)

	ListActiveAllowanceConfigs(ctx context.Context) ([]models.ActiveAllowance, error)
	GetAllowanceConfig(ctx context.Context, accountID string) (models.AllowanceConfig, error)
	UpsertAllowanceConfig(ctx context.Context, cfg models.AllowanceConfig) (models.AllowanceConfig, error)
	DeleteAllowanceConfig(ctx context.Context, accountID string) error

	// RunInTx runs fn as one atomic unit scoped to accountID. Units against the
	// same account are linearized. If fn returns an error nothing it wrote is kept.
	RunInTx(ctx context.Context, accountID string, fn func(ctx context.Context, tx AccountTx) error) error
}

// AccountTx is the view of the store inside one atomic unit.
type AccountTx interface {
	// Account returns the account the unit is scoped to, including writes
	// already made in this unit.
	Account(ctx context.Context) (models.Account, error)
	Product(ctx context.Context, productID string) (models.Product, error)
	HasPurchaseSince(ctx context.Context, productID string, since time.Time) (bool, error)
	AllowanceConfig(ctx context.Context) (models.AllowanceConfig, error)
	// SumTransactions adds up every amount in the account's log.
	SumTransactions(ctx context.Context) (int64, error)

	AppendTransaction(ctx context.Context, txn models.Transaction) (models.Transaction, error)
	UpdateBalance(ctx context.Context, newBalance int64) error
	SetAllowanceLastPaid(ctx context.Context, paidAt time.Time) error
}

// CatalogStore is written by the admin tooling that owns accounts and products.
type CatalogStore interface {
	// CreateAccount stores a new account with a zero balance.
	CreateAccount(ctx context.Context, account models.Account) (models.Account, error)
	SaveProduct(ctx context.Context, product models.Product) (models.Product, error)
}

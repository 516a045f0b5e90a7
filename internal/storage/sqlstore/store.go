// Package sqlstore implements interfaces.LedgerStore over database/sql. The
// SQLite and Postgres packages supply a Dialect and the schema; the queries
// here are shared.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	interfaces "github.com/sheikh-saqib/allowance-ledger/internal/interfaces"
	"github.com/sheikh-saqib/allowance-ledger/internal/models"
)

// Dialect captures what differs between SQL backends.
type Dialect struct {
	Name string
	// Rebind rewrites ? placeholders into the driver's syntax.
	Rebind func(query string) string
	// LockAccount is appended to the account read that opens a unit.
	LockAccount string
	// TimeValue encodes a timestamp as a query argument.
	TimeValue func(t time.Time) any
	// Classify maps a driver error onto the store contract errors. It returns
	// err unchanged when nothing matches.
	Classify func(err error) error
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *Store {
	if dialect.Rebind == nil {
		dialect.Rebind = func(q string) string { return q }
	}
	if dialect.Classify == nil {
		dialect.Classify = func(err error) error { return err }
	}
	if dialect.TimeValue == nil {
		dialect.TimeValue = func(t time.Time) any { return t.UTC() }
	}
	return &Store{db: db, dialect: dialect}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) fail(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, s.dialect.Classify(err))
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	if account.ID == "" {
		return models.Account{}, fmt.Errorf("account id is required")
	}
	account.Balance = 0
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	account.CreatedAt = account.CreatedAt.UTC()

	const query = `INSERT INTO accounts (id, name, balance, created_at) VALUES (?, ?, 0, ?)`
	if _, err := s.db.ExecContext(ctx, s.q(query), account.ID, account.Name, s.dialect.TimeValue(account.CreatedAt)); err != nil {
		return models.Account{}, s.fail("create account", err)
	}
	return account, nil
}

func (s *Store) SaveProduct(ctx context.Context, product models.Product) (models.Product, error) {
	if product.ID == "" {
		return models.Product{}, fmt.Errorf("product id is required")
	}
	const query = `
INSERT INTO products (id, name, description, price, active) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	name = excluded.name,
	description = excluded.description,
	price = excluded.price,
	active = excluded.active`
	if _, err := s.db.ExecContext(ctx, s.q(query),
		product.ID, product.Name, product.Description, product.Price, product.Active); err != nil {
		return models.Product{}, s.fail("save product", err)
	}
	return product, nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	account, err := s.getAccount(ctx, s.db, accountID, "")
	if err != nil {
		return models.Account{}, s.fail("get account", err)
	}
	return account, nil
}

func (s *Store) getAccount(ctx context.Context, q queryer, accountID, suffix string) (models.Account, error) {
	query := `SELECT id, name, balance, created_at FROM accounts WHERE id = ?` + suffix
	var (
		account models.Account
		created timestamp
	)
	err := q.QueryRowContext(ctx, s.q(query), accountID).Scan(&account.ID, &account.Name, &account.Balance, &created)
	if err != nil {
		return models.Account{}, err
	}
	account.CreatedAt = created.Time
	return account, nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (models.Product, error) {
	product, err := s.getProduct(ctx, s.db, productID)
	if err != nil {
		return models.Product{}, s.fail("get product", err)
	}
	return product, nil
}

func (s *Store) getProduct(ctx context.Context, q queryer, productID string) (models.Product, error) {
	const query = `SELECT id, name, description, price, active FROM products WHERE id = ?`
	var product models.Product
	err := q.QueryRowContext(ctx, s.q(query), productID).
		Scan(&product.ID, &product.Name, &product.Description, &product.Price, &product.Active)
	return product, err
}

func (s *Store) HasPurchaseSince(ctx context.Context, accountID, productID string, since time.Time) (bool, error) {
	found, err := s.hasPurchaseSince(ctx, s.db, accountID, productID, since)
	if err != nil {
		return false, s.fail("has purchase since", err)
	}
	return found, nil
}

func (s *Store) hasPurchaseSince(ctx context.Context, q queryer, accountID, productID string, since time.Time) (bool, error) {
	const query = `
SELECT COUNT(*) FROM transactions
WHERE account_id = ? AND product_id = ? AND kind = ? AND created_at >= ?`
	var n int64
	err := q.QueryRowContext(ctx, s.q(query),
		accountID, productID, string(models.KindPurchase), s.dialect.TimeValue(since)).Scan(&n)
	return n > 0, err
}

func (s *Store) PurchasedProductsSince(ctx context.Context, accountID string, since time.Time) ([]string, error) {
	const query = `
SELECT product_id FROM transactions
WHERE account_id = ? AND kind = ? AND product_id IS NOT NULL AND created_at >= ?
GROUP BY product_id
ORDER BY MIN(created_at)`
	rows, err := s.db.QueryContext(ctx, s.q(query), accountID, string(models.KindPurchase), s.dialect.TimeValue(since))
	if err != nil {
		return nil, s.fail("purchased products", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.fail("purchased products", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("purchased products", err)
	}
	return ids, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	const query = `
SELECT id, account_id, kind, amount, description, product_id, created_at
FROM transactions
WHERE account_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, s.q(query), accountID, limit)
	if err != nil {
		return nil, s.fail("list transactions", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var (
			txn       models.Transaction
			kind      string
			productID sql.NullString
			created   timestamp
		)
		if err := rows.Scan(&txn.ID, &txn.AccountID, &kind, &txn.Amount, &txn.Description, &productID, &created); err != nil {
			return nil, s.fail("list transactions", err)
		}
		txn.Kind = models.TransactionKind(kind)
		txn.ProductID = productID.String
		txn.CreatedAt = created.Time
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list transactions", err)
	}
	return txns, nil
}

const allowanceColumns = `c.id, c.account_id, c.frequency, c.amount, c.active, c.last_paid, c.created_at, c.updated_at`

func scanAllowance(scan func(dest ...any) error, extra ...any) (models.AllowanceConfig, error) {
	var (
		cfg               models.AllowanceConfig
		freq              string
		lastPaid          timestamp
		created, modified timestamp
	)
	dest := append([]any{&cfg.ID, &cfg.AccountID, &freq, &cfg.Amount, &cfg.Active, &lastPaid, &created, &modified}, extra...)
	if err := scan(dest...); err != nil {
		return models.AllowanceConfig{}, err
	}
	cfg.Frequency = models.Frequency(freq)
	cfg.LastPaid = lastPaid.Ptr()
	cfg.CreatedAt = created.Time
	cfg.UpdatedAt = modified.Time
	return cfg, nil
}

func (s *Store) ListActiveAllowanceConfigs(ctx context.Context) ([]models.ActiveAllowance, error) {
	query := `
SELECT ` + allowanceColumns + `, a.id, a.name, a.balance, a.created_at
FROM allowance_configs c
JOIN accounts a ON a.id = c.account_id
WHERE c.active = ?
ORDER BY c.account_id`
	rows, err := s.db.QueryContext(ctx, s.q(query), true)
	if err != nil {
		return nil, s.fail("list allowance configs", err)
	}
	defer rows.Close()

	var result []models.ActiveAllowance
	for rows.Next() {
		var (
			account models.Account
			created timestamp
		)
		cfg, err := scanAllowance(rows.Scan, &account.ID, &account.Name, &account.Balance, &created)
		if err != nil {
			return nil, s.fail("list allowance configs", err)
		}
		account.CreatedAt = created.Time
		result = append(result, models.ActiveAllowance{Config: cfg, Account: account})
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list allowance configs", err)
	}
	return result, nil
}

func (s *Store) GetAllowanceConfig(ctx context.Context, accountID string) (models.AllowanceConfig, error) {
	cfg, err := s.getAllowanceConfig(ctx, s.db, accountID)
	if err != nil {
		return models.AllowanceConfig{}, s.fail("get allowance config", err)
	}
	return cfg, nil
}

func (s *Store) getAllowanceConfig(ctx context.Context, q queryer, accountID string) (models.AllowanceConfig, error) {
	query := `SELECT ` + allowanceColumns + ` FROM allowance_configs c WHERE c.account_id = ?`
	return scanAllowance(q.QueryRowContext(ctx, s.q(query), accountID).Scan)
}

// UpsertAllowanceConfig keeps the id, creation time and last_paid of an
// existing row.
func (s *Store) UpsertAllowanceConfig(ctx context.Context, cfg models.AllowanceConfig) (models.AllowanceConfig, error) {
	if _, err := s.getAccount(ctx, s.db, cfg.AccountID, ""); err != nil {
		return models.AllowanceConfig{}, s.fail("upsert allowance config", err)
	}

	const query = `
INSERT INTO allowance_configs (id, account_id, frequency, amount, active, last_paid, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, NULL, ?, ?)
ON CONFLICT (account_id) DO UPDATE SET
	frequency = excluded.frequency,
	amount = excluded.amount,
	active = excluded.active,
	updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, s.q(query),
		cfg.ID, cfg.AccountID, string(cfg.Frequency), cfg.Amount, cfg.Active,
		s.dialect.TimeValue(cfg.CreatedAt), s.dialect.TimeValue(cfg.UpdatedAt))
	if err != nil {
		return models.AllowanceConfig{}, s.fail("upsert allowance config", err)
	}
	return s.GetAllowanceConfig(ctx, cfg.AccountID)
}

func (s *Store) DeleteAllowanceConfig(ctx context.Context, accountID string) error {
	const query = `DELETE FROM allowance_configs WHERE account_id = ?`
	res, err := s.db.ExecContext(ctx, s.q(query), accountID)
	if err != nil {
		return s.fail("delete allowance config", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("delete allowance config", err)
	}
	if n == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

// RunInTx opens a database transaction, reads the account row with the
// dialect's lock clause and hands fn a view bound to that transaction.
func (s *Store) RunInTx(ctx context.Context, accountID string, fn func(ctx context.Context, tx interfaces.AccountTx) error) (err error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("begin unit", err)
	}
	defer func() {
		if err != nil {
			_ = dbTx.Rollback()
		}
	}()

	tx := &accountTx{store: s, tx: dbTx, accountID: accountID}
	tx.account, err = s.getAccount(ctx, dbTx, accountID, s.dialect.LockAccount)
	switch {
	case err == nil:
		tx.found = true
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	default:
		return s.fail("lock account", err)
	}

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = dbTx.Commit(); err != nil {
		return s.fail("commit unit", err)
	}
	return nil
}

type accountTx struct {
	store     *Store
	tx        *sql.Tx
	accountID string
	account   models.Account
	found     bool
}

func (t *accountTx) Account(_ context.Context) (models.Account, error) {
	if !t.found {
		return models.Account{}, interfaces.ErrNotFound
	}
	return t.account, nil
}

func (t *accountTx) Product(ctx context.Context, productID string) (models.Product, error) {
	product, err := t.store.getProduct(ctx, t.tx, productID)
	if err != nil {
		return models.Product{}, t.store.fail("get product", err)
	}
	return product, nil
}

func (t *accountTx) HasPurchaseSince(ctx context.Context, productID string, since time.Time) (bool, error) {
	found, err := t.store.hasPurchaseSince(ctx, t.tx, t.accountID, productID, since)
	if err != nil {
		return false, t.store.fail("has purchase since", err)
	}
	return found, nil
}

func (t *accountTx) AllowanceConfig(ctx context.Context) (models.AllowanceConfig, error) {
	cfg, err := t.store.getAllowanceConfig(ctx, t.tx, t.accountID)
	if err != nil {
		return models.AllowanceConfig{}, t.store.fail("get allowance config", err)
	}
	return cfg, nil
}

func (t *accountTx) SumTransactions(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE account_id = ?`
	var sum int64
	if err := t.tx.QueryRowContext(ctx, t.store.q(query), t.accountID).Scan(&sum); err != nil {
		return 0, t.store.fail("sum transactions", err)
	}
	return sum, nil
}

func (t *accountTx) AppendTransaction(ctx context.Context, txn models.Transaction) (models.Transaction, error) {
	if !t.found {
		return models.Transaction{}, interfaces.ErrNotFound
	}
	if txn.AccountID != t.accountID {
		return models.Transaction{}, fmt.Errorf("transaction for account %q in unit for %q", txn.AccountID, t.accountID)
	}

	var productID any
	if txn.ProductID != "" {
		productID = txn.ProductID
	}
	const query = `
INSERT INTO transactions (id, account_id, kind, amount, description, product_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := t.tx.ExecContext(ctx, t.store.q(query),
		txn.ID, txn.AccountID, string(txn.Kind), txn.Amount, txn.Description, productID,
		t.store.dialect.TimeValue(txn.CreatedAt))
	if err != nil {
		return models.Transaction{}, t.store.fail("append transaction", err)
	}
	return txn, nil
}

func (t *accountTx) UpdateBalance(ctx context.Context, newBalance int64) error {
	if !t.found {
		return interfaces.ErrNotFound
	}
	if newBalance < 0 {
		return interfaces.ErrNegativeBalance
	}
	const query = `UPDATE accounts SET balance = ? WHERE id = ?`
	if _, err := t.tx.ExecContext(ctx, t.store.q(query), newBalance, t.accountID); err != nil {
		return t.store.fail("update balance", err)
	}
	t.account.Balance = newBalance
	return nil
}

func (t *accountTx) SetAllowanceLastPaid(ctx context.Context, paidAt time.Time) error {
	const query = `UPDATE allowance_configs SET last_paid = ?, updated_at = ? WHERE account_id = ?`
	paid := t.store.dialect.TimeValue(paidAt)
	res, err := t.tx.ExecContext(ctx, t.store.q(query), paid, paid, t.accountID)
	if err != nil {
		return t.store.fail("set last paid", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return t.store.fail("set last paid", err)
	}
	if n == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

var (
	_ interfaces.LedgerStore  = (*Store)(nil)
	_ interfaces.CatalogStore = (*Store)(nil)
)

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/allowance-ledger/internal/interfaces"
	"github.com/sheikh-saqib/allowance-ledger/internal/models"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// One mutex guards everything, and RunInTx holds it for the whole unit, so
// units are fully serialized.
type MemoryLedgerStore struct {
	mu           sync.Mutex
	accounts     map[string]models.Account
	products     map[string]models.Product
	allowances   map[string]models.AllowanceConfig // keyed by account id
	transactions []models.Transaction              // append-only, commit order
}

// NewMemoryLedgerStore creates and returns an empty MemoryLedgerStore
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts:     make(map[string]models.Account),
		products:     make(map[string]models.Product),
		allowances:   make(map[string]models.AllowanceConfig),
		transactions: make([]models.Transaction, 0),
	}
}

// Migrate is a no-op; the maps need no schema.
func (m *MemoryLedgerStore) Migrate(context.Context) error { return nil }

func (m *MemoryLedgerStore) Close() error { return nil }

func (m *MemoryLedgerStore) CreateAccount(_ context.Context, account models.Account) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account.ID == "" {
		return models.Account{}, fmt.Errorf("account id is required")
	}
	if _, exists := m.accounts[account.ID]; exists {
		return models.Account{}, interfaces.ErrAlreadyExists
	}
	account.Balance = 0
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	m.accounts[account.ID] = account
	return account, nil
}

func (m *MemoryLedgerStore) SaveProduct(_ context.Context, product models.Product) (models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if product.ID == "" {
		return models.Product{}, fmt.Errorf("product id is required")
	}
	m.products[product.ID] = product
	return product, nil
}

func (m *MemoryLedgerStore) GetAccount(_ context.Context, accountID string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return models.Account{}, interfaces.ErrNotFound
	}
	return account, nil
}

func (m *MemoryLedgerStore) GetProduct(_ context.Context, productID string) (models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	product, ok := m.products[productID]
	if !ok {
		return models.Product{}, interfaces.ErrNotFound
	}
	return product, nil
}

func (m *MemoryLedgerStore) HasPurchaseSince(_ context.Context, accountID, productID string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return hasPurchaseSince(m.transactions, accountID, productID, since), nil
}

func (m *MemoryLedgerStore) PurchasedProductsSince(_ context.Context, accountID string, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	var ids []string
	for _, t := range m.transactions {
		if t.AccountID != accountID || t.Kind != models.KindPurchase || t.CreatedAt.Before(since) {
			continue
		}
		if !seen[t.ProductID] {
			seen[t.ProductID] = true
			ids = append(ids, t.ProductID)
		}
	}
	return ids, nil
}

func (m *MemoryLedgerStore) ListTransactions(_ context.Context, accountID string, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.Transaction
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		if m.transactions[i].AccountID == accountID {
			result = append(result, m.transactions[i])
		}
	}
	return result, nil
}

func (m *MemoryLedgerStore) ListActiveAllowanceConfigs(_ context.Context) ([]models.ActiveAllowance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.ActiveAllowance
	for accountID, cfg := range m.allowances {
		account, ok := m.accounts[accountID]
		if !cfg.Active || !ok {
			continue
		}
		result = append(result, models.ActiveAllowance{Config: copyConfig(cfg), Account: account})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Config.AccountID < result[j].Config.AccountID
	})
	return result, nil
}

func (m *MemoryLedgerStore) GetAllowanceConfig(_ context.Context, accountID string) (models.AllowanceConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.allowances[accountID]
	if !ok {
		return models.AllowanceConfig{}, interfaces.ErrNotFound
	}
	return copyConfig(cfg), nil
}

// UpsertAllowanceConfig keeps the id, creation time and lastPaid of an
// existing config.
func (m *MemoryLedgerStore) UpsertAllowanceConfig(_ context.Context, cfg models.AllowanceConfig) (models.AllowanceConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[cfg.AccountID]; !ok {
		return models.AllowanceConfig{}, interfaces.ErrNotFound
	}
	if existing, ok := m.allowances[cfg.AccountID]; ok {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		cfg.LastPaid = existing.LastPaid
	}
	m.allowances[cfg.AccountID] = copyConfig(cfg)
	return copyConfig(cfg), nil
}

func (m *MemoryLedgerStore) DeleteAllowanceConfig(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.allowances[accountID]; !ok {
		return interfaces.ErrNotFound
	}
	delete(m.allowances, accountID)
	return nil
}

// RunInTx stages every write fn makes and applies them only if fn succeeds.
func (m *MemoryLedgerStore) RunInTx(ctx context.Context, accountID string, fn func(ctx context.Context, tx interfaces.AccountTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, accountID: accountID}
	tx.account, tx.found = m.accounts[accountID]

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

// memoryTx reads committed state plus its own staged writes. It runs with
// the store mutex already held.
type memoryTx struct {
	store     *MemoryLedgerStore
	accountID string
	account   models.Account
	found     bool

	pending     []models.Transaction
	balanceSet  bool
	lastPaid    *time.Time
	lastPaidSet bool
}

func (t *memoryTx) Account(_ context.Context) (models.Account, error) {
	if !t.found {
		return models.Account{}, interfaces.ErrNotFound
	}
	return t.account, nil
}

func (t *memoryTx) Product(_ context.Context, productID string) (models.Product, error) {
	product, ok := t.store.products[productID]
	if !ok {
		return models.Product{}, interfaces.ErrNotFound
	}
	return product, nil
}

func (t *memoryTx) HasPurchaseSince(_ context.Context, productID string, since time.Time) (bool, error) {
	return hasPurchaseSince(t.store.transactions, t.accountID, productID, since) ||
		hasPurchaseSince(t.pending, t.accountID, productID, since), nil
}

func (t *memoryTx) AllowanceConfig(_ context.Context) (models.AllowanceConfig, error) {
	cfg, ok := t.store.allowances[t.accountID]
	if !ok {
		return models.AllowanceConfig{}, interfaces.ErrNotFound
	}
	cfg = copyConfig(cfg)
	if t.lastPaidSet {
		cfg.LastPaid = t.lastPaid
	}
	return cfg, nil
}

func (t *memoryTx) SumTransactions(_ context.Context) (int64, error) {
	var sum int64
	for _, log := range [][]models.Transaction{t.store.transactions, t.pending} {
		for _, txn := range log {
			if txn.AccountID == t.accountID {
				sum += txn.Amount
			}
		}
	}
	return sum, nil
}

func (t *memoryTx) AppendTransaction(_ context.Context, txn models.Transaction) (models.Transaction, error) {
	if !t.found {
		return models.Transaction{}, interfaces.ErrNotFound
	}
	if txn.AccountID != t.accountID {
		return models.Transaction{}, fmt.Errorf("transaction for account %q in unit for %q", txn.AccountID, t.accountID)
	}
	if txn.ID == "" {
		return models.Transaction{}, fmt.Errorf("transaction id is required")
	}
	t.pending = append(t.pending, txn)
	return txn, nil
}

func (t *memoryTx) UpdateBalance(_ context.Context, newBalance int64) error {
	if !t.found {
		return interfaces.ErrNotFound
	}
	if newBalance < 0 {
		return interfaces.ErrNegativeBalance
	}
	t.account.Balance = newBalance
	t.balanceSet = true
	return nil
}

func (t *memoryTx) SetAllowanceLastPaid(_ context.Context, paidAt time.Time) error {
	if _, ok := t.store.allowances[t.accountID]; !ok {
		return interfaces.ErrNotFound
	}
	paid := paidAt.UTC()
	t.lastPaid = &paid
	t.lastPaidSet = true
	return nil
}

func (t *memoryTx) commit() error {
	s := t.store
	s.transactions = append(s.transactions, t.pending...)
	if t.balanceSet {
		s.accounts[t.accountID] = t.account
	}
	if t.lastPaidSet {
		cfg := s.allowances[t.accountID]
		cfg.LastPaid = t.lastPaid
		cfg.UpdatedAt = *t.lastPaid
		s.allowances[t.accountID] = cfg
	}
	return nil
}

func hasPurchaseSince(log []models.Transaction, accountID, productID string, since time.Time) bool {
	for _, t := range log {
		if t.AccountID == accountID && t.ProductID == productID &&
			t.Kind == models.KindPurchase && !t.CreatedAt.Before(since) {
			return true
		}
	}
	return false
}

func copyConfig(cfg models.AllowanceConfig) models.AllowanceConfig {
	if cfg.LastPaid != nil {
		paid := *cfg.LastPaid
		cfg.LastPaid = &paid
	}
	return cfg
}

// Compile-time check: MemoryLedgerStore implements both store interfaces
var (
	_ interfaces.LedgerStore  = (*MemoryLedgerStore)(nil)
	_ interfaces.CatalogStore = (*MemoryLedgerStore)(nil)
)

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/allowance-ledger/internal/interfaces"
	"github.com/sheikh-saqib/allowance-ledger/internal/models"
	"github.com/sheikh-saqib/allowance-ledger/internal/models/events"
)

const (
	defaultTransactionLimit  = 50
	defaultPayoutConcurrency = 4
	defaultMaxAttempts       = 5
)

// Ledger runs the payout, purchase and adjustment operations against a store.
// It holds no state between calls other than the per-account locks.
type Ledger struct {
	store     interfaces.LedgerStore
	publisher interfaces.EventPublisher
	topic     string
	logger    *zap.Logger
	tracer    trace.Tracer
	location  *time.Location
	now       func() time.Time

	payoutConcurrency int
	maxAttempts       uint

	muMap map[string]*sync.Mutex // one mutex per account id
	mapMu sync.Mutex             // protects muMap
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPublisher publishes a TransactionRecorded event for every committed write.
func WithPublisher(p interfaces.EventPublisher, topic string) Option {
	return func(l *Ledger) {
		l.publisher = p
		if topic != "" {
			l.topic = topic
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLocation sets the zone the weekly purchase window is computed in.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.location = loc
		}
	}
}

// WithClock replaces time.Now for timestamps the caller does not supply.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithPayoutConcurrency(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.payoutConcurrency = n
		}
	}
}

// WithMaxAttempts bounds how often a unit is retried after a store conflict.
func WithMaxAttempts(n uint) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// NewLedger creates a Ledger on top of store.
func NewLedger(store interfaces.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:             store,
		topic:             events.TopicTransactionRecorded,
		logger:            zap.NewNop(),
		tracer:            otel.Tracer("github.com/sheikh-saqib/allowance-ledger/internal/ledger"),
		location:          time.UTC,
		now:               time.Now,
		payoutConcurrency: defaultPayoutConcurrency,
		maxAttempts:       defaultMaxAttempts,
		muMap:             make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) getAccountLock(accountID string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[accountID]; !exists {
		l.muMap[accountID] = &sync.Mutex{}
	}
	return l.muMap[accountID]
}

// atomically runs fn as one store unit for accountID. Units for the same
// account are serialized in process; conflicts the store detects across
// processes are retried with backoff and then returned.
func (l *Ledger) atomically(ctx context.Context, accountID string, fn func(ctx context.Context, tx interfaces.AccountTx) error) error {
	mu := l.getAccountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := l.store.RunInTx(ctx, accountID, fn)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, interfaces.ErrConflict):
			l.logger.Debug("ledger unit conflicted",
				zap.String("account_id", accountID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	}, backoff.WithBackOff(b), backoff.WithMaxTries(l.maxAttempts))
	return err
}

// record appends txn and moves the cached balance by txn.Amount inside tx.
func (l *Ledger) record(ctx context.Context, tx interfaces.AccountTx, account models.Account, txn models.Transaction) (models.Transaction, int64, error) {
	newBalance, ok := addBalance(account.Balance, txn.Amount)
	if !ok {
		return models.Transaction{}, account.Balance, ValidationError{Field: "amount", Message: "would overflow the balance"}
	}
	if newBalance < 0 {
		return models.Transaction{}, account.Balance, ErrNegativeResult
	}

	txn.ID = ulid.Make().String()
	txn.AccountID = account.ID
	txn.CreatedAt = txn.CreatedAt.UTC()

	stored, err := tx.AppendTransaction(ctx, txn)
	if err != nil {
		return models.Transaction{}, account.Balance, fmt.Errorf("append transaction: %w", err)
	}
	if err := tx.UpdateBalance(ctx, newBalance); err != nil {
		return models.Transaction{}, account.Balance, fmt.Errorf("update balance: %w", err)
	}
	return stored, newBalance, nil
}

// publish emits the event for a committed transaction. The write is already
// durable, so a failure is logged and not returned.
func (l *Ledger) publish(ctx context.Context, txn models.Transaction, balance int64) {
	if l.publisher == nil {
		return
	}
	event := events.TransactionRecorded{
		EventID:       uuid.New().String(),
		TransactionID: txn.ID,
		AccountID:     txn.AccountID,
		Kind:          txn.Kind,
		Amount:        txn.Amount,
		Balance:       balance,
		ProductID:     txn.ProductID,
		OccurredAt:    txn.CreatedAt,
	}
	if err := l.publisher.Publish(ctx, l.topic, txn.AccountID, event); err != nil {
		l.logger.Warn("failed to publish transaction event",
			zap.String("transaction_id", txn.ID),
			zap.String("account_id", txn.AccountID),
			zap.Error(err))
	}
}

func (l *Ledger) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (l *Ledger) getAccount(ctx context.Context, accountID string) (models.Account, error) {
	account, err := l.store.GetAccount(ctx, accountID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return models.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// GetBalance returns the cached balance of an account.
func (l *Ledger) GetBalance(ctx context.Context, accountID string) (int64, error) {
	account, err := l.getAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// ListTransactions returns the most recent transactions of an account, newest
// first. A non-positive limit uses the default of 50.
func (l *Ledger) ListTransactions(ctx context.Context, accountID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	if _, err := l.getAccount(ctx, accountID); err != nil {
		return nil, err
	}
	txns, err := l.store.ListTransactions(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

// Reconciliation compares the cached balance with the transaction log.
type Reconciliation struct {
	AccountID  string `json:"account_id"`
	Balance    int64  `json:"balance"`
	LedgerSum  int64  `json:"ledger_sum"`
	Consistent bool   `json:"consistent"`
}

// VerifyBalance sums the transaction log of an account and compares it with
// the cached balance. Both reads happen inside one unit so no write can land
// between them.
func (l *Ledger) VerifyBalance(ctx context.Context, accountID string) (Reconciliation, error) {
	if _, err := l.getAccount(ctx, accountID); err != nil {
		return Reconciliation{}, err
	}

	var rec Reconciliation
	err := l.atomically(ctx, accountID, func(ctx context.Context, tx interfaces.AccountTx) error {
		account, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		sum, err := tx.SumTransactions(ctx)
		if err != nil {
			return err
		}
		rec = Reconciliation{
			AccountID:  accountID,
			Balance:    account.Balance,
			LedgerSum:  sum,
			Consistent: account.Balance == sum,
		}
		return nil
	})
	if err != nil {
		return Reconciliation{}, fmt.Errorf("verify balance: %w", err)
	}
	if !rec.Consistent {
		l.logger.Error("balance does not match transaction log",
			zap.String("account_id", accountID),
			zap.Int64("balance", rec.Balance),
			zap.Int64("ledger_sum", rec.LedgerSum))
	}
	return rec, nil
}

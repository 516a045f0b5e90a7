package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	interfaces "github.com/sheikh-saqib/allowance-ledger/internal/interfaces"
	"github.com/sheikh-saqib/allowance-ledger/internal/storage/migrate"
	"github.com/sheikh-saqib/allowance-ledger/internal/storage/postgres/migrations"
	"github.com/sheikh-saqib/allowance-ledger/internal/storage/sqlstore"
)

// PostgresLedgerStore keeps the ledger in Postgres. A unit locks the account
// row FOR UPDATE, so units on one account queue behind each other across
// processes.
type PostgresLedgerStore struct {
	*sqlstore.Store
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		Store: sqlstore.New(db, Dialect()),
	}
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*PostgresLedgerStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresLedgerStore(db), nil
}

// Migrate applies the embedded schema.
func (p *PostgresLedgerStore) Migrate(ctx context.Context) error {
	return migrate.Apply(ctx, p.DB(), migrations.FS, ".", Rebind)
}

func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:        "postgres",
		Rebind:      Rebind,
		LockAccount: " FOR UPDATE",
		Classify:    classify,
	}
}

// Rebind turns ? placeholders into $1, $2, ...
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
		return fmt.Errorf("%w: %v", interfaces.ErrConflict, err)
	case "23514": // check_violation
		if pqErr.Constraint == "balance_non_negative" {
			return fmt.Errorf("%w: %v", interfaces.ErrNegativeBalance, err)
		}
	case "23505": // unique_violation
		return fmt.Errorf("%w: %v", interfaces.ErrAlreadyExists, err)
	case "23503": // foreign_key_violation
		return fmt.Errorf("%w: %v", interfaces.ErrNotFound, err)
	}
	return err
}

var (
	_ interfaces.LedgerStore  = (*PostgresLedgerStore)(nil)
	_ interfaces.CatalogStore = (*PostgresLedgerStore)(nil)
)

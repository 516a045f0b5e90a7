// Package sqlite stores the ledger in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	interfaces "github.com/sheikh-saqib/allowance-ledger/internal/interfaces"
	"github.com/sheikh-saqib/allowance-ledger/internal/storage/migrate"
	"github.com/sheikh-saqib/allowance-ledger/internal/storage/sqlite/migrations"
	"github.com/sheikh-saqib/allowance-ledger/internal/storage/sqlstore"
)

// Store is the SQLite ledger store. Writers share one connection and open
// IMMEDIATE transactions, so units never interleave.
type Store struct {
	*sqlstore.Store
}

// Open opens the database at path. Call Migrate before first use.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &Store{Store: sqlstore.New(sqlDB, Dialect())}, nil
}

// Migrate applies the embedded schema.
func (s *Store) Migrate(ctx context.Context) error {
	return migrate.Apply(ctx, s.DB(), migrations.FS, ".", nil)
}

// Dialect returns the SQLite flavour of the shared queries. Timestamps are
// stored as INTEGER unix nanoseconds.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:      "sqlite",
		TimeValue: sqlstore.UnixNanos,
		Classify:  classify,
	}
}

func classify(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	code := sqliteErr.Code()
	switch {
	case code&0xff == sqlite3.SQLITE_BUSY || code&0xff == sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", interfaces.ErrConflict, err)
	case code == sqlite3.SQLITE_CONSTRAINT_CHECK && strings.Contains(err.Error(), "balance_non_negative"):
		return fmt.Errorf("%w: %v", interfaces.ErrNegativeBalance, err)
	case code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return fmt.Errorf("%w: %v", interfaces.ErrAlreadyExists, err)
	case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %v", interfaces.ErrNotFound, err)
	}
	return err
}

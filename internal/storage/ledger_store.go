package storage

import (
	"context"
	"fmt"

	interfaces "github.com/sheikh-saqib/allowance-ledger/internal/interfaces"
	"github.com/sheikh-saqib/allowance-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/allowance-ledger/internal/storage/postgres"
	"github.com/sheikh-saqib/allowance-ledger/internal/storage/sqlite"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// LedgerStore is what the binaries open: the ledger contract plus catalog
// writes and lifecycle.
type LedgerStore interface {
	interfaces.LedgerStore
	interfaces.CatalogStore
	Migrate(ctx context.Context) error
	Close() error
}

// Options selects and locates a store.
type Options struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

// Open returns the store for opts.Driver. It does not migrate.
func Open(ctx context.Context, opts Options) (LedgerStore, error) {
	switch opts.Driver {
	case DriverMemory, "":
		return memory.NewMemoryLedgerStore(), nil
	case DriverSQLite:
		store, err := sqlite.Open(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverPostgres:
		store, err := postgres.Open(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

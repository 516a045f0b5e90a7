package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/allowance-ledger/internal/config"
	"github.com/sheikh-saqib/allowance-ledger/internal/ledger"
	"github.com/sheikh-saqib/allowance-ledger/internal/logging"
	"github.com/sheikh-saqib/allowance-ledger/internal/storage"
)

// app is built once per invocation by the root command.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  storage.LedgerStore
	ledger *ledger.Ledger
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var (
		a          app
		driver     string
		sqlitePath string
		dbURL      string
		logLevel   string
	)

	root := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Operate the allowance ledger",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if driver != "" {
				cfg.Store = driver
			}
			if sqlitePath != "" {
				cfg.SQLitePath = sqlitePath
			}
			if dbURL != "" {
				cfg.DatabaseURL = dbURL
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			store, err := storage.Open(cmd.Context(), storage.Options{
				Driver:      cfg.Store,
				DatabaseURL: cfg.DatabaseURL,
				SQLitePath:  cfg.SQLitePath,
			})
			if err != nil {
				return err
			}

			a.cfg = cfg
			a.logger = logger
			a.store = store
			a.ledger = ledger.NewLedger(store,
				ledger.WithLogger(logger),
				ledger.WithLocation(cfg.Location()),
				ledger.WithPayoutConcurrency(cfg.PayoutConcurrency))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			_ = a.logger.Sync()
			return a.store.Close()
		},
	}

	root.PersistentFlags().StringVar(&driver, "store", "", "store driver: memory, sqlite or postgres (default $LEDGER_STORE)")
	root.PersistentFlags().StringVar(&sqlitePath, "sqlite-path", "", "SQLite file (default $LEDGER_SQLITE_PATH)")
	root.PersistentFlags().StringVar(&dbURL, "database-url", "", "Postgres URL (default $LEDGER_DATABASE_URL)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default $LEDGER_LOG_LEVEL)")

	root.AddCommand(migrateCmd(&a), seedCmd(&a), payoutCmd(&a), adjustCmd(&a), reconcileCmd(&a))
	return root
}

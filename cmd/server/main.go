package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sheikh-saqib/allowance-ledger/internal/config"
	"github.com/sheikh-saqib/allowance-ledger/internal/events/kafka"
	"github.com/sheikh-saqib/allowance-ledger/internal/ledger"
	"github.com/sheikh-saqib/allowance-ledger/internal/logging"
	"github.com/sheikh-saqib/allowance-ledger/internal/storage"
	"github.com/sheikh-saqib/allowance-ledger/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "allowance-ledger", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.Store,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	opts := []ledger.Option{
		ledger.WithLogger(logger),
		ledger.WithLocation(cfg.Location()),
		ledger.WithPayoutConcurrency(cfg.PayoutConcurrency),
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers)
		defer publisher.Close()
		opts = append(opts, ledger.WithPublisher(publisher, cfg.KafkaTopic))
	}
	ledgerService := ledger.NewLedger(store, opts...)

	h := &handler{
		ledger:     ledgerService,
		logger:     logger,
		adminToken: cfg.AdminToken,
		cronSecret: cfg.CronSecret,
		now:        time.Now,
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.Store),
			zap.String("timezone", cfg.Timezone))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

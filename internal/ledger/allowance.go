package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	interfaces "github.com/sheikh-saqib/allowance-ledger/internal/interfaces"
	"github.com/sheikh-saqib/allowance-ledger/internal/models"
	"github.com/sheikh-saqib/allowance-ledger/internal/period"
)

// PayoutResult counts what one payout cycle did
type PayoutResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

var errNotDue = errors.New("allowance not due")

// RunPayoutCycle pays every active allowance that is due at now. Each config
// is paid in its own unit: the credit, the balance and lastPaid land
// together or not at all. A failing config is counted and logged and never
// stops the rest of the batch.
func (l *Ledger) RunPayoutCycle(ctx context.Context, now time.Time) (result PayoutResult, err error) {
	ctx, span := l.startSpan(ctx, "ledger.RunPayoutCycle")
	defer func() {
		span.SetAttributes(
			attribute.Int("payout.processed", result.Processed),
			attribute.Int("payout.skipped", result.Skipped),
			attribute.Int("payout.errors", result.Errors))
		endSpan(span, err)
	}()

	allowances, err := l.store.ListActiveAllowanceConfigs(ctx)
	if err != nil {
		return PayoutResult{}, fmt.Errorf("list allowance configs: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.payoutConcurrency)

	for _, allowance := range allowances {
		if !period.IsAllowanceDue(allowance.Config.LastPaid, allowance.Config.Frequency, now) {
			mu.Lock()
			result.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			payErr := l.payAllowance(gctx, allowance.Config, now)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case payErr == nil:
				result.Processed++
			case errors.Is(payErr, errNotDue):
				result.Skipped++
			default:
				result.Errors++
				l.logger.Error("allowance payout failed",
					zap.String("account_id", allowance.Config.AccountID),
					zap.String("config_id", allowance.Config.ID),
					zap.Error(payErr))
			}
			// Failures are counted, never propagated to the group.
			return nil
		})
	}
	_ = g.Wait()

	l.logger.Info("allowance payout cycle complete",
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors))
	return result, nil
}

// payAllowance credits one allowance. The config is read again inside the
// unit, so a cycle running concurrently cannot pay the same period twice.
func (l *Ledger) payAllowance(ctx context.Context, listed models.AllowanceConfig, now time.Time) error {
	var (
		txn     models.Transaction
		balance int64
	)
	err := l.atomically(ctx, listed.AccountID, func(ctx context.Context, tx interfaces.AccountTx) error {
		cfg, err := tx.AllowanceConfig(ctx)
		if errors.Is(err, interfaces.ErrNotFound) {
			// deleted since the cycle listed it
			return errNotDue
		}
		if err != nil {
			return err
		}
		if !cfg.Active || !period.IsAllowanceDue(cfg.LastPaid, cfg.Frequency, now) {
			return errNotDue
		}
		account, err := tx.Account(ctx)
		if err != nil {
			return err
		}

		txn, balance, err = l.record(ctx, tx, account, models.Transaction{
			Kind:        models.KindAllowance,
			Amount:      cfg.Amount,
			Description: fmt.Sprintf("%s allowance", cfg.Frequency.Title()),
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		return tx.SetAllowanceLastPaid(ctx, now)
	})
	if err != nil {
		return err
	}
	l.publish(ctx, txn, balance)
	return nil
}

// UpsertAllowanceConfig creates or replaces the allowance of an account.
// lastPaid survives an update so changing the amount does not trigger an
// extra payout.
func (l *Ledger) UpsertAllowanceConfig(ctx context.Context, accountID string, freq models.Frequency, amount int64, active bool) (models.AllowanceConfig, error) {
	if !freq.Valid() {
		return models.AllowanceConfig{}, ValidationError{Field: "frequency", Message: fmt.Sprintf("unknown frequency %q", freq)}
	}
	if amount < 0 {
		return models.AllowanceConfig{}, ValidationError{Field: "amount", Message: "must not be negative"}
	}
	if _, err := l.getAccount(ctx, accountID); err != nil {
		return models.AllowanceConfig{}, err
	}

	now := l.now().UTC()
	cfg := models.AllowanceConfig{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Frequency: freq,
		Amount:    amount,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	saved, err := l.store.UpsertAllowanceConfig(ctx, cfg)
	if err != nil {
		return models.AllowanceConfig{}, fmt.Errorf("upsert allowance config: %w", err)
	}
	l.logger.Info("allowance config saved",
		zap.String("account_id", accountID),
		zap.String("frequency", string(freq)),
		zap.Int64("amount", amount),
		zap.Bool("active", active))
	return saved, nil
}

// DeleteAllowanceConfig removes the allowance of an account.
func (l *Ledger) DeleteAllowanceConfig(ctx context.Context, accountID string) error {
	err := l.store.DeleteAllowanceConfig(ctx, accountID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return ErrAllowanceConfigNotFound
	}
	if err != nil {
		return fmt.Errorf("delete allowance config: %w", err)
	}
	l.logger.Info("allowance config deleted", zap.String("account_id", accountID))
	return nil
}

// GetAllowanceConfig returns the allowance of an account.
func (l *Ledger) GetAllowanceConfig(ctx context.Context, accountID string) (models.AllowanceConfig, error) {
	cfg, err := l.store.GetAllowanceConfig(ctx, accountID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return models.AllowanceConfig{}, ErrAllowanceConfigNotFound
	}
	if err != nil {
		return models.AllowanceConfig{}, fmt.Errorf("get allowance config: %w", err)
	}
	return cfg, nil
}

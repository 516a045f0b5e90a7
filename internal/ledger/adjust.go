package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/allowance-ledger/internal/interfaces"
	"github.com/sheikh-saqib/allowance-ledger/internal/models"
)

// AdjustResult is returned for an accepted adjustment
type AdjustResult struct {
	NewBalance  int64              `json:"new_balance"`
	Transaction models.Transaction `json:"transaction"`
}

// Adjust credits (positive amount) or debits (negative amount) an account
// with an admin supplied description. An adjustment that would leave the
// balance below zero is rejected without writing anything.
func (l *Ledger) Adjust(ctx context.Context, accountID string, amount int64, description string) (result AdjustResult, err error) {
	ctx, span := l.startSpan(ctx, "ledger.Adjust",
		attribute.String("account.id", accountID),
		attribute.Int64("amount", amount))
	defer func() { endSpan(span, err) }()

	description = strings.TrimSpace(description)
	if description == "" {
		return AdjustResult{}, ValidationError{Field: "description", Message: "is required"}
	}

	err = l.atomically(ctx, accountID, func(ctx context.Context, tx interfaces.AccountTx) error {
		account, err := tx.Account(ctx)
		if errors.Is(err, interfaces.ErrNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		txn, balance, err := l.record(ctx, tx, account, models.Transaction{
			Kind:        models.KindAdjustment,
			Amount:      amount,
			Description: description,
			CreatedAt:   l.now(),
		})
		if err != nil {
			return err
		}
		result = AdjustResult{NewBalance: balance, Transaction: txn}
		return nil
	})
	if errors.Is(err, interfaces.ErrNegativeBalance) {
		err = ErrNegativeResult
	}
	if err != nil {
		if !IsRejection(err) && !errors.Is(err, ErrNotFound) {
			return AdjustResult{}, fmt.Errorf("adjust: %w", err)
		}
		return AdjustResult{}, err
	}

	l.logger.Info("balance adjusted",
		zap.String("account_id", accountID),
		zap.Int64("amount", amount),
		zap.Int64("balance", result.NewBalance))
	l.publish(ctx, result.Transaction, result.NewBalance)
	return result, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/allowance-ledger/internal/interfaces"
	"github.com/sheikh-saqib/allowance-ledger/internal/models"
	"github.com/sheikh-saqib/allowance-ledger/internal/period"
)

// PurchaseResult is returned for an accepted purchase
type PurchaseResult struct {
	NewBalance  int64              `json:"new_balance"`
	Transaction models.Transaction `json:"transaction"`
}

// Purchase debits the price of productID from accountID if the product is
// active, was not bought since the last weekly reset, and the balance covers
// it. Checks run in that order, and all of them run again inside the unit
// that writes the debit.
func (l *Ledger) Purchase(ctx context.Context, accountID, productID string, now time.Time) (result PurchaseResult, err error) {
	ctx, span := l.startSpan(ctx, "ledger.Purchase",
		attribute.String("account.id", accountID),
		attribute.String("product.id", productID))
	defer func() { endSpan(span, err) }()

	if accountID == "" {
		return PurchaseResult{}, ValidationError{Field: "account_id", Message: "is required"}
	}
	if productID == "" {
		return PurchaseResult{}, ValidationError{Field: "product_id", Message: "is required"}
	}

	local := now.In(l.location)
	windowStart := period.CurrentWeekBoundary(local)

	err = l.atomically(ctx, accountID, func(ctx context.Context, tx interfaces.AccountTx) error {
		account, err := tx.Account(ctx)
		if errors.Is(err, interfaces.ErrNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		product, err := tx.Product(ctx, productID)
		if errors.Is(err, interfaces.ErrNotFound) {
			return ErrProductNotFound
		}
		if err != nil {
			return err
		}
		if !product.Active {
			return ErrProductInactive
		}

		bought, err := tx.HasPurchaseSince(ctx, productID, windowStart)
		if err != nil {
			return err
		}
		if bought {
			return &AlreadyPurchasedError{
				ProductName: product.Name,
				AvailableAt: period.NextWeekBoundary(local),
			}
		}

		if account.Balance < product.Price {
			return ErrInsufficientBalance
		}

		txn, balance, err := l.record(ctx, tx, account, models.Transaction{
			Kind:        models.KindPurchase,
			Amount:      -product.Price,
			Description: fmt.Sprintf("Purchased %s", product.Name),
			ProductID:   product.ID,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		result = PurchaseResult{NewBalance: balance, Transaction: txn}
		return nil
	})
	if err != nil {
		if !IsRejection(err) && !errors.Is(err, ErrNotFound) {
			l.logger.Error("purchase failed",
				zap.String("account_id", accountID),
				zap.String("product_id", productID),
				zap.Error(err))
			return PurchaseResult{}, fmt.Errorf("purchase: %w", err)
		}
		return PurchaseResult{}, err
	}

	l.logger.Info("purchase recorded",
		zap.String("account_id", accountID),
		zap.String("product_id", productID),
		zap.Int64("amount", result.Transaction.Amount),
		zap.Int64("balance", result.NewBalance))
	l.publish(ctx, result.Transaction, result.NewBalance)
	return result, nil
}

// PurchasedThisWeek lists the ids of products accountID already bought in the
// current weekly window.
func (l *Ledger) PurchasedThisWeek(ctx context.Context, accountID string, now time.Time) ([]string, error) {
	if _, err := l.getAccount(ctx, accountID); err != nil {
		return nil, err
	}
	since := period.CurrentWeekBoundary(now.In(l.location))
	ids, err := l.store.PurchasedProductsSince(ctx, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("purchased products: %w", err)
	}
	return ids, nil
}

// NextReset returns when the weekly purchase window next resets.
func (l *Ledger) NextReset(now time.Time) time.Time {
	return period.NextWeekBoundary(now.In(l.location))
}

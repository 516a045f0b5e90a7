package ledger

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput = errors.New("ledger: invalid input")
	ErrNotFound     = errors.New("ledger: not found")

	ErrAccountNotFound         = fmt.Errorf("%w: account", ErrNotFound)
	ErrProductNotFound         = fmt.Errorf("%w: product", ErrNotFound)
	ErrProductInactive         = fmt.Errorf("%w: product inactive", ErrNotFound)
	ErrAllowanceConfigNotFound = fmt.Errorf("%w: allowance config", ErrNotFound)

	ErrAlreadyPurchasedThisWeek = errors.New("ledger: already purchased this week")
	ErrInsufficientBalance      = errors.New("ledger: insufficient balance")
	ErrNegativeResult           = errors.New("ledger: balance cannot be negative")
)

// ValidationError describes input rejected before any store access.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("ledger: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// AlreadyPurchasedError carries when the product can be bought again.
type AlreadyPurchasedError struct {
	ProductName string
	AvailableAt time.Time
}

func (e *AlreadyPurchasedError) Error() string {
	return fmt.Sprintf("ledger: already bought %q this week, available again on %s",
		e.ProductName, e.AvailableAt.Format("Mon Jan 2 2006 at 15:04"))
}

func (e *AlreadyPurchasedError) Is(target error) bool {
	return target == ErrAlreadyPurchasedThisWeek
}

// IsRejection reports whether err is a business rule rejection rather than
// an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrAlreadyPurchasedThisWeek) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNegativeResult)
}

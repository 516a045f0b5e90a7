package ledger

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	minUnits = decimal.NewFromInt(math.MinInt64)
	maxUnits = decimal.NewFromInt(math.MaxInt64)
)

// WholeUnits floors amount to whole currency units. Amounts that do not fit
// an int64 after flooring are rejected as invalid input for field.
func WholeUnits(field string, amount decimal.Decimal) (int64, error) {
	floored := amount.Floor()
	if floored.LessThan(minUnits) || floored.GreaterThan(maxUnits) {
		return 0, ValidationError{Field: field, Message: "is out of range"}
	}
	return floored.IntPart(), nil
}

// addBalance returns balance+amount, or false when the sum overflows.
func addBalance(balance, amount int64) (int64, bool) {
	if amount > 0 && balance > math.MaxInt64-amount {
		return 0, false
	}
	if amount < 0 && balance < math.MinInt64-amount {
		return 0, false
	}
	return balance + amount, true
}

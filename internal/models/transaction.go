package models

import "time"

// TransactionKind names why a transaction was written
type TransactionKind string

const (
	KindAllowance  TransactionKind = "allowance"
	KindPurchase   TransactionKind = "purchase"
	KindAdjustment TransactionKind = "adjustment"
)

// Transaction is a single immutable ledger record for an account.
// The sum of all amounts for an account equals the account balance.
type Transaction struct {
	ID          string          `json:"id"`                   // ULID, sorts by creation
	AccountID   string          `json:"account_id"`           // which account this entry belongs to
	Kind        TransactionKind `json:"kind"`                 // allowance / purchase / adjustment
	Amount      int64           `json:"amount"`               // positive credit, negative debit
	Description string          `json:"description"`          // system generated except for adjustments
	ProductID   string          `json:"product_id,omitempty"` // set for purchases only
	CreatedAt   time.Time       `json:"created_at"`
}

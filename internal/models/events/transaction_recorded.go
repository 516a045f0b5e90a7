package events

import (
	"time"

	"github.com/sheikh-saqib/allowance-ledger/internal/models"
)

// TopicTransactionRecorded is the default topic for committed ledger writes.
const TopicTransactionRecorded = "ledger.transaction_recorded"

// TransactionRecorded is emitted after a ledger unit commits
type TransactionRecorded struct {
	EventID       string                 `json:"event_id"`
	TransactionID string                 `json:"transaction_id"`
	AccountID     string                 `json:"account_id"`
	Kind          models.TransactionKind `json:"kind"`
	Amount        int64                  `json:"amount"`
	Balance       int64                  `json:"balance"` // balance after the write
	ProductID     string                 `json:"product_id,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

package interfaces

import "errors"

// Errors every LedgerStore implementation reports with errors.Is semantics.
var (
	ErrNotFound = errors.New("store: not found")
	// ErrConflict means a concurrent write to the same account was detected;
	// the unit was rolled back and may be retried.
	ErrConflict        = errors.New("store: conflicting concurrent write")
	ErrNegativeBalance = errors.New("store: balance would become negative")
	ErrAlreadyExists   = errors.New("store: already exists")
)

package models

import "time"

// Frequency is how often an allowance is paid out
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Title returns the frequency with its first letter upper-cased, e.g. "Weekly".
func (f Frequency) Title() string {
	if f == "" {
		return ""
	}
	b := []byte(f)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

// AllowanceConfig is the recurring payout set up for one account
type AllowanceConfig struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"` // at most one config per account
	Frequency Frequency  `json:"frequency"`
	Amount    int64      `json:"amount"`
	Active    bool       `json:"active"`
	LastPaid  *time.Time `json:"last_paid,omitempty"` // nil until the first payout
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ActiveAllowance pairs an active config with the account it pays into
type ActiveAllowance struct {
	Config  AllowanceConfig
	Account Account
}

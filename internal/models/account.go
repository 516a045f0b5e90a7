package models

import "time"

// Account holds the cached balance for one kid
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Balance   int64     `json:"balance"` // smallest currency unit, never negative
	CreatedAt time.Time `json:"created_at"`
}

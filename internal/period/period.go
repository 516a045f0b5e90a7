// Package period decides when recurring allowances are due and where the
// weekly purchase window starts and ends. Everything here is pure: callers
// pass the reference instant.
package period

import (
	"time"

	"github.com/sheikh-saqib/allowance-ledger/internal/models"
)

const day = 24 * time.Hour

// Weekly purchase windows reset every Saturday at 23:59:00 wall-clock time.
const (
	ResetWeekday = time.Saturday
	ResetHour    = 23
	ResetMinute  = 59
)

// Interval returns the minimum time between two payouts of freq, and false
// for an unknown frequency.
func Interval(freq models.Frequency) (time.Duration, bool) {
	switch freq {
	case models.FrequencyDaily:
		return day, true
	case models.FrequencyWeekly:
		return 7 * day, true
	case models.FrequencyMonthly:
		return 30 * day, true
	}
	return 0, false
}

// IsAllowanceDue reports whether an allowance last paid at lastPaid should be
// paid again at now. A never-paid allowance is always due, whatever its
// frequency. A paid allowance with an unknown frequency never is.
func IsAllowanceDue(lastPaid *time.Time, freq models.Frequency, now time.Time) bool {
	if lastPaid == nil {
		return true
	}
	interval, ok := Interval(freq)
	if !ok {
		return false
	}
	return now.Sub(*lastPaid) >= interval
}

// CurrentWeekBoundary returns the most recent reset at or before now,
// computed in now's location.
func CurrentWeekBoundary(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d-daysSinceReset(now), ResetHour, ResetMinute, 0, 0, now.Location())
}

// NextWeekBoundary returns the first reset strictly after now. It is always
// seven calendar days after CurrentWeekBoundary(now).
func NextWeekBoundary(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d-daysSinceReset(now)+7, ResetHour, ResetMinute, 0, 0, now.Location())
}

func daysSinceReset(now time.Time) int {
	wd := now.Weekday()
	if wd == ResetWeekday {
		y, m, d := now.Date()
		todayReset := time.Date(y, m, d, ResetHour, ResetMinute, 0, 0, now.Location())
		if now.Before(todayReset) {
			return 7
		}
		return 0
	}
	// Sunday is one day after Saturday, Monday two, and so on.
	return int(wd) + 1
}

package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/allowance-ledger/internal/models"
)

func at(value string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestIsAllowanceDue(t *testing.T) {
	now := at("2026-10-19 12:00:00")

	t.Run("never paid is due for every frequency", func(t *testing.T) {
		for _, freq := range []models.Frequency{models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly, "yearly", ""} {
			assert.True(t, IsAllowanceDue(nil, freq, now), freq)
		}
	})

	tests := []struct {
		name     string
		freq     models.Frequency
		lastPaid time.Time
		want     bool
	}{
		{"daily after 23h", models.FrequencyDaily, now.Add(-23 * time.Hour), false},
		{"daily after exactly one day", models.FrequencyDaily, now.Add(-24 * time.Hour), true},
		{"weekly after 6 days", models.FrequencyWeekly, now.AddDate(0, 0, -6), false},
		{"weekly after 7 days", models.FrequencyWeekly, now.AddDate(0, 0, -7), true},
		{"weekly one second short", models.FrequencyWeekly, now.Add(-7*24*time.Hour + time.Second), false},
		{"monthly after 29 days", models.FrequencyMonthly, now.Add(-29 * 24 * time.Hour), false},
		{"monthly after 30 days", models.FrequencyMonthly, now.Add(-30 * 24 * time.Hour), true},
		{"monthly after 45 days", models.FrequencyMonthly, now.Add(-45 * 24 * time.Hour), true},
		{"unknown frequency", models.Frequency("yearly"), now.AddDate(-2, 0, 0), false},
		{"paid in the future", models.FrequencyDaily, now.Add(time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAllowanceDue(ptr(tt.lastPaid), tt.freq, now))
		})
	}

	t.Run("unknown frequency never paid", func(t *testing.T) {
		assert.True(t, IsAllowanceDue(nil, models.Frequency("yearly"), now))
	})
}

func TestWeekBoundaries(t *testing.T) {
	// 2026-10-17 and 2026-10-24 are Saturdays.
	tests := []struct {
		name    string
		now     string
		current string
		next    string
	}{
		{"monday", "2026-10-19 12:00:00", "2026-10-17 23:59:00", "2026-10-24 23:59:00"},
		{"sunday just after reset", "2026-10-18 00:00:00", "2026-10-17 23:59:00", "2026-10-24 23:59:00"},
		{"friday night", "2026-10-23 23:59:59", "2026-10-17 23:59:00", "2026-10-24 23:59:00"},
		{"saturday morning", "2026-10-24 08:00:00", "2026-10-17 23:59:00", "2026-10-24 23:59:00"},
		{"saturday one second before reset", "2026-10-24 23:58:59", "2026-10-17 23:59:00", "2026-10-24 23:59:00"},
		{"saturday exactly at reset", "2026-10-24 23:59:00", "2026-10-24 23:59:00", "2026-10-31 23:59:00"},
		{"saturday after reset", "2026-10-24 23:59:30", "2026-10-24 23:59:00", "2026-10-31 23:59:00"},
		{"across a month end", "2026-11-02 09:00:00", "2026-10-31 23:59:00", "2026-11-07 23:59:00"},
		{"across a year end", "2027-01-01 09:00:00", "2026-12-26 23:59:00", "2027-01-02 23:59:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := at(tt.now)
			assert.Equal(t, at(tt.current), CurrentWeekBoundary(now))
			assert.Equal(t, at(tt.next), NextWeekBoundary(now))
		})
	}
}

func TestWeekBoundariesAreSevenDaysApart(t *testing.T) {
	start := at("2026-01-01 00:00:00")
	for i := 0; i < 60*24*2; i++ {
		now := start.Add(time.Duration(i) * 17 * time.Minute)
		current := CurrentWeekBoundary(now)
		next := NextWeekBoundary(now)

		require.Equal(t, 7*24*time.Hour, next.Sub(current), "now=%s", now)
		require.True(t, next.After(now), "now=%s", now)
		require.False(t, current.After(now), "now=%s", now)
		require.Equal(t, time.Saturday, current.Weekday())
	}
}

func TestWeekBoundaryUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	// Saturday 23:59 UTC is already Sunday in UTC+10.
	now := at("2026-10-24 23:59:30").In(loc)

	current := CurrentWeekBoundary(now)
	assert.Equal(t, time.Date(2026, 10, 24, 23, 59, 0, 0, loc), current)
	assert.Equal(t, loc, current.Location())
}

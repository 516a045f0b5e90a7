package sqlstore

import (
	"fmt"
	"time"
)

// timestamp scans a nullable time column stored either as unix nanoseconds
// or as a native timestamp.
type timestamp struct {
	Time  time.Time
	Valid bool
}

func (ts *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		ts.Time, ts.Valid = time.Time{}, false
	case int64:
		ts.Time, ts.Valid = time.Unix(0, v).UTC(), true
	case time.Time:
		ts.Time, ts.Valid = v.UTC(), true
	default:
		return fmt.Errorf("unsupported timestamp column type %T", src)
	}
	return nil
}

// Ptr returns nil for NULL.
func (ts timestamp) Ptr() *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

// UnixNanos encodes t for INTEGER timestamp columns.
func UnixNanos(t time.Time) any {
	return t.UTC().UnixNano()
}

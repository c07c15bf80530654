package bot

import (
	"errors"
	"time"
)

const (
	dateLayout = "02.01.2006"
	timeLayout = "15:04"
)

// Validation errors for user-entered date/time input. These are recoverable
// and surface as re-prompts, never as faults.
var (
	ErrBadDate = errors.New("invalid date, expected DD.MM.YYYY")
	ErrBadTime = errors.New("invalid time, expected HH:MM")
)

// ParseDate parses a DD.MM.YYYY calendar date in the server's local zone.
// Impossible dates (month 13, day 31 of April) are rejected.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, ErrBadDate
	}
	return d, nil
}

// CombineDateTime combines an already-validated DD.MM.YYYY date with an
// HH:MM clock time into a full local timestamp.
func CombineDateTime(date, clock string) (time.Time, error) {
	ts, err := time.ParseInLocation(dateLayout+" "+timeLayout, date+" "+clock, time.Local)
	if err != nil {
		return time.Time{}, ErrBadTime
	}
	return ts, nil
}

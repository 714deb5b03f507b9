package flow

import (
	"strings"
	"time"
)

// userDateLayout is the only date format accepted from users: DD.MM.YYYY.
const userDateLayout = "02.01.2006"

// ParseUserDate parses a user-supplied date. The second result is false for
// anything that is not a valid calendar date in DD.MM.YYYY form.
func ParseUserDate(s string) (time.Time, bool) {
	t, err := time.Parse(userDateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatUserDate renders a date in the user-facing format.
func FormatUserDate(t time.Time) string {
	return t.Format(userDateLayout)
}

// NextDayOrLater reports whether d falls on the civil day after now or later.
// Equality with today is rejected.
func NextDayOrLater(d, now time.Time) bool {
	tomorrow := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(tomorrow)
}

package flow

import (
	"testing"
	"time"
)

func TestParseUserDate(t *testing.T) {
	d, ok := ParseUserDate("11.06.2024")
	if !ok {
		t.Fatal("expected 11.06.2024 to parse")
	}
	if d.Day() != 11 || d.Month() != time.June || d.Year() != 2024 {
		t.Fatalf("unexpected date: %v", d)
	}

	for _, bad := range []string{"31.13.2024", "2024-06-11", "11/06/2024", "", "завтра", "32.01.2024"} {
		if _, ok := ParseUserDate(bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestParseUserDateTrimsWhitespace(t *testing.T) {
	if _, ok := ParseUserDate("  01.09.2026  "); !ok {
		t.Fatal("expected padded date to parse")
	}
}

func TestNextDayOrLater(t *testing.T) {
	now := time.Date(2024, 6, 10, 15, 30, 0, 0, time.UTC)

	today, _ := ParseUserDate("10.06.2024")
	if NextDayOrLater(today, now) {
		t.Error("today must be rejected")
	}
	tomorrow, _ := ParseUserDate("11.06.2024")
	if !NextDayOrLater(tomorrow, now) {
		t.Error("tomorrow must be accepted")
	}
	yesterday, _ := ParseUserDate("09.06.2024")
	if NextDayOrLater(yesterday, now) {
		t.Error("yesterday must be rejected")
	}
	nextMonth, _ := ParseUserDate("10.07.2024")
	if !NextDayOrLater(nextMonth, now) {
		t.Error("a later date must be accepted")
	}
}

// Package timeutil provides calendar-date helpers used by streak tracking
// and quest expiry. All dates are normalised to midnight UTC so that two
// activities on the same calendar day compare equal regardless of clock time.
package timeutil

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Clock abstracts the wall clock so handlers can be tested with a fixed date.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the real UTC time.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.T }

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// Today returns the current UTC calendar date.
func Today() time.Time {
	return DateOf(Now())
}

// TodayFrom returns the calendar date of the given clock.
func TodayFrom(c Clock) time.Time {
	return DateOf(c.Now())
}

// Date creates a UTC calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a calendar date by n days.
func AddDays(d time.Time, n int) time.Time {
	return DateOf(d).AddDate(0, 0, n)
}

// IsSameDay checks if two times fall on the same UTC calendar date.
func IsSameDay(t1, t2 time.Time) bool {
	return DateOf(t1).Equal(DateOf(t2))
}

// IsConsecutiveDay checks if t2 is the calendar day after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	return AddDays(t1, 1).Equal(DateOf(t2))
}

// DaysBetween returns the signed number of calendar days from t1 to t2.
func DaysBetween(t1, t2 time.Time) int {
	d := DateOf(t2).Sub(DateOf(t1))
	return int(d.Hours() / 24)
}

// StartOfWeek returns Monday of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	d := DateOf(t)
	weekday := int(d.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return AddDays(d, -(weekday - 1))
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return DateOf(t).Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD string as a UTC calendar date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return t, nil
}

// FormatRelative formats a time as a short relative duration ("3h ago", "in 2d").
func FormatRelative(t time.Time) string {
	d := Now().Sub(t)
	if d < 0 {
		return "in " + shortDuration(-d)
	}
	return shortDuration(d) + " ago"
}

func shortDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

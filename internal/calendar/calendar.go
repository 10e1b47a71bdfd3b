// Package calendar buckets dates into weeks, months and fiscal seasons and
// resolves trading days against the exchange holiday calendar.
//
// Every date is a UTC midnight time.Time; use Day or Truncate to build one.
package calendar

import (
	"fmt"
	"iter"
	"time"
)

// DateLayout is the YYYY-MM-DD layout used by flags, JSON feeds and logs
const DateLayout = "2006-01-02"

// Day returns the UTC midnight of y-m-d
func Day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the clock part of t, keeping t's calendar date
func Truncate(t time.Time) time.Time {
	return Day(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats d as YYYY-MM-DD
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// DateRange yields every date from start to end, both inclusive.
// Each call to the returned sequence starts over.
func DateRange(start, end time.Time) iter.Seq[time.Time] {
	start, end = Truncate(start), Truncate(end)
	return func(yield func(time.Time) bool) {
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if !yield(d) {
				return
			}
		}
	}
}

// WeekRange returns Monday and Sunday of the ISO week containing d
func WeekRange(d time.Time) (time.Time, time.Time) {
	d = Truncate(d)
	offset := (int(d.Weekday()) + 6) % 7
	start := d.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 6)
}

// MonthRange returns the first and last day of d's month
func MonthRange(d time.Time) (time.Time, time.Time) {
	start := Day(d.Year(), d.Month(), 1)
	return start, start.AddDate(0, 1, -1)
}

// IsWeekend reports whether d is Saturday or Sunday
func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

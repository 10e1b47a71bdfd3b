package calendar

import (
	"time"
)

// Taipei is the exchange timezone. Falls back to a fixed UTC+8 zone when tzdata is missing.
var Taipei = loadTaipei()

func loadTaipei() *time.Location {
	loc, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant
func (c FixedClock) Now() time.Time { return c.T }

// Today returns the clock's current date in Taipei
func Today(c Clock) time.Time {
	now := c.Now().In(Taipei)
	return Day(now.Year(), now.Month(), now.Day())
}

package calendar

import (
	"time"
)

// Holidays is the exchange calendar: market holidays plus weekend makeup trading days
type Holidays struct {
	Market map[time.Time]struct{}
	Makeup map[time.Time]struct{}
}

// NewHolidays builds a calendar from date lists
func NewHolidays(market, makeup []time.Time) Holidays {
	h := Holidays{
		Market: make(map[time.Time]struct{}, len(market)),
		Makeup: make(map[time.Time]struct{}, len(makeup)),
	}
	for _, d := range market {
		h.Market[Truncate(d)] = struct{}{}
	}
	for _, d := range makeup {
		h.Makeup[Truncate(d)] = struct{}{}
	}
	return h
}

// IsHoliday reports whether d is a declared market holiday
func (h Holidays) IsHoliday(d time.Time) bool {
	_, ok := h.Market[Truncate(d)]
	return ok
}

// IsMakeupDay reports whether d is a weekend designated as a trading day
func (h Holidays) IsMakeupDay(d time.Time) bool {
	_, ok := h.Makeup[Truncate(d)]
	return ok
}

// IsTradingDay reports whether the market opens on d
func (h Holidays) IsTradingDay(d time.Time) bool {
	if h.IsHoliday(d) {
		return false
	}
	if IsWeekend(d) && !h.IsMakeupDay(d) {
		return false
	}
	return true
}

// CheckAllHoliday reports whether no date in [start, end] is a trading day
func (h Holidays) CheckAllHoliday(start, end time.Time) bool {
	for d := range DateRange(start, end) {
		if h.IsTradingDay(d) {
			return false
		}
	}
	return true
}

// marketCloseHour is when the day's quotes are final
const marketCloseHour = 16

// LatestTradingDate returns the last date whose quotes are published as of now.
// Before 16:00 Taipei time today does not count yet.
func (h Holidays) LatestTradingDate(now time.Time) time.Time {
	local := now.In(Taipei)
	d := Day(local.Year(), local.Month(), local.Day())
	if local.Hour() < marketCloseHour {
		d = d.AddDate(0, 0, -1)
	}
	for !h.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

package calendar

import (
	"fmt"
	"time"
)

// Fiscal seasons follow the statement filing lag, not calendar quarters:
//
//	Q1 = [Apr 1, Jun 1)
//	Q2 = [Jun 1, Sep 1)
//	Q3 = [Sep 1, Dec 1)
//	Q4 = [Dec 1, Apr 1 of the next year)
var seasonOfMonth = [12]int{4, 4, 4, 1, 1, 2, 2, 2, 3, 3, 3, 4}

// seasonStartMonth is the month a season window opens
var seasonStartMonth = [5]time.Month{0, time.April, time.June, time.September, time.December}

// YearSeason identifies one fiscal season
type YearSeason struct {
	Year   int
	Season int
}

func (ys YearSeason) String() string {
	return fmt.Sprintf("%dQ%d", ys.Year, ys.Season)
}

// Compare orders seasons lexicographically by (Year, Season)
func (ys YearSeason) Compare(other YearSeason) int {
	switch {
	case ys.Year < other.Year:
		return -1
	case ys.Year > other.Year:
		return 1
	case ys.Season < other.Season:
		return -1
	case ys.Season > other.Season:
		return 1
	default:
		return 0
	}
}

// After reports whether ys comes later than other
func (ys YearSeason) After(other YearSeason) bool {
	return ys.Compare(other) > 0
}

// Next returns the following season
func (ys YearSeason) Next() YearSeason {
	if ys.Season == 4 {
		return YearSeason{Year: ys.Year + 1, Season: 1}
	}
	return YearSeason{Year: ys.Year, Season: ys.Season + 1}
}

// Start returns the first day of the season window
func (ys YearSeason) Start() time.Time {
	return Day(ys.Year, seasonStartMonth[ys.Season], 1)
}

// SeasonRange returns the first and last day of the fiscal window containing d.
// January to March belong to the Q4 window opened the previous December.
func SeasonRange(d time.Time) (time.Time, time.Time) {
	ys := DateToYearSeason(d)
	start := ys.Start()
	end := ys.Next().Start().AddDate(0, 0, -1)
	return start, end
}

// DateToYearSeason returns the season whose window contains d
func DateToYearSeason(d time.Time) YearSeason {
	year := d.Year()
	if d.Month() <= time.March {
		year--
	}
	return YearSeason{Year: year, Season: seasonOfMonth[d.Month()-1]}
}

// LatestYearSeason returns the most recent season whose statements are published as of d
func LatestYearSeason(d time.Time) YearSeason {
	year := d.Year()
	switch d.Month() {
	case time.December:
		return YearSeason{Year: year, Season: 3}
	case time.January, time.February, time.March:
		return YearSeason{Year: year - 1, Season: 3}
	case time.April, time.May:
		return YearSeason{Year: year - 1, Season: 4}
	case time.June, time.July, time.August:
		return YearSeason{Year: year, Season: 1}
	default:
		return YearSeason{Year: year, Season: 2}
	}
}

// LatestSeasonDate is the window start of LatestYearSeason(d)
func LatestSeasonDate(d time.Time) time.Time {
	return LatestYearSeason(d).Start()
}

// IsSeasonStart reports whether d opens a season window
func IsSeasonStart(d time.Time) bool {
	start, _ := SeasonRange(d)
	return start.Equal(Truncate(d))
}

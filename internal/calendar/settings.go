package calendar

import (
	"time"

	"github.com/stockprophet/backend/internal/contracts"
)

// CheckCrawlerDateSettings rejects crawl windows that start before minAllowed,
// end before they start, or end after today.
func CheckCrawlerDateSettings(start, end, minAllowed, today time.Time) error {
	if start.Before(minAllowed) {
		return contracts.RangeError("start %s is before the earliest available date %s", FormatDate(start), FormatDate(minAllowed))
	}
	if end.Before(start) {
		return contracts.RangeError("end %s is before start %s", FormatDate(end), FormatDate(start))
	}
	if end.After(today) {
		return contracts.RangeError("end %s is after today %s", FormatDate(end), FormatDate(today))
	}
	return nil
}

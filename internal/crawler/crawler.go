// Package crawler runs the incremental crawl tasks: listings and daily
// history per market, fundamentals across markets, and capital reductions.
//
// Every task fetches sequentially, records the units it could not fetch as
// losses and moves on; only data-integrity failures abort a task.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/external/mops"
)

// SnapshotSource fetches one market's daily quotes and category listing
type SnapshotSource interface {
	Market() contracts.Market
	FetchDailySnapshot(ctx context.Context, date time.Time) ([]contracts.Quote, error)
	FetchCategoryListing(ctx context.Context, date time.Time) (contracts.Listing, error)
}

// StatementSource fetches seasonal statements and monthly revenue
type StatementSource interface {
	FetchIncomeStatement(ctx context.Context, market contracts.Market, code string, year, season int, step mops.Step) (*contracts.IncomeStatement, error)
	FetchBalanceSheet(ctx context.Context, market contracts.Market, code string, year, season int, step mops.Step) (*contracts.BalanceSheet, error)
	FetchMonthlyRevenue(ctx context.Context, market contracts.Market, year, month int) (map[string]int64, error)
}

// ReductionSource fetches the capital reduction feed
type ReductionSource interface {
	FetchCapitalReductionFeed(ctx context.Context, since, until time.Time) ([]contracts.ReductionEvent, error)
}

// DefaultRetries is how many times a market task repeats its listing and history pass
const DefaultRetries = 3

// DefaultStart returns the first date a market publishes daily history for
func DefaultStart(market contracts.Market) time.Time {
	if market == contracts.MarketOTC {
		return calendar.Day(2007, time.July, 2)
	}
	return calendar.Day(2004, time.February, 11)
}

// FundamentalStart is the first date statements are crawled from
var FundamentalStart = calendar.Day(2013, time.January, 1)

// Window is an optional crawl range. Zero dates fall back to the task defaults.
type Window struct {
	Start time.Time
	End   time.Time
}

// resolve fills in the defaults and validates the range against minAllowed and today
func (w Window) resolve(minAllowed time.Time, holidays calendar.Holidays, clock calendar.Clock) (time.Time, time.Time, error) {
	start, end := w.Start, w.End
	if start.IsZero() {
		start = minAllowed
	}
	if end.IsZero() {
		end = holidays.LatestTradingDate(clock.Now())
	}
	start, end = calendar.Truncate(start), calendar.Truncate(end)
	if err := calendar.CheckCrawlerDateSettings(start, end, minAllowed, calendar.Today(clock)); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// missing wraps an absent row that must exist
func missing(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", contracts.ErrMissingDimension, fmt.Sprintf(format, args...))
}

// isRemote reports whether err is a remote fetch failure worth another pass
func isRemote(err error) bool {
	return errors.Is(err, contracts.ErrRemoteFetch)
}

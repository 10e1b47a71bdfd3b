package contracts

import "fmt"

// Market is the listing venue of a stock
type Market string

const (
	MarketTSE Market = "tse" // 上市, Taiwan Stock Exchange
	MarketOTC Market = "otc" // 上櫃, Taipei Exchange
)

// AllMarkets returns every market in crawl order
func AllMarkets() []Market {
	return []Market{MarketTSE, MarketOTC}
}

// ParseMarket validates a market string
func ParseMarket(s string) (Market, error) {
	switch Market(s) {
	case MarketTSE, MarketOTC:
		return Market(s), nil
	default:
		return "", fmt.Errorf("unknown market %q", s)
	}
}

// Period is the granularity of a date dimension
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodSeason  Period = "season"
)

// ParsePeriod validates a period string
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodSeason:
		return Period(s), nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// IsCandlestick reports whether price history rows exist for the period
func (p Period) IsCandlestick() bool {
	return p == PeriodDaily || p == PeriodWeekly || p == PeriodMonthly
}

const (
	// CategoryUnclassified holds codes seen in a daily snapshot but absent from every listing
	CategoryUnclassified = "未分類"
	// CategoryETF is skipped by fundamental crawls
	CategoryETF = "ETF"
	// CategoryFinance publishes the alternate statement layout (step=2)
	CategoryFinance = "金融保險"
)

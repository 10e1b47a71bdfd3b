package selection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/guregu/null/v6"
	"golang.org/x/sync/errgroup"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/fundamental"
	"github.com/stockprophet/backend/internal/indicator"
	"github.com/stockprophet/backend/pkg/logger"
)

var validate = validator.New()

// DefaultWorkers is how many stocks a screen evaluates at once
const DefaultWorkers = 4

// Reader is the part of the store screens read
type Reader interface {
	ListStocks(ctx context.Context, f contracts.StockFilter) ([]contracts.Stock, error)
	ListPriceHistory(ctx context.Context, period contracts.Period, stockID int64, f contracts.HistoryFilter) ([]contracts.PriceHistory, error)
	ListBalanceSheets(ctx context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.BalanceSheet, error)
	ListIncomeStatements(ctx context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.IncomeStatement, error)
	ListMonthlyRevenue(ctx context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.MonthlyRevenue, error)
}

// Row is one screened stock at the evaluation date
type Row struct {
	StockID         int64      `json:"stock_id"`
	Code            string     `json:"code"`
	Name            string     `json:"name"`
	Date            time.Time  `json:"date"`
	Close           float64    `json:"close"`
	Change          null.Float `json:"change"`
	Lots            int64      `json:"lots"`
	PBR             null.Float `json:"pbr"`
	EPS             null.Float `json:"eps"`
	OperatingMargin null.Float `json:"operating_margin"`
	GrossMargin     null.Float `json:"gross_margin"`
}

// Label renders the stock as name(code)
func (r Row) Label() string {
	return fmt.Sprintf("%s(%s)", r.Name, r.Code)
}

// MACDQuery configures MACDScan
type MACDQuery struct {
	Market  contracts.Market `json:"market" validate:"omitempty,oneof=tse otc"`
	NDay    int              `json:"n_day" validate:"gte=1"`
	Weekly  bool             `json:"weekly"`
	Monthly bool             `json:"monthly"`
	Fast    int              `json:"fast" validate:"gte=1"`
	Slow    int              `json:"slow" validate:"gte=1"`
	Signal  int              `json:"signal" validate:"gte=1"`
}

// KDJQuery configures KDJScan
type KDJQuery struct {
	Market  contracts.Market `json:"market" validate:"omitempty,oneof=tse otc"`
	Weekly  bool             `json:"weekly"`
	Monthly bool             `json:"monthly"`
	Scalar  int              `json:"scalar" validate:"gte=1,lte=8"`
}

// Screener lists alive stocks matching technical or fundamental conditions
// on the latest trading date
// ⭐ SSOT: 종목 스크리닝 로직은 여기서만
type Screener struct {
	reader   Reader
	holidays calendar.Holidays
	clock    calendar.Clock
	workers  int
	logger   *logger.Logger
}

// NewScreener creates a new screener
func NewScreener(reader Reader, holidays calendar.Holidays, clock calendar.Clock, log *logger.Logger) *Screener {
	return &Screener{
		reader:   reader,
		holidays: holidays,
		clock:    clock,
		workers:  DefaultWorkers,
		logger:   log.WithField("module", "selection"),
	}
}

// EvaluationDate returns the latest trading date with published quotes
func (s *Screener) EvaluationDate() time.Time {
	return s.holidays.LatestTradingDate(s.clock.Now())
}

func checkPeriods(weekly, monthly bool) (contracts.Period, error) {
	switch {
	case weekly && monthly:
		return "", contracts.RangeError("weekly and monthly are exclusive")
	case weekly:
		return contracts.PeriodWeekly, nil
	case monthly:
		return contracts.PeriodMonthly, nil
	default:
		return contracts.PeriodDaily, nil
	}
}

// windowStart returns the first date read for a window of days. Weekly and
// monthly windows are widened by 7 and 30 times.
func windowStart(end time.Time, days int, period contracts.Period) time.Time {
	switch period {
	case contracts.PeriodWeekly:
		days += days * 7
	case contracts.PeriodMonthly:
		days += days * 30
	}
	return end.AddDate(0, 0, -days)
}

// MACDScan returns the stocks whose latest bar is a MACD buy point
func (s *Screener) MACDScan(ctx context.Context, q MACDQuery) ([]Row, error) {
	if err := validate.Struct(q); err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrInvalidRange, err)
	}
	period, err := checkPeriods(q.Weekly, q.Monthly)
	if err != nil {
		return nil, err
	}

	end := s.EvaluationDate()
	from := windowStart(end, q.NDay, period)
	return s.scan(ctx, "macd", q.Market, end, func(ctx context.Context, st contracts.Stock) (*Row, error) {
		bars, err := s.reader.ListPriceHistory(ctx, period, st.ID, contracts.HistoryFilter{From: from, To: end})
		if err != nil {
			return nil, err
		}
		last, ok := latestClosed(bars)
		if !ok {
			return nil, nil
		}
		_, _, closes := priceSeries(bars)
		if !indicator.MACD(closes, q.Fast, q.Slow, q.Signal).IsBuyPoint() {
			return nil, nil
		}
		return s.row(ctx, st, last, end)
	})
}

// KDJScan returns the stocks with K and D in the oversold zone and a golden cross
// on the latest bar
func (s *Screener) KDJScan(ctx context.Context, q KDJQuery) ([]Row, error) {
	if err := validate.Struct(q); err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrInvalidRange, err)
	}
	period, err := checkPeriods(q.Weekly, q.Monthly)
	if err != nil {
		return nil, err
	}

	n := indicator.DefaultKDJPeriod
	end := s.EvaluationDate()
	from := windowStart(end, q.Scalar*n, period)
	return s.scan(ctx, "kdj", q.Market, end, func(ctx context.Context, st contracts.Stock) (*Row, error) {
		bars, err := s.reader.ListPriceHistory(ctx, period, st.ID, contracts.HistoryFilter{From: from, To: end})
		if err != nil {
			return nil, err
		}
		if len(bars) < n {
			return nil, nil
		}
		last, ok := latestClosed(bars)
		if !ok {
			return nil, nil
		}
		high, low, closes := priceSeries(bars)
		if !indicator.KDJ(high, low, closes, n).IsBuyPoint() {
			return nil, nil
		}
		return s.row(ctx, st, last, end)
	})
}

// OperatingMarginScan returns the stocks with more <= operating margin <= less.
// It is empty when more > less.
func (s *Screener) OperatingMarginScan(ctx context.Context, market contracts.Market, more, less float64) ([]Row, error) {
	if more > less {
		return nil, nil
	}
	return s.ratioScan(ctx, "op_margin", market, func(r Row) bool {
		return r.OperatingMargin.Valid && r.OperatingMargin.Float64 >= more && r.OperatingMargin.Float64 <= less
	})
}

// PBRScan returns the stocks priced at or below maxPBR times book value
func (s *Screener) PBRScan(ctx context.Context, market contracts.Market, maxPBR float64) ([]Row, error) {
	return s.ratioScan(ctx, "pbr", market, func(r Row) bool {
		return r.PBR.Valid && r.PBR.Float64 <= maxPBR
	})
}

// EPSScan returns the stocks earning at least minEPS per share in the latest season
func (s *Screener) EPSScan(ctx context.Context, market contracts.Market, minEPS float64) ([]Row, error) {
	return s.ratioScan(ctx, "eps", market, func(r Row) bool {
		return r.EPS.Valid && r.EPS.Float64 >= minEPS
	})
}

// BalanceScan returns the stocks whose liabilities fell over the last liabsCount
// seasons and whose assets grew over the last assetsCount seasons
func (s *Screener) BalanceScan(ctx context.Context, market contracts.Market, liabsCount, assetsCount int) ([]Row, error) {
	if liabsCount < 2 || assetsCount < 2 {
		return nil, contracts.RangeError("season counts must be at least 2, got %d and %d", liabsCount, assetsCount)
	}

	end := s.EvaluationDate()
	season := calendar.LatestSeasonDate(end)
	return s.scan(ctx, "balance", market, end, func(ctx context.Context, st contracts.Stock) (*Row, error) {
		bar, ok, err := dailyClose(ctx, s.reader, st.ID, end)
		if err != nil || !ok {
			return nil, err
		}
		balances, err := s.reader.ListBalanceSheets(ctx, st.ID, contracts.HistoryFilter{To: season, Desc: true, Limit: max(liabsCount, assetsCount)})
		if err != nil {
			return nil, err
		}
		if !fundamental.IsLiabilitiesDescending(head(balances, liabsCount), liabsCount) ||
			!fundamental.IsAssetsAscending(head(balances, assetsCount), assetsCount) {
			return nil, nil
		}
		return s.row(ctx, st, bar, end)
	})
}

func head[T any](rows []T, n int) []T {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}

// ratioScan keeps the stocks with a close on the evaluation date whose row passes keep
func (s *Screener) ratioScan(ctx context.Context, name string, market contracts.Market, keep func(Row) bool) ([]Row, error) {
	end := s.EvaluationDate()
	return s.scan(ctx, name, market, end, func(ctx context.Context, st contracts.Stock) (*Row, error) {
		bar, ok, err := dailyClose(ctx, s.reader, st.ID, end)
		if err != nil || !ok {
			return nil, err
		}
		row, err := s.row(ctx, st, bar, end)
		if err != nil || !keep(*row) {
			return nil, err
		}
		return row, nil
	})
}

// scan runs match over every alive stock of market and returns the hits sorted by code
func (s *Screener) scan(ctx context.Context, name string, market contracts.Market, end time.Time,
	match func(ctx context.Context, st contracts.Stock) (*Row, error)) ([]Row, error) {
	alive := true
	stocks, err := s.reader.ListStocks(ctx, contracts.StockFilter{Market: market, Alive: &alive})
	if err != nil {
		return nil, fmt.Errorf("list alive stocks: %w", err)
	}

	var mu sync.Mutex
	var rows []Row
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, st := range stocks {
		g.Go(func() error {
			row, err := match(gctx, st)
			if err != nil {
				return fmt.Errorf("%s screen of %s: %w", name, st.Code, err)
			}
			if row == nil {
				return nil
			}
			mu.Lock()
			rows = append(rows, *row)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })

	s.logger.WithFields(map[string]interface{}{
		"screen":  name,
		"market":  string(market),
		"date":    calendar.FormatDate(end),
		"stocks":  len(stocks),
		"matched": len(rows),
	}).Info("Screening completed")
	return rows, nil
}

// row fills the ratios of the latest season before end at the bar's close
func (s *Screener) row(ctx context.Context, st contracts.Stock, bar contracts.PriceHistory, end time.Time) (*Row, error) {
	price := bar.Close.Float64
	ratios, err := fundamental.SeasonRatios(ctx, s.reader, st, price, calendar.LatestSeasonDate(end))
	if err != nil {
		return nil, err
	}
	return &Row{
		StockID:         st.ID,
		Code:            st.Code,
		Name:            st.Name,
		Date:            bar.Date,
		Close:           price,
		Change:          bar.Change,
		Lots:            bar.Volume.ValueOrZero() / 1000,
		PBR:             ratios.PBR,
		EPS:             ratios.EPS,
		OperatingMargin: ratios.OperatingMargin,
		GrossMargin:     ratios.GrossMargin,
	}, nil
}

func hasClose(b contracts.PriceHistory) bool {
	return b.Close.Valid && b.Close.Float64 != 0
}

// dailyClose returns the daily bar of date when it has a close
func dailyClose(ctx context.Context, r Reader, stockID int64, date time.Time) (contracts.PriceHistory, bool, error) {
	bars, err := r.ListPriceHistory(ctx, contracts.PeriodDaily, stockID, contracts.HistoryFilter{From: date, To: date, Limit: 1})
	if err != nil {
		return contracts.PriceHistory{}, false, err
	}
	if len(bars) == 0 || !hasClose(bars[0]) {
		return contracts.PriceHistory{}, false, nil
	}
	return bars[0], true, nil
}

// latestClosed returns the last bar when it has a close
func latestClosed(bars []contracts.PriceHistory) (contracts.PriceHistory, bool) {
	if len(bars) == 0 || !hasClose(bars[len(bars)-1]) {
		return contracts.PriceHistory{}, false
	}
	return bars[len(bars)-1], true
}

// priceSeries returns high, low and close of the bars with a close.
// A missing high or low falls back to the close.
func priceSeries(bars []contracts.PriceHistory) (high, low, closes []float64) {
	for _, b := range bars {
		if !hasClose(b) {
			continue
		}
		c := b.Close.Float64
		closes = append(closes, c)
		high = append(high, b.High.ValueOrZero())
		if !b.High.Valid {
			high[len(high)-1] = c
		}
		low = append(low, b.Low.ValueOrZero())
		if !b.Low.Valid {
			low[len(low)-1] = c
		}
	}
	return high, low, closes
}

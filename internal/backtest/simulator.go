package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/pkg/logger"
)

// Reader is the part of the store a simulation reads
type Reader interface {
	GetStockByCode(ctx context.Context, code string) (*contracts.Stock, bool, error)
	ListStocks(ctx context.Context, f contracts.StockFilter) ([]contracts.Stock, error)
	ListPriceHistory(ctx context.Context, period contracts.Period, stockID int64, f contracts.HistoryFilter) ([]contracts.PriceHistory, error)
	ListCapitalReductions(ctx context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.CapitalReduction, error)
}

// Result is the ledger of one simulated stock
type Result struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Strategy string   `json:"strategy"`
	Params   Params   `json:"params"`
	Records  []Record `json:"records"`
	Summary  Summary  `json:"summary"`
}

// Simulator replays a strategy over stored candlesticks
// ⭐ SSOT: 백테스팅 시뮬레이션은 여기서만
type Simulator struct {
	reader   Reader
	holidays calendar.Holidays
	logger   *logger.Logger
}

// NewSimulator creates a simulator
func NewSimulator(reader Reader, holidays calendar.Holidays, log *logger.Logger) *Simulator {
	return &Simulator{
		reader:   reader,
		holidays: holidays,
		logger:   log.WithField("module", "backtest"),
	}
}

// Run simulates one stock
func (s *Simulator) Run(ctx context.Context, code string, strategy Strategy, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	st, ok, err := s.reader.GetStockByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get stock %s: %w", code, err)
	}
	if !ok {
		return nil, fmt.Errorf("stock %s: %w", code, contracts.ErrNotFound)
	}
	return s.simulate(ctx, *st, strategy, p)
}

// simulate walks every trading day of the window. Weekly and monthly runs only
// act on the first day of each bucket. On a buy signal a flat account buys the
// initial volume, a holding one doubles its last buy if affordable. On a sell
// signal a profitable position is closed; a losing one sells half once the ROI
// reaches the limit. What is left is sold at the last price seen.
func (s *Simulator) simulate(ctx context.Context, st contracts.Stock, strategy Strategy, p Params) (*Result, error) {
	period := p.Period()
	lookback := strategy.Lookback(period)

	bars, err := s.reader.ListPriceHistory(ctx, period, st.ID, contracts.HistoryFilter{
		From: p.Start.AddDate(0, 0, -lookback),
		To:   p.End,
	})
	if err != nil {
		return nil, fmt.Errorf("list %s history of %s: %w", period, st.Code, err)
	}
	reductions, err := s.reader.ListCapitalReductions(ctx, st.ID, contracts.HistoryFilter{From: p.Start, To: p.End})
	if err != nil {
		return nil, fmt.Errorf("list capital reductions of %s: %w", st.Code, err)
	}

	account := NewAccount(p.Principal)
	initVol := p.InitShares()
	lastVol := initVol
	var lastPrice float64
	var lastDate time.Time

	for d := range calendar.DateRange(p.Start, p.End) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.holidays.IsTradingDay(d) {
			continue
		}

		from := d.AddDate(0, 0, -lookback)
		switch period {
		case contracts.PeriodWeekly:
			monday, _ := calendar.WeekRange(d)
			if !d.Equal(monday) {
				continue
			}
			from = monday.AddDate(0, 0, -lookback)
		case contracts.PeriodMonthly:
			first, _ := calendar.MonthRange(d)
			if !d.Equal(first) {
				continue
			}
			from = first.AddDate(0, 0, -lookback)
		}

		window := closedBars(bars, from, d)
		if len(window) == 0 {
			continue
		}
		price := window[len(window)-1].Close.Float64
		lastPrice, lastDate = price, d

		for len(reductions) > 0 && !reductions[0].EffectiveDate.After(d) {
			r := reductions[0]
			reductions = reductions[1:]
			if !r.NewSharesPerThousand.Valid {
				continue
			}
			if account.ApplyReduction(d, r.NewSharesPerThousand.Float64, r.RefundPerShare.ValueOrZero(), r.OldPrice, r.NewPrice) {
				s.logger.WithFields(map[string]interface{}{
					"code": st.Code,
					"date": calendar.FormatDate(d),
				}).Debug("Applied capital reduction")
			}
		}

		signal := strategy.Evaluate(window)

		if signal.Buy {
			maxVol := account.MaxBuyVolume(price)
			if account.TotalVolume() == 0 {
				account.Buy(d, price, min(initVol, maxVol))
			} else if vol := lastVol * 2; maxVol >= vol {
				lastVol = vol
				account.Buy(d, price, vol)
			}
		}

		if signal.Sell && account.TotalVolume() > 0 {
			total := account.TotalVolume()
			var sellVol int64
			if price >= account.AvgPrice() {
				lastVol = initVol
				sellVol = total
			} else if roi := account.ROI(price); roi.Valid && roi.Float64 <= p.ROILimit {
				sellVol = total / 2
			}
			if sellVol > 0 {
				account.Sell(d, price, sellVol)
			}
		}
	}

	if vol := account.TotalVolume(); vol > 0 && !lastDate.IsZero() {
		account.Sell(lastDate, lastPrice, vol)
	}

	res := &Result{
		Code:     st.Code,
		Name:     st.Name,
		Strategy: strategy.Name(),
		Params:   p,
		Records:  account.Records(),
		Summary:  Summarize(p.Principal, account.Records()),
	}
	s.logger.WithFields(map[string]interface{}{
		"code":         st.Code,
		"strategy":     res.Strategy,
		"trades":       res.Summary.Trades,
		"total_assets": res.Summary.FinalAssets,
		"return_pct":   res.Summary.ReturnPct,
	}).Debug("Simulation completed")
	return res, nil
}

// closedBars returns the bars dated in [from, to] that have a close.
// bars must be sorted by date.
func closedBars(bars []contracts.PriceHistory, from, to time.Time) []contracts.PriceHistory {
	lo := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(from) })
	hi := sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(to) })
	if lo >= hi {
		return nil
	}
	out := make([]contracts.PriceHistory, 0, hi-lo)
	for _, b := range bars[lo:hi] {
		if b.Close.Valid && b.Close.Float64 != 0 {
			out = append(out, b)
		}
	}
	return out
}

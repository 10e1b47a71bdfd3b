package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/store"
	"github.com/stockprophet/backend/pkg/logger"
)

// Result summarizes one aggregation pass
type Result struct {
	Period   contracts.Period `json:"period"`
	Market   contracts.Market `json:"market"`
	Buckets  int              `json:"buckets"`
	Skipped  int              `json:"skipped"`
	Inserted int              `json:"inserted"`
	Updated  int              `json:"updated"`
}

// Pipeline builds weekly and monthly candlesticks from the daily table
// ⭐ SSOT: 주/월봉 집계는 여기서만
type Pipeline struct {
	store  contracts.Store
	lock   sync.Locker
	logger *logger.Logger
}

// NewPipeline creates an aggregation pipeline. lock guards period date creation.
func NewPipeline(s contracts.Store, lock sync.Locker, log *logger.Logger) *Pipeline {
	return &Pipeline{
		store:  s,
		lock:   lock,
		logger: log.WithField("module", "aggregate"),
	}
}

// bucketRange maps a period to its bucketing function
func bucketRange(period contracts.Period) (func(time.Time) (time.Time, time.Time), contracts.WatermarkKind, error) {
	switch period {
	case contracts.PeriodWeekly:
		return calendar.WeekRange, contracts.WatermarkWeeklyHistory, nil
	case contracts.PeriodMonthly:
		return calendar.MonthRange, contracts.WatermarkMonthlyHistory, nil
	default:
		return nil, "", fmt.Errorf("cannot aggregate %s history", period)
	}
}

// Build aggregates every bucket of period overlapping [start, end] for the market's stocks.
// Re-running a bucket recomputes and overwrites its rows.
func (p *Pipeline) Build(ctx context.Context, market contracts.Market, period contracts.Period, start, end time.Time, holidays calendar.Holidays) (*Result, error) {
	rangeOf, kind, err := bucketRange(period)
	if err != nil {
		return nil, err
	}

	stocks, err := p.store.ListStocks(ctx, contracts.StockFilter{Market: market})
	if err != nil {
		return nil, fmt.Errorf("list %s stocks: %w", market, err)
	}

	log := p.logger.WithFields(map[string]interface{}{"market": market, "period": period})
	res := &Result{Period: period, Market: market}

	first, _ := rangeOf(start)
	for d := range calendar.DateRange(first, end) {
		bucketStart, bucketEnd := rangeOf(d)
		if !d.Equal(bucketStart) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if holidays.CheckAllHoliday(bucketStart, bucketEnd) {
			res.Skipped++
			continue
		}

		pd, err := store.GetOrCreatePeriodDate(ctx, p.lock, p.store, period, bucketStart)
		if err != nil {
			return res, err
		}

		for _, st := range stocks {
			outcome, err := p.buildStock(ctx, period, kind, st, pd, bucketEnd)
			if err != nil {
				return res, fmt.Errorf("%s %s %s: %w", period, st.Code, calendar.FormatDate(bucketStart), err)
			}
			switch outcome {
			case upsertInserted:
				res.Inserted++
			case upsertUpdated:
				res.Updated++
			}
		}

		if err := p.store.AdvanceWatermark(ctx, market, kind, bucketStart); err != nil {
			return res, fmt.Errorf("advance %s watermark: %w", kind, err)
		}
		res.Buckets++
		log.Debugf("built bucket %s", calendar.FormatDate(bucketStart))
	}

	log.WithFields(map[string]interface{}{
		"buckets":  res.Buckets,
		"skipped":  res.Skipped,
		"inserted": res.Inserted,
		"updated":  res.Updated,
	}).Info("aggregation completed")
	return res, nil
}

type upsertOutcome int

const (
	upsertNone upsertOutcome = iota
	upsertInserted
	upsertUpdated
)

func (p *Pipeline) buildStock(ctx context.Context, period contracts.Period, kind contracts.WatermarkKind, st contracts.Stock, pd *contracts.PeriodDate, bucketEnd time.Time) (upsertOutcome, error) {
	daily, err := p.store.ListPriceHistory(ctx, contracts.PeriodDaily, st.ID, contracts.HistoryFilter{From: pd.Date, To: bucketEnd})
	if err != nil {
		return upsertNone, err
	}
	candle, ok := Candlestick(daily)
	if !ok {
		return upsertNone, nil
	}
	candle.StockID = st.ID
	candle.DateID = pd.ID
	candle.Date = pd.Date

	outcome := upsertInserted
	existing, found, err := p.store.GetPriceHistory(ctx, period, st.ID, pd.ID)
	if err != nil {
		return upsertNone, err
	}
	if found {
		candle.ID = existing.ID
		err = p.store.UpdatePriceHistory(ctx, period, candle)
		outcome = upsertUpdated
	} else {
		err = p.store.InsertPriceHistory(ctx, period, []contracts.PriceHistory{candle})
	}
	if err != nil {
		return upsertNone, err
	}

	if err := p.touchMetadata(ctx, kind, st.ID, pd.Date); err != nil {
		return upsertNone, err
	}
	return outcome, nil
}

// touchMetadata advances the per-stock watermark when the stock already has one
func (p *Pipeline) touchMetadata(ctx context.Context, kind contracts.WatermarkKind, stockID int64, date time.Time) error {
	m, ok, err := p.store.GetStockMetadata(ctx, stockID)
	if err != nil || !ok {
		return err
	}
	if !m.Advance(kind, date) {
		return nil
	}
	return p.store.UpdateStockMetadata(ctx, m)
}

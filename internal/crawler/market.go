package crawler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stockprophet/backend/internal/aggregate"
	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/store"
	"github.com/stockprophet/backend/pkg/logger"
)

// ListingResult counts the changes of one listing reconciliation
type ListingResult struct {
	Created  int `json:"created"`
	Relisted int `json:"relisted"`
	Delisted int `json:"delisted"`
}

// DailyResult counts the work of one daily history pass
type DailyResult struct {
	Dates    int `json:"dates"`
	Skipped  int `json:"skipped"`
	Inserted int `json:"inserted"`
	Lost     int `json:"lost"`
}

// MarketReport is what a market task did in one run
type MarketReport struct {
	Market   contracts.Market    `json:"market"`
	Start    time.Time           `json:"start"`
	End      time.Time           `json:"end"`
	Attempts int                 `json:"attempts"`
	Listing  *ListingResult      `json:"listing,omitempty"`
	Daily    *DailyResult        `json:"daily,omitempty"`
	Periods  []*aggregate.Result `json:"periods,omitempty"`
	Losses   []contracts.Loss    `json:"losses,omitempty"`
}

// MarketOptions configures a MarketTask
type MarketOptions struct {
	Window
	// BuildPeriods aggregates weekly and monthly history instead of crawling
	BuildPeriods bool
	Retries      int
}

// MarketTask crawls the listing and daily history of one market
// ⭐ SSOT: 시장별 상장목록/일봉 수집은 여기서만
type MarketTask struct {
	source   SnapshotSource
	store    contracts.Store
	lock     sync.Locker
	pipeline *aggregate.Pipeline
	holidays calendar.Holidays
	clock    calendar.Clock
	logger   *logger.Logger

	market       contracts.Market
	start        time.Time
	end          time.Time
	explicit     bool
	buildPeriods bool
	retries      int
	losses       *contracts.LossLog
}

// NewMarketTask creates a market task. The window is validated against the
// market's first trading date and today.
func NewMarketTask(source SnapshotSource, s contracts.Store, lock sync.Locker, holidays calendar.Holidays, clock calendar.Clock, log *logger.Logger, opts MarketOptions) (*MarketTask, error) {
	market := source.Market()
	start, end, err := opts.resolve(DefaultStart(market), holidays, clock)
	if err != nil {
		return nil, err
	}
	retries := opts.Retries
	if retries < 1 {
		retries = DefaultRetries
	}
	return &MarketTask{
		source:       source,
		store:        s,
		lock:         lock,
		pipeline:     aggregate.NewPipeline(s, lock, log),
		holidays:     holidays,
		clock:        clock,
		logger:       log.WithFields(map[string]interface{}{"module": "crawler", "market": market}),
		market:       market,
		start:        start,
		end:          end,
		explicit:     !opts.Start.IsZero(),
		buildPeriods: opts.BuildPeriods,
		retries:      retries,
		losses:       &contracts.LossLog{},
	}, nil
}

// Name identifies the task in logs
func (t *MarketTask) Name() string {
	return string(t.market)
}

// Losses returns the units lost so far
func (t *MarketTask) Losses() []contracts.Loss {
	return t.losses.Losses()
}

// BuildStockTable reconciles the stock table with the current category listing.
// New codes are created alive, missing ones marked delisted and returning ones relisted.
// No row is ever deleted.
func (t *MarketTask) BuildStockTable(ctx context.Context) (*ListingResult, error) {
	t.logger.Info("Building stock table")

	listing, err := t.source.FetchCategoryListing(ctx, t.end)
	if err == nil && len(listing) == 0 {
		err = contracts.FetchError(string(t.market), fmt.Errorf("empty category listing"))
	}
	if err != nil {
		t.losses.Add(contracts.Loss{Kind: contracts.LossListing, Market: t.market, Date: t.end, Reason: err.Error()})
		return nil, contracts.FetchError(string(t.market)+" listing", err)
	}

	alive := true
	rows, err := t.store.ListStocks(ctx, contracts.StockFilter{Market: t.market, Alive: &alive})
	if err != nil {
		return nil, fmt.Errorf("list alive stocks: %w", err)
	}
	aliveInStore := make(map[string]contracts.Stock, len(rows))
	for _, st := range rows {
		aliveInStore[st.Code] = st
	}

	categories := make([]string, 0, len(listing))
	for name := range listing {
		categories = append(categories, name)
	}
	sort.Strings(categories)

	res := &ListingResult{}
	current := make(map[string]struct{})
	for _, category := range categories {
		for _, ls := range listing[category] {
			current[ls.Code] = struct{}{}
			st, created, err := t.getOrCreateStock(ctx, ls.Code, ls.Name, category, true)
			if err != nil {
				return res, err
			}
			if created {
				res.Created++
				t.logger.WithFields(map[string]interface{}{"code": ls.Code, "name": ls.Name}).Info("Stock listed")
				continue
			}
			_, wasAlive := aliveInStore[ls.Code]
			if wasAlive && st.Name == ls.Name && st.Category == category {
				continue
			}
			// 목록 기준으로 이름/업종 갱신 (스냅샷에서 생성된 미분류 종목 포함)
			st.Name = ls.Name
			st.Category = category
			st.IsAlive = true
			if err := t.store.UpdateStock(ctx, st); err != nil {
				return res, fmt.Errorf("update %s: %w", ls.Code, err)
			}
			if !wasAlive {
				res.Relisted++
				t.logger.WithFields(map[string]interface{}{"code": ls.Code, "name": ls.Name}).Warn("Stock relisted")
			}
		}
	}

	for code, st := range aliveInStore {
		if _, ok := current[code]; ok {
			continue
		}
		if err := t.store.UpdateStockAlive(ctx, st.ID, false); err != nil {
			return res, fmt.Errorf("delist %s: %w", code, err)
		}
		res.Delisted++
		t.logger.WithFields(map[string]interface{}{"code": code, "name": st.Name}).Warn("Stock delisted or suspended")
	}

	t.logger.WithFields(map[string]interface{}{
		"created":  res.Created,
		"relisted": res.Relisted,
		"delisted": res.Delisted,
	}).Info("Stock table built")
	return res, nil
}

// getOrCreateStock looks a code up under the dimension lock and creates it when absent
func (t *MarketTask) getOrCreateStock(ctx context.Context, code, name, category string, alive bool) (*contracts.Stock, bool, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	st, ok, err := t.store.GetStock(ctx, t.market, code)
	if err != nil {
		return nil, false, fmt.Errorf("get stock %s: %w", code, err)
	}
	if ok {
		return st, false, nil
	}
	st = &contracts.Stock{Code: code, Name: name, Market: t.market, Category: category, IsAlive: alive}
	if err := t.store.CreateStock(ctx, st); err != nil {
		return nil, false, fmt.Errorf("create stock %s: %w", code, err)
	}
	if st.ID == 0 {
		return nil, false, missing("stock %s has no id after create", code)
	}
	return st, true, nil
}

// span is the first and last date a stock received rows in one pass
type span struct {
	first time.Time
	last  time.Time
}

// BuildDailyHistory fetches the full-market snapshot of every trading day in
// the window that has no rows yet. A day that cannot be fetched is recorded
// as a loss and skipped.
func (t *MarketTask) BuildDailyHistory(ctx context.Context) (*DailyResult, error) {
	t.logger.WithFields(map[string]interface{}{
		"start": calendar.FormatDate(t.start),
		"end":   calendar.FormatDate(t.end),
	}).Info("Building daily history")

	stocks, err := t.store.ListStocks(ctx, contracts.StockFilter{Market: t.market})
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	ids := make(map[string]int64, len(stocks))
	owned := make(map[int64]struct{}, len(stocks))
	for _, st := range stocks {
		ids[st.Code] = st.ID
		owned[st.ID] = struct{}{}
	}

	res := &DailyResult{}
	spans := make(map[int64]*span)
	defer func() {
		if err := t.flushMetadata(context.WithoutCancel(ctx), spans); err != nil {
			t.logger.WithError(err).Error("Failed to update metadata")
		}
	}()

	for d := range calendar.DateRange(t.start, t.end) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !t.holidays.IsTradingDay(d) {
			continue
		}
		done, err := t.hasHistory(ctx, d, owned)
		if err != nil {
			return res, err
		}
		if done {
			res.Skipped++
			continue
		}

		quotes, err := t.source.FetchDailySnapshot(ctx, d)
		if err == nil && len(quotes) == 0 {
			err = contracts.FetchError(string(t.market), fmt.Errorf("empty snapshot"))
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Lost++
			t.losses.Add(contracts.Loss{Kind: contracts.LossDailyHistory, Market: t.market, Date: d, Reason: err.Error()})
			t.logger.WithError(err).Warnf("Failed to fetch daily history of %s", calendar.FormatDate(d))
			continue
		}

		pd, err := store.GetOrCreatePeriodDate(ctx, t.lock, t.store, contracts.PeriodDaily, d)
		if err != nil {
			return res, err
		}

		rows := make([]contracts.PriceHistory, 0, len(quotes))
		for _, q := range quotes {
			id, ok := ids[q.Code]
			if !ok {
				st, _, err := t.getOrCreateStock(ctx, q.Code, q.Name, contracts.CategoryUnclassified, false)
				if err != nil {
					return res, err
				}
				id = st.ID
				ids[q.Code] = id
				owned[id] = struct{}{}
			}
			rows = append(rows, contracts.PriceHistory{
				StockID: id,
				DateID:  pd.ID,
				Date:    pd.Date,
				Open:    q.Open,
				High:    q.High,
				Low:     q.Low,
				Close:   q.Close,
				Volume:  q.Volume,
				Value:   q.Value,
				Change:  q.Change,
			})
			sp, ok := spans[id]
			if !ok {
				spans[id] = &span{first: d, last: d}
			} else {
				sp.last = d
			}
		}

		if err := t.store.InsertPriceHistory(ctx, contracts.PeriodDaily, rows); err != nil {
			return res, fmt.Errorf("insert daily history %s: %w", calendar.FormatDate(d), err)
		}
		if err := t.store.AdvanceWatermark(ctx, t.market, contracts.WatermarkDailyHistory, d); err != nil {
			return res, fmt.Errorf("advance daily watermark: %w", err)
		}
		res.Dates++
		res.Inserted += len(rows)
		t.logger.WithField("count", len(rows)).Infof("Built daily history of %s", calendar.FormatDate(d))
	}

	t.logger.WithFields(map[string]interface{}{
		"dates":    res.Dates,
		"skipped":  res.Skipped,
		"inserted": res.Inserted,
		"lost":     res.Lost,
	}).Info("Daily history built")
	return res, nil
}

// hasHistory reports whether any stock of this market already has a row on d
func (t *MarketTask) hasHistory(ctx context.Context, d time.Time, owned map[int64]struct{}) (bool, error) {
	rows, err := t.store.ListPriceHistoryByDate(ctx, contracts.PeriodDaily, d)
	if err != nil {
		return false, fmt.Errorf("list daily history %s: %w", calendar.FormatDate(d), err)
	}
	for _, r := range rows {
		if _, ok := owned[r.StockID]; ok {
			return true, nil
		}
	}
	return false, nil
}

// flushMetadata advances the per-stock daily watermark once per stock
func (t *MarketTask) flushMetadata(ctx context.Context, spans map[int64]*span) error {
	for id, sp := range spans {
		m, err := store.GetOrCreateMetadata(ctx, t.lock, t.store, id)
		if err != nil {
			return err
		}
		changed := m.Extend(contracts.WatermarkDailyHistory, sp.first)
		if m.Extend(contracts.WatermarkDailyHistory, sp.last) {
			changed = true
		}
		if !changed {
			continue
		}
		if err := t.store.UpdateStockMetadata(ctx, m); err != nil {
			return fmt.Errorf("update metadata of stock %d: %w", id, err)
		}
	}
	return nil
}

// BuildPeriodTables aggregates weekly then monthly candlesticks. Each period
// resumes from its market watermark unless the window start was given explicitly.
func (t *MarketTask) BuildPeriodTables(ctx context.Context) ([]*aggregate.Result, error) {
	var results []*aggregate.Result
	for _, period := range []contracts.Period{contracts.PeriodWeekly, contracts.PeriodMonthly} {
		start := t.start
		if !t.explicit {
			kind := contracts.WatermarkWeeklyHistory
			if period == contracts.PeriodMonthly {
				kind = contracts.WatermarkMonthlyHistory
			}
			mark, ok, err := t.store.GetWatermark(ctx, t.market, kind)
			if err != nil {
				return results, fmt.Errorf("get %s watermark: %w", kind, err)
			}
			if ok && mark.After(start) {
				start = mark
			}
		}
		res, err := t.pipeline.Build(ctx, t.market, period, start, t.end, t.holidays)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// resumeStart moves the window start to the earliest daily watermark of the
// market's alive stocks, so no stock misses days. Stocks that never traded carry
// no watermark and do not hold the start back.
func (t *MarketTask) resumeStart(ctx context.Context) error {
	if t.explicit {
		return nil
	}
	alive := true
	stocks, err := t.store.ListStocks(ctx, contracts.StockFilter{Market: t.market, Alive: &alive})
	if err != nil {
		return fmt.Errorf("list alive stocks: %w", err)
	}
	var earliest time.Time
	for _, st := range stocks {
		m, ok, err := t.store.GetStockMetadata(ctx, st.ID)
		if err != nil {
			return fmt.Errorf("get metadata of %s: %w", st.Code, err)
		}
		if !ok || !m.DailyHistoryUpdateDate.Valid {
			continue
		}
		if earliest.IsZero() || m.DailyHistoryUpdateDate.Time.Before(earliest) {
			earliest = m.DailyHistoryUpdateDate.Time
		}
	}
	if earliest.After(t.start) && !earliest.After(t.end) {
		t.logger.Infof("Resuming from %s", calendar.FormatDate(earliest))
		t.start = earliest
	}
	return nil
}

// Run executes the task. A crawl run reconciles the listing and fetches daily
// history, repeating the pass while units are lost and retries remain. A period
// run aggregates weekly and monthly history.
func (t *MarketTask) Run(ctx context.Context) (*MarketReport, error) {
	t.logger.Info("Starting market task")
	report := &MarketReport{Market: t.market}

	if t.buildPeriods {
		report.Start, report.End = t.start, t.end
		periods, err := t.BuildPeriodTables(ctx)
		report.Periods = periods
		if err != nil {
			return report, err
		}
		t.logger.Info("Finished market task")
		return report, nil
	}

	if err := t.resumeStart(ctx); err != nil {
		return report, err
	}
	report.Start, report.End = t.start, t.end

	for attempt := 1; attempt <= t.retries; attempt++ {
		report.Attempts = attempt
		t.losses.Reset()

		listing, err := t.BuildStockTable(ctx)
		if err != nil {
			if ctx.Err() != nil || !isRemote(err) {
				return report, err
			}
			t.logger.WithError(err).Warnf("Listing pass %d/%d failed", attempt, t.retries)
			continue
		}
		report.Listing = listing

		daily, err := t.BuildDailyHistory(ctx)
		report.Daily = daily
		if err != nil {
			return report, err
		}
		if t.losses.Len() == 0 {
			break
		}
		if attempt < t.retries {
			t.logger.Warnf("Pass %d/%d lost %d units, retrying", attempt, t.retries, t.losses.Len())
		}
	}

	report.Losses = t.losses.Losses()
	if len(report.Losses) > 0 {
		t.logger.WithField("losses", lossStrings(report.Losses)).Warn("Missing data, run the crawler again")
	}
	t.logger.Info("Finished market task")
	return report, nil
}

func lossStrings(losses []contracts.Loss) []string {
	out := make([]string, len(losses))
	for i, l := range losses {
		out[i] = l.String()
	}
	return out
}

package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/external/mops"
	"github.com/stockprophet/backend/internal/store"
	"github.com/stockprophet/backend/internal/store/memstore"
	"github.com/stockprophet/backend/pkg/logger"
)

var (
	newYear  = calendar.Day(2024, 1, 1)
	holidays = calendar.NewHolidays([]time.Time{newYear}, nil)
	clock    = calendar.FixedClock{T: time.Date(2024, 1, 10, 18, 0, 0, 0, calendar.Taipei)}
)

type fakeSnapshot struct {
	mu        sync.Mutex
	market    contracts.Market
	listings  []contracts.Listing
	listErrs  int
	quotes    map[time.Time][]contracts.Quote
	fail      map[time.Time]bool
	fetched   []time.Time
	listCalls int
}

func (f *fakeSnapshot) Market() contracts.Market { return f.market }

func (f *fakeSnapshot) FetchDailySnapshot(_ context.Context, date time.Time) ([]contracts.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, date)
	if f.fail[date] {
		return nil, contracts.FetchError("fake", errors.New("status 500"))
	}
	return f.quotes[date], nil
}

func (f *fakeSnapshot) FetchCategoryListing(_ context.Context, _ time.Time) (contracts.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErrs > 0 {
		f.listErrs--
		return nil, contracts.FetchError("fake", contracts.ErrRateLimited)
	}
	l := f.listings[0]
	if len(f.listings) > 1 {
		f.listings = f.listings[1:]
	}
	return l, nil
}

func quote(code string, closePrice float64, volume int64) contracts.Quote {
	return contracts.Quote{
		Code:   code,
		Name:   "股票" + code,
		Open:   null.FloatFrom(closePrice - 1),
		High:   null.FloatFrom(closePrice + 1),
		Low:    null.FloatFrom(closePrice - 2),
		Close:  null.FloatFrom(closePrice),
		Volume: null.IntFrom(volume),
		Value:  null.IntFrom(volume * int64(closePrice)),
		Change: null.FloatFrom(0.5),
	}
}

func newMarketTask(t *testing.T, src *fakeSnapshot, s contracts.Store, opts MarketOptions) *MarketTask {
	t.Helper()
	if opts.Start.IsZero() {
		opts.Start = calendar.Day(2024, 1, 1)
	}
	if opts.End.IsZero() {
		opts.End = calendar.Day(2024, 1, 5)
	}
	task, err := NewMarketTask(src, s, store.NewDimensionLock(), holidays, clock, logger.NewNop(), opts)
	require.NoError(t, err)
	return task
}

func stock(t *testing.T, s contracts.Store, market contracts.Market, code string) *contracts.Stock {
	t.Helper()
	st, ok, err := s.GetStock(context.Background(), market, code)
	require.NoError(t, err)
	require.True(t, ok, "stock %s", code)
	return st
}

func TestBuildStockTable_Reconciliation(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	src := &fakeSnapshot{
		market: contracts.MarketTSE,
		listings: []contracts.Listing{
			{"水泥工業": {{Code: "1101", Name: "台泥"}, {Code: "1102", Name: "亞泥"}}},
			{"水泥工業": {{Code: "1101", Name: "台泥"}}},
			{"水泥工業": {{Code: "1101", Name: "台泥"}, {Code: "1102", Name: "亞泥"}}},
		},
	}
	task := newMarketTask(t, src, s, MarketOptions{})

	res, err := task.BuildStockTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, &ListingResult{Created: 2}, res)
	original := stock(t, s, contracts.MarketTSE, "1102")
	assert.True(t, original.IsAlive)
	assert.Equal(t, "水泥工業", original.Category)

	res, err = task.BuildStockTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, &ListingResult{Delisted: 1}, res)
	delisted := stock(t, s, contracts.MarketTSE, "1102")
	assert.False(t, delisted.IsAlive)
	assert.Equal(t, original.ID, delisted.ID)

	res, err = task.BuildStockTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, &ListingResult{Relisted: 1}, res)
	relisted := stock(t, s, contracts.MarketTSE, "1102")
	assert.True(t, relisted.IsAlive)
	assert.Equal(t, original.ID, relisted.ID)
	assert.Equal(t, original.Code, relisted.Code)

	all, err := s.ListStocks(ctx, contracts.StockFilter{Market: contracts.MarketTSE})
	require.NoError(t, err)
	assert.Len(t, all, 2, "rows are never deleted or duplicated")
}

func TestBuildStockTable_RelistTakesListingCategory(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateStock(ctx, &contracts.Stock{Code: "2330", Name: "股票2330", Market: contracts.MarketTSE, Category: contracts.CategoryUnclassified}))
	require.NoError(t, s.CreateStock(ctx, &contracts.Stock{Code: "1101", Name: "台泥", Market: contracts.MarketTSE, Category: contracts.CategoryUnclassified, IsAlive: true}))

	src := &fakeSnapshot{
		market: contracts.MarketTSE,
		listings: []contracts.Listing{
			{"半導體業": {{Code: "2330", Name: "台積電"}}, "水泥工業": {{Code: "1101", Name: "台泥"}}},
		},
	}
	task := newMarketTask(t, src, s, MarketOptions{})

	res, err := task.BuildStockTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, &ListingResult{Relisted: 1}, res)

	tsmc := stock(t, s, contracts.MarketTSE, "2330")
	assert.True(t, tsmc.IsAlive)
	assert.Equal(t, "台積電", tsmc.Name)
	assert.Equal(t, "半導體業", tsmc.Category)

	cement := stock(t, s, contracts.MarketTSE, "1101")
	assert.True(t, cement.IsAlive)
	assert.Equal(t, "水泥工業", cement.Category, "alive stocks are reclassified too")
}

func TestResumeStart_IgnoresStocksWithoutWatermark(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	lock := store.NewDimensionLock()
	traded := &contracts.Stock{Code: "1101", Name: "台泥", Market: contracts.MarketTSE, Category: "水泥工業", IsAlive: true}
	require.NoError(t, s.CreateStock(ctx, traded))
	require.NoError(t, s.CreateStock(ctx, &contracts.Stock{Code: "1102", Name: "亞泥", Market: contracts.MarketTSE, Category: "水泥工業", IsAlive: true}))

	m, err := store.GetOrCreateMetadata(ctx, lock, s, traded.ID)
	require.NoError(t, err)
	m.Advance(contracts.WatermarkDailyHistory, calendar.Day(2024, 1, 8))
	require.NoError(t, s.UpdateStockMetadata(ctx, m))

	src := &fakeSnapshot{market: contracts.MarketTSE}
	task, err := NewMarketTask(src, s, lock, holidays, clock, logger.NewNop(), MarketOptions{})
	require.NoError(t, err)
	require.Equal(t, DefaultStart(contracts.MarketTSE), task.start)

	require.NoError(t, task.resumeStart(ctx))
	assert.Equal(t, calendar.Day(2024, 1, 8), task.start)
	assert.Equal(t, calendar.Day(2024, 1, 10), task.end)
}

func TestResumeStart_ExplicitWindowKept(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	lock := store.NewDimensionLock()
	st := &contracts.Stock{Code: "1101", Name: "台泥", Market: contracts.MarketTSE, Category: "水泥工業", IsAlive: true}
	require.NoError(t, s.CreateStock(ctx, st))
	m, err := store.GetOrCreateMetadata(ctx, lock, s, st.ID)
	require.NoError(t, err)
	m.Advance(contracts.WatermarkDailyHistory, calendar.Day(2024, 1, 8))
	require.NoError(t, s.UpdateStockMetadata(ctx, m))

	task := newMarketTask(t, &fakeSnapshot{market: contracts.MarketTSE}, s, MarketOptions{Window: Window{Start: calendar.Day(2024, 1, 2)}})
	require.NoError(t, task.resumeStart(ctx))
	assert.Equal(t, calendar.Day(2024, 1, 2), task.start)
}

func TestBuildStockTable_ListingFailure(t *testing.T) {
	src := &fakeSnapshot{market: contracts.MarketOTC, listErrs: 1, listings: []contracts.Listing{{}}}
	task := newMarketTask(t, src, memstore.New(), MarketOptions{Window: Window{Start: calendar.Day(2024, 1, 2)}})

	_, err := task.BuildStockTable(context.Background())
	assert.ErrorIs(t, err, contracts.ErrRemoteFetch)
	require.Len(t, task.Losses(), 1)
	assert.Equal(t, contracts.LossListing, task.Losses()[0].Kind)

	_, err = task.BuildStockTable(context.Background())
	assert.ErrorIs(t, err, contracts.ErrRemoteFetch, "an empty listing is unusable")
}

func TestBuildDailyHistory(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateStock(ctx, &contracts.Stock{Code: "1101", Name: "台泥", Market: contracts.MarketTSE, Category: "水泥工業", IsAlive: true}))

	src := &fakeSnapshot{
		market: contracts.MarketTSE,
		quotes: map[time.Time][]contracts.Quote{
			calendar.Day(2024, 1, 2): {quote("1101", 30, 1000)},
			calendar.Day(2024, 1, 3): {quote("1101", 31, 2000), quote("9999", 5, 10)},
			calendar.Day(2024, 1, 4): {quote("1101", 32, 3000)},
			calendar.Day(2024, 1, 5): {quote("1101", 33, 4000)},
		},
		fail: map[time.Time]bool{calendar.Day(2024, 1, 4): true},
	}
	task := newMarketTask(t, src, s, MarketOptions{})

	res, err := task.BuildDailyHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, &DailyResult{Dates: 3, Inserted: 4, Lost: 1}, res)
	assert.NotContains(t, src.fetched, newYear, "holidays are never fetched")

	losses := task.Losses()
	require.Len(t, losses, 1)
	assert.Equal(t, contracts.LossDailyHistory, losses[0].Kind)
	assert.Equal(t, calendar.Day(2024, 1, 4), losses[0].Date)

	unknown := stock(t, s, contracts.MarketTSE, "9999")
	assert.Equal(t, contracts.CategoryUnclassified, unknown.Category)
	assert.False(t, unknown.IsAlive)

	cement := stock(t, s, contracts.MarketTSE, "1101")
	m, ok, err := s.GetStockMetadata(ctx, cement.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, calendar.Day(2024, 1, 2), m.DailyHistoryCreateDate.Time)
	assert.Equal(t, calendar.Day(2024, 1, 5), m.DailyHistoryUpdateDate.Time)

	mark, ok, err := s.GetWatermark(ctx, contracts.MarketTSE, contracts.WatermarkDailyHistory)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, calendar.Day(2024, 1, 5), mark)

	// a second pass only fetches the lost day
	src.fetched = nil
	delete(src.fail, calendar.Day(2024, 1, 4))
	res, err = task.BuildDailyHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{calendar.Day(2024, 1, 4)}, src.fetched)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, 1, res.Dates)

	rows, err := s.ListPriceHistory(ctx, contracts.PeriodDaily, cement.ID, contracts.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestMarketTask_CrawlThenAggregateWeek(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	lock := store.NewDimensionLock()
	src := &fakeSnapshot{
		market:   contracts.MarketOTC,
		listings: []contracts.Listing{{"半導體業": {{Code: "3105", Name: "穩懋"}}}},
		quotes: map[time.Time][]contracts.Quote{
			calendar.Day(2024, 1, 8): {quote("3105", 100, 1000)},
			calendar.Day(2024, 1, 9): {quote("3105", 104, 2000)},
		},
	}
	window := Window{Start: calendar.Day(2024, 1, 8), End: calendar.Day(2024, 1, 9)}

	crawl, err := NewMarketTask(src, s, lock, holidays, clock, logger.NewNop(), MarketOptions{Window: window})
	require.NoError(t, err)
	report, err := crawl.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Attempts)
	assert.Empty(t, report.Losses)
	assert.Equal(t, 2, report.Daily.Dates)

	aggregate, err := NewMarketTask(src, s, lock, holidays, clock, logger.NewNop(), MarketOptions{Window: window, BuildPeriods: true})
	require.NoError(t, err)
	report, err = aggregate.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Periods, 2)

	st := stock(t, s, contracts.MarketOTC, "3105")
	weekly, err := s.ListPriceHistory(ctx, contracts.PeriodWeekly, st.ID, contracts.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, weekly, 1)
	assert.Equal(t, calendar.Day(2024, 1, 8), weekly[0].Date)
	assert.Equal(t, null.FloatFrom(104), weekly[0].Close)
	assert.Equal(t, null.IntFrom(3000), weekly[0].Volume)
}

func TestMarketTask_RunRetriesListing(t *testing.T) {
	src := &fakeSnapshot{
		market:   contracts.MarketTSE,
		listErrs: 1,
		listings: []contracts.Listing{{"水泥工業": {{Code: "1101", Name: "台泥"}}}},
		quotes:   map[time.Time][]contracts.Quote{},
	}
	task := newMarketTask(t, src, memstore.New(), MarketOptions{Window: Window{Start: calendar.Day(2024, 1, 2), End: calendar.Day(2024, 1, 2)}})

	report, err := task.Run(context.Background())
	require.NoError(t, err)
	// the empty snapshot is lost on every pass
	assert.Equal(t, DefaultRetries, report.Attempts)
	assert.Equal(t, DefaultRetries, src.listCalls)
	assert.Equal(t, &ListingResult{}, report.Listing, "the last pass finds the stock already listed")
	require.Len(t, report.Losses, 1)
	assert.Equal(t, contracts.LossDailyHistory, report.Losses[0].Kind)
}

func TestNewMarketTask_InvalidWindow(t *testing.T) {
	src := &fakeSnapshot{market: contracts.MarketOTC}
	tests := []struct {
		name   string
		window Window
	}{
		{"before first trading date", Window{Start: calendar.Day(2007, 7, 1), End: calendar.Day(2024, 1, 5)}},
		{"end before start", Window{Start: calendar.Day(2024, 1, 5), End: calendar.Day(2024, 1, 4)}},
		{"end after today", Window{Start: calendar.Day(2024, 1, 5), End: calendar.Day(2024, 2, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMarketTask(src, memstore.New(), store.NewDimensionLock(), holidays, clock, logger.NewNop(), MarketOptions{Window: tt.window})
			assert.ErrorIs(t, err, contracts.ErrInvalidRange)
		})
	}
}

type statementCall struct {
	code string
	ys   calendar.YearSeason
	step mops.Step
}

type fakeStatements struct {
	mu      sync.Mutex
	calls   []statementCall
	fail    map[string]bool
	revenue map[contracts.Market]map[string]int64
	months  []string
}

func (f *fakeStatements) record(code string, year, season int, step mops.Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ys := calendar.YearSeason{Year: year, Season: season}
	f.calls = append(f.calls, statementCall{code, ys, step})
	if f.fail[code+" "+ys.String()] {
		return contracts.FetchError("fake", fmt.Errorf("no statement"))
	}
	return nil
}

func (f *fakeStatements) FetchIncomeStatement(_ context.Context, _ contracts.Market, code string, year, season int, step mops.Step) (*contracts.IncomeStatement, error) {
	if err := f.record(code, year, season, step); err != nil {
		return nil, err
	}
	return &contracts.IncomeStatement{NetSales: null.IntFrom(int64(year*10 + season)), EPS: null.FloatFrom(1.5)}, nil
}

func (f *fakeStatements) FetchBalanceSheet(_ context.Context, _ contracts.Market, code string, year, season int, step mops.Step) (*contracts.BalanceSheet, error) {
	if err := f.record(code, year, season, step); err != nil {
		return nil, err
	}
	return &contracts.BalanceSheet{TotalAssets: null.IntFrom(int64(year*10 + season))}, nil
}

func (f *fakeStatements) FetchMonthlyRevenue(_ context.Context, market contracts.Market, year, month int) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.months = append(f.months, fmt.Sprintf("%s %d-%02d", market, year, month))
	rev, ok := f.revenue[market]
	if !ok {
		return nil, contracts.FetchError("fake", fmt.Errorf("no revenue"))
	}
	return rev, nil
}

func seedFundamentals(t *testing.T, s contracts.Store) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	ids := make(map[string]int64)
	created := map[string]time.Time{
		"2330": calendar.Day(2023, 5, 2),
		"2882": calendar.Day(2023, 6, 1),
	}
	for _, st := range []contracts.Stock{
		{Code: "2330", Name: "台積電", Market: contracts.MarketTSE, Category: "半導體業", IsAlive: true},
		{Code: "2882", Name: "國泰金", Market: contracts.MarketTSE, Category: contracts.CategoryFinance, IsAlive: true},
		{Code: "0050", Name: "元大台灣50", Market: contracts.MarketTSE, Category: contracts.CategoryETF, IsAlive: true},
	} {
		require.NoError(t, s.CreateStock(ctx, &st))
		ids[st.Code] = st.ID
		if d, ok := created[st.Code]; ok {
			m := &contracts.StockMetadata{StockID: st.ID}
			m.Advance(contracts.WatermarkDailyHistory, d)
			require.NoError(t, s.CreateStockMetadata(ctx, m))
		}
	}
	return ids
}

func newFundamentalTask(t *testing.T, src StatementSource, s contracts.Store, opts FundamentalOptions) *FundamentalTask {
	t.Helper()
	if opts.End.IsZero() {
		opts.End = calendar.Day(2024, 1, 10)
	}
	task, err := NewFundamentalTask(src, s, store.NewDimensionLock(), holidays, clock, logger.NewNop(), opts)
	require.NoError(t, err)
	return task
}

func TestBuildIncomeStatements(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	ids := seedFundamentals(t, s)
	src := &fakeStatements{}
	task := newFundamentalTask(t, src, s, FundamentalOptions{Income: true})

	res, err := task.BuildIncomeStatements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)
	assert.Equal(t, 2, res.Stocks, "ETFs are skipped")

	assert.Equal(t, []statementCall{
		{"2330", calendar.YearSeason{Year: 2023, Season: 2}, mops.StepGeneral},
		{"2330", calendar.YearSeason{Year: 2023, Season: 3}, mops.StepGeneral},
		{"2882", calendar.YearSeason{Year: 2023, Season: 3}, mops.StepFinance},
	}, src.calls)

	pd, ok, err := s.GetPeriodDate(ctx, contracts.PeriodSeason, calendar.Day(2023, 9, 1))
	require.NoError(t, err)
	require.True(t, ok)
	stmt, ok, err := s.GetIncomeStatement(ctx, ids["2330"], pd.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, null.IntFrom(20233), stmt.NetSales)

	m, _, err := s.GetStockMetadata(ctx, ids["2330"])
	require.NoError(t, err)
	assert.Equal(t, calendar.Day(2023, 6, 1), m.IncomeStatementCreateDate.Time)
	assert.Equal(t, calendar.Day(2023, 9, 1), m.IncomeStatementUpdateDate.Time)

	// the next run resumes after the watermark, so stored seasons are not even looked up
	src.calls = nil
	res, err = task.BuildIncomeStatements(ctx)
	require.NoError(t, err)
	assert.Empty(t, src.calls)
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.Created)
}

func TestFirstSeason(t *testing.T) {
	withHistory := func(created, incomeMark time.Time) *contracts.StockMetadata {
		m := &contracts.StockMetadata{}
		if !created.IsZero() {
			m.Advance(contracts.WatermarkDailyHistory, created)
		}
		if !incomeMark.IsZero() {
			m.Advance(contracts.WatermarkIncome, incomeMark)
		}
		return m
	}

	tests := []struct {
		name   string
		start  time.Time
		meta   *contracts.StockMetadata
		resume bool
		want   calendar.YearSeason
	}{
		{
			name: "no history starts after FundamentalStart",
			meta: withHistory(time.Time{}, time.Time{}),
			want: calendar.YearSeason{Year: 2013, Season: 1},
		},
		{
			name: "history before FundamentalStart",
			meta: withHistory(calendar.Day(2010, 3, 1), time.Time{}),
			want: calendar.YearSeason{Year: 2013, Season: 1},
		},
		{
			name: "season after daily history start",
			meta: withHistory(calendar.Day(2023, 5, 2), time.Time{}),
			want: calendar.YearSeason{Year: 2023, Season: 2},
		},
		{
			name:   "resume after watermark",
			meta:   withHistory(calendar.Day(2023, 5, 2), calendar.Day(2023, 6, 1)),
			resume: true,
			want:   calendar.YearSeason{Year: 2023, Season: 3},
		},
		{
			name: "watermark ignored without resume",
			meta: withHistory(calendar.Day(2023, 5, 2), calendar.Day(2023, 6, 1)),
			want: calendar.YearSeason{Year: 2023, Season: 2},
		},
		{
			name:  "explicit start includes its own season",
			start: calendar.Day(2023, 10, 2),
			meta:  withHistory(calendar.Day(2023, 5, 2), time.Time{}),
			want:  calendar.YearSeason{Year: 2023, Season: 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := newFundamentalTask(t, &fakeStatements{}, memstore.New(), FundamentalOptions{Window: Window{Start: tt.start}})
			assert.Equal(t, tt.want, task.firstSeason(tt.meta, StatementIncome, tt.resume))
		})
	}
}

func TestBuildBalanceSheets_LossStopsStock(t *testing.T) {
	s := memstore.New()
	seedFundamentals(t, s)
	src := &fakeStatements{fail: map[string]bool{"2330 2023Q2": true}}
	task := newFundamentalTask(t, src, s, FundamentalOptions{Balance: true})

	report, err := task.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Balance)
	assert.Equal(t, 1, report.Balance.Created)
	assert.Equal(t, 1, report.Balance.Lost)
	assert.Nil(t, report.Income)

	require.Len(t, report.Losses, 1)
	assert.Equal(t, contracts.Loss{
		Kind: contracts.LossBalanceSheet, Market: contracts.MarketTSE, Code: "2330",
		Year: 2023, Season: 2, Reason: report.Losses[0].Reason,
	}, report.Losses[0])
	for _, c := range src.calls {
		assert.NotEqual(t, statementCall{"2330", calendar.YearSeason{Year: 2023, Season: 3}, mops.StepGeneral}, c, "the stock is left after its first loss")
	}
}

func TestPatchStatements(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	ids := seedFundamentals(t, s)
	src := &fakeStatements{fail: map[string]bool{"2330 2023Q2": true}}
	task := newFundamentalTask(t, src, s, FundamentalOptions{Window: Window{Start: calendar.Day(2023, 1, 1)}})

	pd, err := store.GetOrCreatePeriodDate(ctx, store.NewDimensionLock(), s, contracts.PeriodSeason, calendar.Day(2023, 9, 1))
	require.NoError(t, err)
	require.NoError(t, s.CreateIncomeStatement(ctx, &contracts.IncomeStatement{StockID: ids["2330"], SeasonDateID: pd.ID, NetSales: null.IntFrom(1)}))

	res, err := task.PatchStatements(ctx, "2330", StatementIncome)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Lost)
	assert.Equal(t, 1, res.Created, "the walk continues past a missing season")
	assert.Equal(t, []statementCall{
		{"2330", calendar.YearSeason{Year: 2023, Season: 2}, mops.StepGeneral},
		{"2330", calendar.YearSeason{Year: 2023, Season: 3}, mops.StepGeneral},
	}, src.calls, "patch starts where a regular build would")

	stmt, ok, err := s.GetIncomeStatement(ctx, ids["2330"], pd.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, null.IntFrom(20233), stmt.NetSales, "stored rows are overwritten")

	_, err = task.PatchStatements(ctx, "1234", StatementIncome)
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	res, err = task.PatchStatements(ctx, "0050", StatementIncome)
	require.NoError(t, err)
	assert.Zero(t, res.Stocks)
}

func TestBuildMonthlyRevenue(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	ids := seedFundamentals(t, s)
	src := &fakeStatements{revenue: map[contracts.Market]map[string]int64{
		contracts.MarketTSE: {"2330": 176300000, "9999": 1},
	}}
	task := newFundamentalTask(t, src, s, FundamentalOptions{Window: Window{Start: calendar.Day(2023, 12, 15)}})

	res, err := task.BuildMonthlyRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tse 2023-12", "tse 2024-01", "otc 2023-12", "otc 2024-01"}, src.months)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 2, res.Lost)

	rows, err := s.ListMonthlyRevenue(ctx, ids["2330"], contracts.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, calendar.Day(2023, 12, 1), rows[0].Date)
	assert.Equal(t, int64(176300000), rows[0].Revenue)

	res, err = task.BuildMonthlyRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.Created)
}

func TestNewFundamentalTask_BeforeFundamentalStart(t *testing.T) {
	_, err := NewFundamentalTask(&fakeStatements{}, memstore.New(), store.NewDimensionLock(), holidays, clock, logger.NewNop(),
		FundamentalOptions{Window: Window{Start: calendar.Day(2012, 12, 31)}})
	assert.ErrorIs(t, err, contracts.ErrInvalidRange)
}

type fakeReductions struct {
	events []contracts.ReductionEvent
	err    error
	since  []time.Time
}

func (f *fakeReductions) Market() contracts.Market { return contracts.MarketOTC }

func (f *fakeReductions) FetchCapitalReductionFeed(_ context.Context, since, _ time.Time) ([]contracts.ReductionEvent, error) {
	f.since = append(f.since, since)
	return f.events, f.err
}

func TestReductionTask(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	st := &contracts.Stock{Code: "4153", Name: "鈺緯", Market: contracts.MarketOTC, IsAlive: true}
	require.NoError(t, s.CreateStock(ctx, st))

	src := &fakeReductions{events: []contracts.ReductionEvent{
		{Code: "4153", Name: "鈺緯", EffectiveDate: calendar.Day(2020, 10, 19), OldPrice: 27.2, NewPrice: 30.62, Reason: "彌補虧損"},
		{Code: "8888", Name: "不存在", EffectiveDate: calendar.Day(2021, 3, 1), OldPrice: 10, NewPrice: 20},
	}}
	task := NewReductionTask(src, s, clock, logger.NewNop())

	report, err := task.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Unknown)
	assert.Equal(t, FundamentalStart, src.since[0])

	rows, err := s.ListCapitalReductions(ctx, st.ID, contracts.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, null.FloatFrom(888.31), rows[0].NewSharesPerThousand)
	assert.False(t, rows[0].RefundPerShare.Valid)

	// the feed is re-read from the latest stored date and the same event is not duplicated
	report, err = task.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, calendar.Day(2020, 10, 19), src.since[1])
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Created)

	src.err = contracts.FetchError("fake", errors.New("timeout"))
	report, err = task.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Losses, 1)
	assert.Equal(t, contracts.LossReduction, report.Losses[0].Kind)
}

type stubTask struct {
	name string
	err  error
}

func (s stubTask) Name() string { return s.name }

func (s stubTask) Execute(ctx context.Context) (interface{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return s.name + " done", nil
	}
}

func TestRunner_FailureDoesNotCancelSiblings(t *testing.T) {
	runner := NewRunner(logger.NewNop())
	res := runner.Run(context.Background(),
		stubTask{name: "tse", err: contracts.ErrMissingDimension},
		stubTask{name: "otc"},
	)

	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, "tse", res.Outcomes[0].Task)
	assert.ErrorIs(t, res.Outcomes[0].Err, contracts.ErrMissingDimension)
	assert.NoError(t, res.Outcomes[1].Err)
	assert.Equal(t, "otc done", res.Outcomes[1].Report)

	err := res.Err()
	assert.ErrorIs(t, err, contracts.ErrMissingDimension)
	assert.Contains(t, err.Error(), "tse")
}

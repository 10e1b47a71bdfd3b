package selection

import (
	"context"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/store"
	"github.com/stockprophet/backend/internal/store/memstore"
	"github.com/stockprophet/backend/pkg/logger"
)

var (
	holidays = calendar.NewHolidays([]time.Time{calendar.Day(2024, 1, 1)}, nil)
	clock    = calendar.FixedClock{T: time.Date(2024, 1, 10, 18, 0, 0, 0, calendar.Taipei)}
	season   = calendar.Day(2023, 9, 1)
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memstore.Store
	lock  *store.DimensionLock
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, ctx: context.Background(), store: memstore.New(), lock: store.NewDimensionLock()}
}

func (f *fixture) stock(code string, market contracts.Market, alive bool) contracts.Stock {
	f.t.Helper()
	st := contracts.Stock{Code: code, Name: "股票" + code, Market: market, Category: "水泥工業", IsAlive: alive}
	require.NoError(f.t, f.store.CreateStock(f.ctx, &st))
	return st
}

func (f *fixture) date(period contracts.Period, d time.Time) int64 {
	f.t.Helper()
	pd, err := store.GetOrCreatePeriodDate(f.ctx, f.lock, f.store, period, d)
	require.NoError(f.t, err)
	return pd.ID
}

// tradingDays lists the trading days of [from, to]
func tradingDays(from, to time.Time) []time.Time {
	var out []time.Time
	for d := range calendar.DateRange(from, to) {
		if holidays.IsTradingDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// bars stores one daily bar per trading day ending on Jan 10 2024, one per close,
// with high and low spread around the close and volume in lots
func (f *fixture) bars(stockID int64, closes []float64, spread float64, lots func(i int) int64) {
	f.t.Helper()
	days := tradingDays(calendar.Day(2023, 11, 1), calendar.Day(2024, 1, 10))
	days = days[len(days)-len(closes):]
	for i, c := range closes {
		row := contracts.PriceHistory{
			StockID: stockID,
			DateID:  f.date(contracts.PeriodDaily, days[i]),
			Open:    null.FloatFrom(c),
			High:    null.FloatFrom(c + spread),
			Low:     null.FloatFrom(c - spread),
			Close:   null.FloatFrom(c),
			Volume:  null.IntFrom(lots(i) * 1000),
			Change:  null.FloatFrom(0.5),
		}
		require.NoError(f.t, f.store.InsertPriceHistory(f.ctx, contracts.PeriodDaily, []contracts.PriceHistory{row}))
	}
}

func (f *fixture) statements(stockID int64, b contracts.BalanceSheet, s contracts.IncomeStatement) {
	f.t.Helper()
	b.StockID, b.SeasonDateID = stockID, f.date(contracts.PeriodSeason, season)
	s.StockID, s.SeasonDateID = stockID, b.SeasonDateID
	require.NoError(f.t, f.store.CreateBalanceSheet(f.ctx, &b))
	require.NoError(f.t, f.store.CreateIncomeStatement(f.ctx, &s))
}

func (f *fixture) revenue(stockID int64, month time.Time, revenue int64) {
	f.t.Helper()
	r := contracts.MonthlyRevenue{StockID: stockID, MonthDateID: f.date(contracts.PeriodMonthly, month), Revenue: revenue}
	require.NoError(f.t, f.store.CreateMonthlyRevenue(f.ctx, &r))
}

func flatLots(n int64) func(int) int64 { return func(int) int64 { return n } }

func linear(from, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

// screenFixture seeds 22 trading days up to Jan 10 2024:
// 1101 falls then rebounds into a MACD buy point, 2330 falls then ticks up
// into an oversold KDJ golden cross, 2002 is delisted, 6488 trades on OTC.
func screenFixture(t *testing.T) (*fixture, *Screener) {
	f := newFixture(t)

	cement := f.stock("1101", contracts.MarketTSE, true)
	f.bars(cement.ID, append(linear(100, -2, 12), linear(80, 2, 10)...), 0, flatLots(5000))
	f.statements(cement.ID,
		contracts.BalanceSheet{ShareholdersNetIncome: null.IntFrom(490_000), CommonStocks: null.IntFrom(100_000)},
		contracts.IncomeStatement{NetSales: null.IntFrom(1000), OperatingIncome: null.IntFrom(150), GrossProfit: null.IntFrom(300), EPS: null.FloatFrom(1.2)},
	)

	tsmc := f.stock("2330", contracts.MarketTSE, true)
	f.bars(tsmc.ID, append(linear(106, -2, 21), 72), 0, flatLots(5000))
	f.statements(tsmc.ID,
		contracts.BalanceSheet{
			ShareholdersNetIncome: null.IntFrom(720_000),
			CommonStocks:          null.IntFrom(100_000),
			TotalAssets:           null.IntFrom(1_200_000),
			TotalLiabs:            null.IntFrom(400_000),
		},
		contracts.IncomeStatement{NetSales: null.IntFrom(1000), OperatingIncome: null.IntFrom(50), GrossProfit: null.IntFrom(200), EPS: null.FloatFrom(3.5)},
	)
	older := contracts.BalanceSheet{
		StockID:      tsmc.ID,
		SeasonDateID: f.date(contracts.PeriodSeason, calendar.Day(2023, 6, 1)),
		TotalAssets:  null.IntFrom(1_000_000),
		TotalLiabs:   null.IntFrom(500_000),
	}
	require.NoError(t, f.store.CreateBalanceSheet(f.ctx, &older))

	steel := f.stock("2002", contracts.MarketTSE, false)
	f.bars(steel.ID, append(linear(100, -2, 12), linear(80, 2, 10)...), 0, flatLots(5000))

	otc := f.stock("6488", contracts.MarketOTC, true)
	f.bars(otc.ID, linear(50, 1, 22), 0, flatLots(100))

	return f, NewScreener(f.store, holidays, clock, logger.NewNop())
}

func codes(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Code
	}
	return out
}

func TestScreener_MACDScan(t *testing.T) {
	_, s := screenFixture(t)

	rows, err := s.MACDScan(context.Background(), MACDQuery{NDay: 30, Fast: 12, Slow: 26, Signal: 9})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "1101", row.Code)
	assert.Equal(t, "股票1101(1101)", row.Label())
	assert.Equal(t, calendar.Day(2024, 1, 10), row.Date)
	assert.Equal(t, 98.0, row.Close)
	assert.Equal(t, null.FloatFrom(0.5), row.Change)
	assert.Equal(t, int64(5000), row.Lots)
	assert.Equal(t, null.FloatFrom(2), row.PBR)
	assert.Equal(t, null.FloatFrom(1.2), row.EPS)
	assert.Equal(t, null.FloatFrom(15), row.OperatingMargin)
	assert.Equal(t, null.FloatFrom(30), row.GrossMargin)
}

func TestScreener_KDJScan(t *testing.T) {
	_, s := screenFixture(t)

	rows, err := s.KDJScan(context.Background(), KDJQuery{Market: contracts.MarketTSE, Scalar: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"2330"}, codes(rows))
	assert.Equal(t, 72.0, rows[0].Close)
}

func TestScreener_InvalidQueries(t *testing.T) {
	_, s := screenFixture(t)
	ctx := context.Background()

	_, err := s.MACDScan(ctx, MACDQuery{NDay: 30, Weekly: true, Monthly: true, Fast: 12, Slow: 26, Signal: 9})
	assert.ErrorIs(t, err, contracts.ErrInvalidRange)

	_, err = s.MACDScan(ctx, MACDQuery{NDay: 0, Fast: 12, Slow: 26, Signal: 9})
	assert.ErrorIs(t, err, contracts.ErrInvalidRange)

	_, err = s.KDJScan(ctx, KDJQuery{Scalar: 9})
	assert.ErrorIs(t, err, contracts.ErrInvalidRange)

	_, err = s.KDJScan(ctx, KDJQuery{Market: "nyse", Scalar: 3})
	assert.ErrorIs(t, err, contracts.ErrInvalidRange)

	_, err = s.BalanceScan(ctx, contracts.MarketTSE, 1, 3)
	assert.ErrorIs(t, err, contracts.ErrInvalidRange)
}

func TestScreener_RatioScans(t *testing.T) {
	_, s := screenFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		scan func() ([]Row, error)
		want []string
	}{
		{
			name: "operating margin band",
			scan: func() ([]Row, error) { return s.OperatingMarginScan(ctx, contracts.MarketTSE, 10, 20) },
			want: []string{"1101"},
		},
		{
			name: "operating margin wide band",
			scan: func() ([]Row, error) { return s.OperatingMarginScan(ctx, "", 0, 100) },
			want: []string{"1101", "2330"},
		},
		{
			name: "operating margin inverted band",
			scan: func() ([]Row, error) { return s.OperatingMarginScan(ctx, contracts.MarketTSE, 20, 10) },
			want: []string{},
		},
		{
			name: "pbr ceiling",
			scan: func() ([]Row, error) { return s.PBRScan(ctx, contracts.MarketTSE, 1.5) },
			want: []string{"2330"},
		},
		{
			name: "eps floor across markets",
			scan: func() ([]Row, error) { return s.EPSScan(ctx, "", 2) },
			want: []string{"2330"},
		},
		{
			name: "otc has no statements",
			scan: func() ([]Row, error) { return s.EPSScan(ctx, contracts.MarketOTC, -100) },
			want: []string{},
		},
		{
			name: "balance trend",
			scan: func() ([]Row, error) { return s.BalanceScan(ctx, contracts.MarketTSE, 2, 2) },
			want: []string{"2330"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := tt.scan()
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes(rows))
		})
	}
}

// r1Closes falls for 23 days, holds for 6 and ticks up for 3, ending on Jan 10 2024
func r1Closes() []float64 {
	closes := linear(100, -2, 23)
	for range 6 {
		closes = append(closes, 56)
	}
	return append(closes, 56.1, 56.2, 56.3)
}

// risingLots trades n lots a day and n+100 over the last five
func risingLots(n int64) func(int) int64 {
	return func(i int) int64 {
		if i >= 27 {
			return n + 100
		}
		return n
	}
}

func r1Fixture(t *testing.T) (*fixture, *Screener) {
	f := newFixture(t)

	seed := func(code string, closes []float64, lots func(int) int64, equity, prevRevenue int64) {
		st := f.stock(code, contracts.MarketTSE, true)
		f.bars(st.ID, closes, 0.5, lots)
		f.statements(st.ID,
			contracts.BalanceSheet{ShareholdersNetIncome: null.IntFrom(equity), CommonStocks: null.IntFrom(100_000)},
			contracts.IncomeStatement{NetSales: null.IntFrom(1000), OperatingIncome: null.IntFrom(100), EPS: null.FloatFrom(1)},
		)
		f.revenue(st.ID, calendar.Day(2023, 11, 1), prevRevenue)
		f.revenue(st.ID, calendar.Day(2023, 12, 1), 1000)
		// the running month is not reported yet
		f.revenue(st.ID, calendar.Day(2024, 1, 1), 1)
	}

	seed("1101", r1Closes(), risingLots(300), 563_000, 1010)
	seed("1102", r1Closes(), risingLots(300), 563_000, 1011)
	seed("1103", r1Closes(), risingLots(300), 300_000, 1000)
	seed("1104", r1Closes(), risingLots(100), 563_000, 1000)
	seed("1105", linear(100, -1, 32), risingLots(300), 563_000, 1000)

	return f, NewScreener(f.store, holidays, clock, logger.NewNop())
}

func r1Thresholds() R1Thresholds {
	return R1Thresholds{MaxPBR: 1.5, MinOPM: 0, MinEPS: 0, MinLots: 300}
}

func TestScreener_RecommendR1(t *testing.T) {
	_, s := r1Fixture(t)

	picks, err := s.RecommendR1(context.Background(), contracts.MarketTSE, time.Time{}, r1Thresholds())
	require.NoError(t, err)
	require.Len(t, picks, 1)
	assert.Equal(t, "1101", picks[0].Code)
	assert.Equal(t, 56.3, picks[0].Price)
	assert.Equal(t, calendar.Day(2024, 1, 10), picks[0].Date)
	assert.NotZero(t, picks[0].StockID)

	// MA5 is still below MA10 a day earlier
	picks, err = s.RecommendR1(context.Background(), contracts.MarketTSE, calendar.Day(2024, 1, 9), r1Thresholds())
	require.NoError(t, err)
	assert.Empty(t, picks)

	_, err = s.RecommendR1(context.Background(), contracts.MarketTSE, time.Time{}, R1Thresholds{MaxPBR: 0})
	assert.ErrorIs(t, err, contracts.ErrInvalidRange)
}

func TestScreener_SaveRecommendations(t *testing.T) {
	f, s := r1Fixture(t)
	repo := NewRepository(f.store)
	ctx := context.Background()

	report, err := s.SaveRecommendations(ctx, repo, contracts.MarketTSE, calendar.Day(2024, 1, 6), calendar.Day(2024, 1, 10), r1Thresholds())
	require.NoError(t, err)
	assert.Equal(t, &SaveReport{Dates: 3, Picks: 1, Created: 1}, report)

	// stored once per stock and date
	report, err = s.SaveRecommendations(ctx, repo, contracts.MarketTSE, calendar.Day(2024, 1, 10), calendar.Day(2024, 1, 10), r1Thresholds())
	require.NoError(t, err)
	assert.Equal(t, &SaveReport{Dates: 1, Picks: 1, Created: 0}, report)

	recs, err := repo.List(ctx, calendar.Day(2024, 1, 1), calendar.Day(2024, 1, 31))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "1101", recs[0].Code)
	assert.Equal(t, 56.3, recs[0].Price)
	assert.Equal(t, calendar.Day(2024, 1, 10), recs[0].Date)

	_, err = s.SaveRecommendations(ctx, repo, contracts.MarketTSE, calendar.Day(2024, 1, 10), calendar.Day(2024, 1, 9), r1Thresholds())
	assert.ErrorIs(t, err, contracts.ErrInvalidRange)
}

func TestRepository_SaveDayWithoutDateRow(t *testing.T) {
	f := newFixture(t)
	st := f.stock("1101", contracts.MarketTSE, true)

	created, err := NewRepository(f.store).SaveDay(context.Background(), calendar.Day(2024, 1, 10),
		[]contracts.Recommendation{{StockID: st.ID, Code: st.Code, Price: 10}})
	require.NoError(t, err)
	assert.Zero(t, created)
}

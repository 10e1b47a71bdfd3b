package aggregate

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

func bar(price float64, vol int64) contracts.PriceHistory {
	return contracts.PriceHistory{
		Open:   null.FloatFrom(price),
		High:   null.FloatFrom(price),
		Low:    null.FloatFrom(price),
		Close:  null.FloatFrom(price),
		Volume: null.IntFrom(vol),
		Value:  null.IntFrom(vol * int64(price)),
		Change: null.FloatFrom(0.1),
	}
}

func TestCandlestick(t *testing.T) {
	rows := []contracts.PriceHistory{bar(10, 100), bar(12, 200), bar(8, 150), bar(9, 300)}

	got, ok := Candlestick(rows)
	require.True(t, ok)
	assert.Equal(t, null.FloatFrom(10), got.Open)
	assert.Equal(t, null.FloatFrom(12), got.High)
	assert.Equal(t, null.FloatFrom(8), got.Low)
	assert.Equal(t, null.FloatFrom(9), got.Close)
	assert.Equal(t, null.IntFrom(750), got.Volume)
	assert.Equal(t, null.FloatFrom(0.4), got.Change)
}

func TestCandlestick_MissingValues(t *testing.T) {
	suspended := contracts.PriceHistory{Change: null.FloatFrom(0)}
	rows := []contracts.PriceHistory{suspended, bar(10, 100), suspended}

	got, ok := Candlestick(rows)
	require.True(t, ok)
	assert.Equal(t, null.FloatFrom(10), got.Open, "open is the first reported open")
	assert.Equal(t, null.FloatFrom(10), got.Close, "close is the last reported close")
	assert.Equal(t, null.IntFrom(100), got.Volume)

	got, ok = Candlestick([]contracts.PriceHistory{suspended})
	require.True(t, ok)
	assert.False(t, got.Close.Valid)
	assert.False(t, got.Volume.Valid, "volume stays null when no day trades")

	_, ok = Candlestick(nil)
	assert.False(t, ok)
}

type fixture struct {
	store *memstore.Store
	stock *contracts.Stock
	lock  *store.DimensionLock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memstore.New()
	st := &contracts.Stock{Code: "2330", Name: "台積電", Market: contracts.MarketTSE, IsAlive: true}
	require.NoError(t, s.CreateStock(context.Background(), st))
	return &fixture{store: s, stock: st, lock: store.NewDimensionLock()}
}

func (f *fixture) addDaily(t *testing.T, d time.Time, row contracts.PriceHistory) {
	t.Helper()
	ctx := context.Background()
	pd, err := store.GetOrCreatePeriodDate(ctx, f.lock, f.store, contracts.PeriodDaily, d)
	require.NoError(t, err)
	row.StockID, row.DateID = f.stock.ID, pd.ID
	require.NoError(t, f.store.InsertPriceHistory(ctx, contracts.PeriodDaily, []contracts.PriceHistory{row}))
}

func TestPipeline_WeeklyIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addDaily(t, calendar.Day(2024, 1, 2), bar(10, 1000))
	f.addDaily(t, calendar.Day(2024, 1, 3), bar(11, 2000))

	p := NewPipeline(f.store, f.lock, logger.NewNop())
	holidays := calendar.NewHolidays(nil, nil)

	for run := 0; run < 2; run++ {
		res, err := p.Build(ctx, contracts.MarketTSE, contracts.PeriodWeekly, calendar.Day(2024, 1, 3), calendar.Day(2024, 1, 7), holidays)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Buckets)
	}

	rows, err := f.store.ListPriceHistory(ctx, contracts.PeriodWeekly, f.stock.ID, contracts.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1, "exactly one weekly row per stock and bucket")
	assert.Equal(t, calendar.Day(2024, 1, 1), rows[0].Date)
	assert.Equal(t, null.FloatFrom(11), rows[0].Close, "close of the week is the second day's close")
	assert.Equal(t, null.IntFrom(3000), rows[0].Volume)

	wm, ok, err := f.store.GetWatermark(ctx, contracts.MarketTSE, contracts.WatermarkWeeklyHistory)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, calendar.Day(2024, 1, 1), wm)
}

func TestPipeline_RecomputesChangedDaily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addDaily(t, calendar.Day(2024, 1, 2), bar(10, 1000))

	p := NewPipeline(f.store, f.lock, logger.NewNop())
	holidays := calendar.NewHolidays(nil, nil)

	_, err := p.Build(ctx, contracts.MarketTSE, contracts.PeriodMonthly, calendar.Day(2024, 1, 1), calendar.Day(2024, 1, 31), holidays)
	require.NoError(t, err)

	f.addDaily(t, calendar.Day(2024, 1, 30), bar(14, 500))
	res, err := p.Build(ctx, contracts.MarketTSE, contracts.PeriodMonthly, calendar.Day(2024, 1, 1), calendar.Day(2024, 1, 31), holidays)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	rows, err := f.store.ListPriceHistory(ctx, contracts.PeriodMonthly, f.stock.ID, contracts.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, null.FloatFrom(14), rows[0].Close)
	assert.Equal(t, null.FloatFrom(14), rows[0].High)
}

func TestPipeline_SkipsHolidayBuckets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var closed []time.Time
	for d := range calendar.DateRange(calendar.Day(2024, 2, 5), calendar.Day(2024, 2, 9)) {
		closed = append(closed, d)
	}
	holidays := calendar.NewHolidays(closed, nil)

	p := NewPipeline(f.store, f.lock, logger.NewNop())
	res, err := p.Build(ctx, contracts.MarketTSE, contracts.PeriodWeekly, calendar.Day(2024, 2, 5), calendar.Day(2024, 2, 11), holidays)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Buckets)
	assert.Equal(t, 1, res.Skipped)

	_, ok, err := f.store.GetPeriodDate(ctx, contracts.PeriodWeekly, calendar.Day(2024, 2, 5))
	require.NoError(t, err)
	assert.False(t, ok, "no dimension row for a closed week")
}

func TestPipeline_SkipsStocksWithoutDaily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.CreateStock(ctx, &contracts.Stock{Code: "1101", Market: contracts.MarketTSE, IsAlive: true}))
	f.addDaily(t, calendar.Day(2024, 1, 2), bar(10, 1000))

	p := NewPipeline(f.store, f.lock, logger.NewNop())
	res, err := p.Build(ctx, contracts.MarketTSE, contracts.PeriodWeekly, calendar.Day(2024, 1, 1), calendar.Day(2024, 1, 7), calendar.NewHolidays(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
}

func TestPipeline_RejectsDaily(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.store, f.lock, logger.NewNop())
	_, err := p.Build(context.Background(), contracts.MarketTSE, contracts.PeriodDaily, calendar.Day(2024, 1, 1), calendar.Day(2024, 1, 7), calendar.Holidays{})
	assert.Error(t, err)
}

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/pkg/config"
	"github.com/stockprophet/backend/pkg/database"
)

// newTestStore opens DATABASE_URL, creates the schema and empties every table
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" || testing.Short() {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, db.EnsureSchema(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE recommendation, market_watermark, stock_metadata, capital_reduction,
		monthly_revenue, income_statement, balance_sheet, price_history, stock, period_date RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return New(db.Pool)
}

func TestStore_Stocks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tsmc := &contracts.Stock{Code: "2330", Name: "台積電", Market: contracts.MarketTSE, Category: "半導體業", IsAlive: true}
	require.NoError(t, s.CreateStock(ctx, tsmc))
	assert.NotZero(t, tsmc.ID)
	assert.Error(t, s.CreateStock(ctx, &contracts.Stock{Code: "2330", Market: contracts.MarketTSE}))
	require.NoError(t, s.CreateStock(ctx, &contracts.Stock{Code: "6488", Name: "環球晶", Market: contracts.MarketOTC, IsAlive: true}))

	got, ok, err := s.GetStockByCode(ctx, "2330")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tsmc.ID, got.ID)

	require.NoError(t, s.UpdateStockAlive(ctx, tsmc.ID, false))
	alive := true
	list, err := s.ListStocks(ctx, contracts.StockFilter{Alive: &alive})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "6488", list[0].Code)

	assert.ErrorIs(t, s.UpdateStockAlive(ctx, 999, true), contracts.ErrNotFound)

	renamed := *tsmc
	renamed.Name, renamed.Category, renamed.IsAlive = "台積", "電子工業", true
	require.NoError(t, s.UpdateStock(ctx, &renamed))
	got, ok, err = s.GetStock(ctx, contracts.MarketTSE, "2330")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "台積", got.Name)
	assert.Equal(t, "電子工業", got.Category)
	assert.True(t, got.IsAlive)
	assert.ErrorIs(t, s.UpdateStock(ctx, &contracts.Stock{ID: 999}), contracts.ErrNotFound)
	assert.ErrorIs(t, s.DeleteStock(ctx, 999), contracts.ErrNotFound)
}

func TestStore_PriceHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := &contracts.Stock{Code: "2330", Market: contracts.MarketTSE, IsAlive: true}
	require.NoError(t, s.CreateStock(ctx, st))

	var rows []contracts.PriceHistory
	for i, day := range []int{2, 3, 4} {
		d, err := s.CreatePeriodDate(ctx, contracts.PeriodDaily, calendar.Day(2024, 1, day))
		require.NoError(t, err)
		rows = append(rows, contracts.PriceHistory{
			StockID: st.ID, DateID: d.ID,
			Close:  null.FloatFrom(float64(590 + i)),
			Volume: null.IntFrom(1000),
		})
	}
	again, err := s.CreatePeriodDate(ctx, contracts.PeriodDaily, calendar.Day(2024, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, rows[0].DateID, again.ID)

	require.NoError(t, s.InsertPriceHistory(ctx, contracts.PeriodDaily, rows))
	// duplicates are skipped
	require.NoError(t, s.InsertPriceHistory(ctx, contracts.PeriodDaily, rows[:1]))

	list, err := s.ListPriceHistory(ctx, contracts.PeriodDaily, st.ID, contracts.HistoryFilter{Desc: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, calendar.Day(2024, 1, 4).Equal(list[0].Date))
	assert.Equal(t, 592.0, list[0].Close.Float64)
	assert.False(t, list[0].Open.Valid)

	weekly, err := s.ListPriceHistory(ctx, contracts.PeriodWeekly, st.ID, contracts.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, weekly)

	err = s.InsertPriceHistory(ctx, contracts.PeriodDaily, []contracts.PriceHistory{{StockID: st.ID, DateID: 999}})
	assert.ErrorIs(t, err, contracts.ErrMissingDimension)
}

func TestStore_StatementsAndRecommendations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := &contracts.Stock{Code: "2330", Name: "台積電", Market: contracts.MarketTSE, IsAlive: true}
	require.NoError(t, s.CreateStock(ctx, st))
	season, err := s.CreatePeriodDate(ctx, contracts.PeriodSeason, calendar.Day(2023, 9, 1))
	require.NoError(t, err)

	b := &contracts.BalanceSheet{StockID: st.ID, SeasonDateID: season.ID, TotalAssets: null.IntFrom(100)}
	require.NoError(t, s.CreateBalanceSheet(ctx, b))
	assert.True(t, season.Date.Equal(b.Date))
	assert.Error(t, s.CreateBalanceSheet(ctx, &contracts.BalanceSheet{StockID: st.ID, SeasonDateID: season.ID}))

	b.TotalAssets = null.IntFrom(200)
	require.NoError(t, s.UpsertBalanceSheet(ctx, b))
	got, ok, err := s.GetBalanceSheet(ctx, st.ID, season.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(200), got.TotalAssets.Int64)

	inc := &contracts.IncomeStatement{StockID: st.ID, SeasonDateID: season.ID, EPS: null.FloatFrom(3.5)}
	require.NoError(t, s.UpsertIncomeStatement(ctx, inc))
	incomes, err := s.ListIncomeStatements(ctx, st.ID, contracts.HistoryFilter{To: calendar.Day(2023, 12, 31)})
	require.NoError(t, err)
	require.Len(t, incomes, 1)
	assert.Equal(t, 3.5, incomes[0].EPS.Float64)

	day, err := s.CreatePeriodDate(ctx, contracts.PeriodDaily, calendar.Day(2024, 1, 10))
	require.NoError(t, err)
	rec := &contracts.Recommendation{StockID: st.ID, DailyDateID: day.ID, Price: 56.3}
	require.NoError(t, s.CreateRecommendation(ctx, rec))
	assert.Equal(t, "2330", rec.Code)
	assert.Equal(t, "台積電", rec.Name)
	assert.Error(t, s.CreateRecommendation(ctx, &contracts.Recommendation{StockID: st.ID, DailyDateID: day.ID}))

	recs, err := s.ListRecommendations(ctx, contracts.HistoryFilter{From: day.Date, To: day.Date})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 56.3, recs[0].Price)
}

func TestStore_Watermarks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetWatermark(ctx, contracts.MarketTSE, contracts.WatermarkDailyHistory)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AdvanceWatermark(ctx, contracts.MarketTSE, contracts.WatermarkDailyHistory, calendar.Day(2024, 1, 10)))
	require.NoError(t, s.AdvanceWatermark(ctx, contracts.MarketTSE, contracts.WatermarkDailyHistory, calendar.Day(2024, 1, 2)))
	d, ok, err := s.GetWatermark(ctx, contracts.MarketTSE, contracts.WatermarkDailyHistory)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, calendar.Day(2024, 1, 10).Equal(d))

	st := &contracts.Stock{Code: "2330", Market: contracts.MarketTSE}
	require.NoError(t, s.CreateStock(ctx, st))
	m := &contracts.StockMetadata{StockID: st.ID}
	m.Advance(contracts.WatermarkBalance, calendar.Day(2023, 9, 1))
	require.NoError(t, s.CreateStockMetadata(ctx, m))
	m.Advance(contracts.WatermarkBalance, calendar.Day(2023, 12, 1))
	require.NoError(t, s.UpdateStockMetadata(ctx, m))

	got, ok, err := s.GetStockMetadata(ctx, st.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, calendar.Day(2023, 9, 1).Equal(got.BalanceSheetCreateDate.Time))
	assert.True(t, calendar.Day(2023, 12, 1).Equal(got.BalanceSheetUpdateDate.Time))

	assert.ErrorIs(t, s.UpdateStockMetadata(ctx, &contracts.StockMetadata{StockID: 999}), contracts.ErrNotFound)
}

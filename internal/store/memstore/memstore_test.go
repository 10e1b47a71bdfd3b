package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
)

func TestStocks(t *testing.T) {
	ctx := context.Background()
	s := New()

	tsmc := &contracts.Stock{Code: "2330", Name: "台積電", Market: contracts.MarketTSE, Category: "半導體業", IsAlive: true}
	require.NoError(t, s.CreateStock(ctx, tsmc))
	assert.NotZero(t, tsmc.ID)

	assert.Error(t, s.CreateStock(ctx, &contracts.Stock{Code: "2330", Market: contracts.MarketTSE}), "unique per code and market")
	require.NoError(t, s.CreateStock(ctx, &contracts.Stock{Code: "6488", Market: contracts.MarketOTC, IsAlive: true}))

	got, ok, err := s.GetStock(ctx, contracts.MarketTSE, "2330")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "台積電", got.Name)

	_, ok, err = s.GetStock(ctx, contracts.MarketOTC, "2330")
	require.NoError(t, err)
	assert.False(t, ok)

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
	require.NoError(t, s.DeleteStock(ctx, tsmc.ID))
	_, ok, _ = s.GetStockByCode(ctx, "2330")
	assert.False(t, ok)
}

func TestPriceHistory(t *testing.T) {
	ctx := context.Background()
	s := New()

	st := &contracts.Stock{Code: "2330", Market: contracts.MarketTSE}
	require.NoError(t, s.CreateStock(ctx, st))

	var ids []int64
	for _, d := range []time.Time{calendar.Day(2024, 1, 2), calendar.Day(2024, 1, 3), calendar.Day(2024, 1, 4)} {
		pd, err := s.CreatePeriodDate(ctx, contracts.PeriodDaily, d)
		require.NoError(t, err)
		ids = append(ids, pd.ID)
	}
	_, err := s.CreatePeriodDate(ctx, contracts.PeriodDaily, calendar.Day(2024, 1, 2))
	assert.Error(t, err)

	rows := []contracts.PriceHistory{
		{StockID: st.ID, DateID: ids[0], Close: null.FloatFrom(10)},
		{StockID: st.ID, DateID: ids[1], Close: null.FloatFrom(11)},
		{StockID: st.ID, DateID: ids[2], Close: null.FloatFrom(12)},
	}
	require.NoError(t, s.InsertPriceHistory(ctx, contracts.PeriodDaily, rows))
	// re-insert is skipped, not duplicated
	require.NoError(t, s.InsertPriceHistory(ctx, contracts.PeriodDaily, rows[:1]))

	all, err := s.ListPriceHistory(ctx, contracts.PeriodDaily, st.ID, contracts.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, calendar.Day(2024, 1, 2), all[0].Date)

	latest, err := s.ListPriceHistory(ctx, contracts.PeriodDaily, st.ID, contracts.HistoryFilter{Desc: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, 12.0, latest[0].Close.Float64)

	window, err := s.ListPriceHistory(ctx, contracts.PeriodDaily, st.ID, contracts.HistoryFilter{
		From: calendar.Day(2024, 1, 3), To: calendar.Day(2024, 1, 3),
	})
	require.NoError(t, err)
	require.Len(t, window, 1)

	row := window[0]
	row.Close = null.FloatFrom(99)
	require.NoError(t, s.UpdatePriceHistory(ctx, contracts.PeriodDaily, row))
	got, ok, err := s.GetPriceHistory(ctx, contracts.PeriodDaily, st.ID, ids[1])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 99.0, got.Close.Float64)

	byDate, err := s.ListPriceHistoryByDate(ctx, contracts.PeriodDaily, calendar.Day(2024, 1, 4))
	require.NoError(t, err)
	assert.Len(t, byDate, 1)

	require.NoError(t, s.DeletePriceHistory(ctx, contracts.PeriodDaily, row.ID))
	assert.ErrorIs(t, s.DeletePriceHistory(ctx, contracts.PeriodDaily, row.ID), contracts.ErrNotFound)

	err = s.InsertPriceHistory(ctx, contracts.PeriodDaily, []contracts.PriceHistory{{StockID: 404, DateID: ids[0]}})
	assert.ErrorIs(t, err, contracts.ErrMissingDimension)
}

func TestWatermark(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, ok, err := s.GetWatermark(ctx, contracts.MarketTSE, contracts.WatermarkWeeklyHistory)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AdvanceWatermark(ctx, contracts.MarketTSE, contracts.WatermarkWeeklyHistory, calendar.Day(2024, 1, 8)))
	require.NoError(t, s.AdvanceWatermark(ctx, contracts.MarketTSE, contracts.WatermarkWeeklyHistory, calendar.Day(2024, 1, 1)))

	d, ok, err := s.GetWatermark(ctx, contracts.MarketTSE, contracts.WatermarkWeeklyHistory)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, calendar.Day(2024, 1, 8), d, "watermark only moves forward")
}

func TestMetadataAndRecommendations(t *testing.T) {
	ctx := context.Background()
	s := New()

	st := &contracts.Stock{Code: "2330", Name: "台積電", Market: contracts.MarketTSE}
	require.NoError(t, s.CreateStock(ctx, st))
	pd, err := s.CreatePeriodDate(ctx, contracts.PeriodDaily, calendar.Day(2024, 1, 2))
	require.NoError(t, err)

	m := &contracts.StockMetadata{StockID: st.ID}
	require.NoError(t, s.CreateStockMetadata(ctx, m))
	m.Advance(contracts.WatermarkDailyHistory, calendar.Day(2024, 1, 2))
	require.NoError(t, s.UpdateStockMetadata(ctx, m))

	got, ok, err := s.GetStockMetadata(ctx, st.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, calendar.Day(2024, 1, 2), got.DailyHistoryUpdateDate.Time)

	rec := &contracts.Recommendation{StockID: st.ID, DailyDateID: pd.ID, Price: 580}
	require.NoError(t, s.CreateRecommendation(ctx, rec))
	assert.Error(t, s.CreateRecommendation(ctx, &contracts.Recommendation{StockID: st.ID, DailyDateID: pd.ID}))

	recs, err := s.ListRecommendations(ctx, contracts.HistoryFilter{From: calendar.Day(2024, 1, 2), To: calendar.Day(2024, 1, 2)})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2330", recs[0].Code)
	assert.Equal(t, calendar.Day(2024, 1, 2), recs[0].Date)
}

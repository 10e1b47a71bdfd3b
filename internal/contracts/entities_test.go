package contracts

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStockMetadata_Advance(t *testing.T) {
	var m StockMetadata

	assert.True(t, m.Advance(WatermarkDailyHistory, day(2024, 3, 4)))
	assert.Equal(t, day(2024, 3, 4), m.Created(WatermarkDailyHistory).Time)
	assert.Equal(t, day(2024, 3, 4), m.Updated(WatermarkDailyHistory).Time)

	assert.True(t, m.Advance(WatermarkDailyHistory, day(2024, 3, 5)))
	assert.Equal(t, day(2024, 3, 4), m.Created(WatermarkDailyHistory).Time, "create date is set once")
	assert.Equal(t, day(2024, 3, 5), m.Updated(WatermarkDailyHistory).Time)

	assert.False(t, m.Advance(WatermarkDailyHistory, day(2024, 3, 1)), "older date never rewinds")
	assert.Equal(t, day(2024, 3, 5), m.Updated(WatermarkDailyHistory).Time)

	assert.False(t, m.Updated(WatermarkBalance).Valid)
	assert.False(t, m.Advance(WatermarkKind("unknown"), day(2024, 3, 1)))
}

func TestStockMetadata_Extend(t *testing.T) {
	var m StockMetadata

	assert.True(t, m.Extend(WatermarkIncome, day(2024, 4, 1)))
	assert.True(t, m.Extend(WatermarkIncome, day(2023, 12, 1)), "backfill moves the create date back")
	assert.Equal(t, day(2023, 12, 1), m.Created(WatermarkIncome).Time)
	assert.Equal(t, day(2024, 4, 1), m.Updated(WatermarkIncome).Time)

	assert.False(t, m.Extend(WatermarkIncome, day(2024, 1, 1)), "inside the range")
	assert.False(t, m.Extend(WatermarkKind("unknown"), day(2024, 1, 1)))
}

func TestHistoryFilter_Contains(t *testing.T) {
	tests := []struct {
		name   string
		filter HistoryFilter
		date   time.Time
		want   bool
	}{
		{"open bounds", HistoryFilter{}, day(2020, 1, 1), true},
		{"inclusive from", HistoryFilter{From: day(2024, 1, 1)}, day(2024, 1, 1), true},
		{"before from", HistoryFilter{From: day(2024, 1, 1)}, day(2023, 12, 31), false},
		{"inclusive to", HistoryFilter{To: day(2024, 1, 31)}, day(2024, 1, 31), true},
		{"after to", HistoryFilter{To: day(2024, 1, 31)}, day(2024, 2, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Contains(tt.date))
		})
	}
}

func TestStockFilter_Matches(t *testing.T) {
	alive := true
	s := Stock{Code: "2330", Market: MarketTSE, Category: "半導體業", IsAlive: true}

	assert.True(t, StockFilter{}.Matches(s))
	assert.True(t, StockFilter{Market: MarketTSE, Alive: &alive}.Matches(s))
	assert.False(t, StockFilter{Market: MarketOTC}.Matches(s))
	assert.False(t, StockFilter{Category: CategoryETF}.Matches(s))
}

func TestParseMarketAndPeriod(t *testing.T) {
	m, err := ParseMarket("otc")
	require.NoError(t, err)
	assert.Equal(t, MarketOTC, m)

	_, err = ParseMarket("nyse")
	assert.Error(t, err)

	p, err := ParsePeriod("weekly")
	require.NoError(t, err)
	assert.True(t, p.IsCandlestick())
	assert.False(t, PeriodSeason.IsCandlestick())
}

func TestErrors(t *testing.T) {
	assert.True(t, errors.Is(ErrRateLimited, ErrRemoteFetch))

	err := FetchError("twse", errors.New("status 503"))
	assert.ErrorIs(t, err, ErrRemoteFetch)
	assert.Contains(t, err.Error(), "status 503")

	err = FetchError("mops", ErrRateLimited)
	assert.ErrorIs(t, err, ErrRateLimited)

	assert.ErrorIs(t, RangeError("end %s before start", "2024-01-01"), ErrInvalidRange)
}

func TestLossLog(t *testing.T) {
	var log LossLog
	log.Add(Loss{Kind: LossIncomeStatement, Code: "2330", Year: 2023, Season: 2})
	log.Add(Loss{Kind: LossDailyHistory, Market: MarketTSE, Date: day(2024, 1, 3)})
	log.Add(Loss{Kind: LossDailyHistory, Market: MarketTSE, Date: day(2024, 1, 2)})

	require.Equal(t, 3, log.Len())
	losses := log.Losses()
	assert.Equal(t, LossDailyHistory, losses[0].Kind)
	assert.Equal(t, day(2024, 1, 2), losses[0].Date)
	assert.Equal(t, "income_statement 2330 2023Q2", losses[2].String())
	assert.Equal(t, "daily_history tse 2024-01-03", losses[1].String())

	log.Reset()
	assert.Zero(t, log.Len())
}

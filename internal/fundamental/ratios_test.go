package fundamental

import (
	"context"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockprophet/backend/internal/contracts"
)

func TestPBR(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		price   float64
		balance *contracts.BalanceSheet
		want    null.Float
	}{
		{
			name:  "shareholders equity",
			code:  "2330",
			price: 55.3,
			balance: &contracts.BalanceSheet{
				ShareholdersNetIncome: null.IntFrom(500_000_000),
				CommonStocks:          null.IntFrom(100_000_000),
			},
			want: null.FloatFrom(1.11),
		},
		{
			name:  "falls back to assets minus liabilities",
			code:  "2330",
			price: 20,
			balance: &contracts.BalanceSheet{
				TotalAssets:  null.IntFrom(900_000),
				TotalLiabs:   null.IntFrom(400_000),
				CommonStocks: null.IntFrom(100_000),
			},
			want: null.FloatFrom(0.4),
		},
		{
			name:  "par value override",
			code:  "6548",
			price: 12,
			balance: &contracts.BalanceSheet{
				ShareholdersNetIncome: null.IntFrom(300_000),
				CommonStocks:          null.IntFrom(100_000),
			},
			want: null.FloatFrom(4),
		},
		{
			name:    "no common stock",
			code:    "2330",
			price:   10,
			balance: &contracts.BalanceSheet{ShareholdersNetIncome: null.IntFrom(1)},
		},
		{
			name:    "no equity figures",
			code:    "2330",
			price:   10,
			balance: &contracts.BalanceSheet{CommonStocks: null.IntFrom(1000)},
		},
		{
			name:  "no balance sheet",
			code:  "2330",
			price: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PBR(tt.code, tt.price, tt.balance))
		})
	}
}

func TestParValue(t *testing.T) {
	assert.Equal(t, 10.0, ParValue("2330"))
	assert.Equal(t, 0.03, ParValue("4157"))
	assert.Equal(t, 1.0, ParValue("8070"))
}

func TestMargins(t *testing.T) {
	s := &contracts.IncomeStatement{
		NetSales:        null.IntFrom(1_000_000),
		GrossProfit:     null.IntFrom(456_789),
		OperatingIncome: null.IntFrom(123_456),
		EPS:             null.FloatFrom(3.21),
	}

	assert.Equal(t, null.FloatFrom(12.35), OperatingMargin(s))
	assert.Equal(t, null.FloatFrom(45.68), GrossMargin(s))
	assert.Equal(t, null.FloatFrom(3.21), EPS(s))

	zeroSales := &contracts.IncomeStatement{NetSales: null.IntFrom(0), OperatingIncome: null.IntFrom(5)}
	assert.False(t, OperatingMargin(zeroSales).Valid)
	assert.False(t, GrossMargin(zeroSales).Valid)
	assert.False(t, OperatingMargin(nil).Valid)
	assert.False(t, EPS(nil).Valid)
}

func TestCompute(t *testing.T) {
	r := Compute("2330", 55.3, &contracts.BalanceSheet{
		ShareholdersNetIncome: null.IntFrom(500_000_000),
		CommonStocks:          null.IntFrom(100_000_000),
	}, nil)

	assert.Equal(t, null.FloatFrom(1.11), r.PBR)
	assert.False(t, r.EPS.Valid)
	assert.False(t, r.OperatingMargin.Valid)
}

func balances(values ...int64) []contracts.BalanceSheet {
	out := make([]contracts.BalanceSheet, len(values))
	for i, v := range values {
		out[i] = contracts.BalanceSheet{TotalLiabs: null.IntFrom(v), TotalAssets: null.IntFrom(v)}
	}
	return out
}

func TestIsLiabilitiesDescending(t *testing.T) {
	// newest first: liabilities fell from 300 to 100 over time
	assert.True(t, IsLiabilitiesDescending(balances(100, 200, 300), 3))
	assert.True(t, IsLiabilitiesDescending(balances(100, 100, 300), 3))
	assert.False(t, IsLiabilitiesDescending(balances(300, 200, 100), 3))
	assert.False(t, IsLiabilitiesDescending(balances(100, 200), 3), "needs exactly n seasons")
	assert.False(t, IsLiabilitiesDescending(balances(100, 0, 0), 3), "a single figure proves nothing")
}

func TestIsAssetsAscending(t *testing.T) {
	assert.True(t, IsAssetsAscending(balances(300, 200, 100), 3))
	assert.False(t, IsAssetsAscending(balances(100, 200, 300), 3))
	assert.True(t, IsAssetsAscending(balances(300, 0, 100), 3))
}

type fakeStatements struct {
	balances []contracts.BalanceSheet
	incomes  []contracts.IncomeStatement
}

func (f fakeStatements) ListBalanceSheets(_ context.Context, _ int64, _ contracts.HistoryFilter) ([]contracts.BalanceSheet, error) {
	return f.balances, nil
}

func (f fakeStatements) ListIncomeStatements(_ context.Context, _ int64, _ contracts.HistoryFilter) ([]contracts.IncomeStatement, error) {
	return f.incomes, nil
}

func TestSeasonRatios(t *testing.T) {
	r := fakeStatements{
		balances: []contracts.BalanceSheet{{
			ShareholdersNetIncome: null.IntFrom(500_000_000),
			CommonStocks:          null.IntFrom(100_000_000),
		}},
		incomes: []contracts.IncomeStatement{{NetSales: null.IntFrom(200), OperatingIncome: null.IntFrom(50), EPS: null.FloatFrom(1.5)}},
	}

	ratios, err := SeasonRatios(context.Background(), r, contracts.Stock{ID: 1, Code: "2330"}, 55.3, time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, null.FloatFrom(1.11), ratios.PBR)
	assert.Equal(t, null.FloatFrom(25), ratios.OperatingMargin)
	assert.Equal(t, null.FloatFrom(1.5), ratios.EPS)

	b, s, err := SeasonStatements(context.Background(), fakeStatements{}, 1, time.Now())
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.Nil(t, s)
}

// Package fundamental derives valuation and margin ratios from season statements.
//
// ⭐ SSOT: PBR/EPS/margin 계산은 여기서만
package fundamental

import (
	"github.com/guregu/null/v6"

	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/mathx"
)

// defaultParValue is the face value of one share in NTD
const defaultParValue = 10.0

// parValueOverrides lists codes whose shares are not issued at 10 NTD
var parValueOverrides = map[string]float64{
	"4157": 0.03,
	"6548": 1.0,
	"8070": 1.0,
}

// ParValue returns the face value of one share of code
func ParValue(code string) float64 {
	if v, ok := parValueOverrides[code]; ok {
		return v
	}
	return defaultParValue
}

// BookValuePerShare uses shareholders' equity, falling back to assets minus liabilities.
// Zero figures count as absent.
func BookValuePerShare(code string, b *contracts.BalanceSheet) null.Float {
	if b == nil || b.CommonStocks.ValueOrZero() == 0 {
		return null.Float{}
	}
	shares := float64(b.CommonStocks.Int64) / ParValue(code)

	if equity := b.ShareholdersNetIncome.ValueOrZero(); equity != 0 {
		return null.FloatFrom(float64(equity) / shares)
	}
	assets, liabs := b.TotalAssets.ValueOrZero(), b.TotalLiabs.ValueOrZero()
	if assets != 0 && liabs != 0 && assets != liabs {
		return null.FloatFrom(float64(assets-liabs) / shares)
	}
	return null.Float{}
}

// PBR is price over book value per share, rounded to 2 decimals
func PBR(code string, price float64, b *contracts.BalanceSheet) null.Float {
	bvps := BookValuePerShare(code, b)
	if !bvps.Valid {
		return null.Float{}
	}
	return null.FloatFrom(mathx.Round2(price / bvps.Float64))
}

// EPS is read straight from the statement
func EPS(s *contracts.IncomeStatement) null.Float {
	if s == nil {
		return null.Float{}
	}
	return s.EPS
}

// OperatingMargin is operating income over net sales in percent
func OperatingMargin(s *contracts.IncomeStatement) null.Float {
	if s == nil {
		return null.Float{}
	}
	return margin(s.OperatingIncome, s.NetSales)
}

// GrossMargin is gross profit over net sales in percent
func GrossMargin(s *contracts.IncomeStatement) null.Float {
	if s == nil {
		return null.Float{}
	}
	return margin(s.GrossProfit, s.NetSales)
}

func margin(part, netSales null.Int) null.Float {
	if part.ValueOrZero() == 0 || netSales.ValueOrZero() == 0 {
		return null.Float{}
	}
	return null.FloatFrom(mathx.Round2(float64(part.Int64) / float64(netSales.Int64) * 100))
}

// Ratios bundles every ratio of one stock at one season
type Ratios struct {
	PBR             null.Float `json:"pbr"`
	EPS             null.Float `json:"eps"`
	OperatingMargin null.Float `json:"operating_margin"`
	GrossMargin     null.Float `json:"gross_margin"`
}

// Compute derives every ratio. Either statement may be nil.
func Compute(code string, price float64, b *contracts.BalanceSheet, s *contracts.IncomeStatement) Ratios {
	return Ratios{
		PBR:             PBR(code, price, b),
		EPS:             EPS(s),
		OperatingMargin: OperatingMargin(s),
		GrossMargin:     GrossMargin(s),
	}
}

package backtest

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/stockprophet/backend/internal/mathx"
)

// Summary holds performance metrics of one ledger
type Summary struct {
	Principal   int64   `json:"principal"`
	FinalAssets int64   `json:"final_assets"`
	PeakAssets  int64   `json:"peak_assets"`
	ReturnPct   float64 `json:"return_pct"`
	MaxDrawdown float64 `json:"max_drawdown_pct"`
	// Volatility is the standard deviation of row-to-row returns in percent
	Volatility float64 `json:"volatility_pct"`
	Trades     int     `json:"trades"`
	Buys       int     `json:"buys"`
	Sells      int     `json:"sells"`
	Reductions int     `json:"reductions"`
}

// Summarize computes metrics over the total assets curve, starting at principal
func Summarize(principal int64, records []Record) Summary {
	s := Summary{Principal: principal, FinalAssets: principal, PeakAssets: principal}
	if principal <= 0 {
		return s
	}

	curve := make([]float64, 0, len(records)+1)
	curve = append(curve, float64(principal))
	for _, r := range records {
		curve = append(curve, float64(r.TotalAssets))
		switch {
		case r.Reduction:
			s.Reductions++
		case r.BuyVolume.Valid:
			s.Buys++
		case r.SellVolume.Valid:
			s.Sells++
		}
	}
	s.Trades = s.Buys + s.Sells

	s.FinalAssets = int64(curve[len(curve)-1])
	s.PeakAssets = int64(floats.Max(curve))
	s.ReturnPct = mathx.Round2(float64(s.FinalAssets-principal) * 100 / float64(principal))
	s.MaxDrawdown = mathx.Round2(maxDrawdown(curve) * 100)

	if len(curve) > 2 {
		returns := make([]float64, len(curve)-1)
		for i := 1; i < len(curve); i++ {
			returns[i-1] = curve[i]/curve[i-1] - 1
		}
		s.Volatility = mathx.Round2(stat.StdDev(returns, nil) * 100)
	}
	return s
}

// maxDrawdown returns the largest peak-to-trough fall as a fraction
func maxDrawdown(curve []float64) float64 {
	var worst float64
	peak := curve[0]
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}

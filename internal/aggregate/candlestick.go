// Package aggregate rolls daily candlesticks into weekly and monthly ones.
package aggregate

import (
	"github.com/guregu/null/v6"

	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/mathx"
)

// Candlestick folds ascending daily rows into one bucket.
// Zero and null quotes are ignored; volume and value stay null when no day reports them.
func Candlestick(rows []contracts.PriceHistory) (contracts.PriceHistory, bool) {
	if len(rows) == 0 {
		return contracts.PriceHistory{}, false
	}

	var out contracts.PriceHistory
	var change float64
	for _, r := range rows {
		if present(r.Open) && !out.Open.Valid {
			out.Open = r.Open
		}
		if present(r.High) && (!out.High.Valid || r.High.Float64 > out.High.Float64) {
			out.High = r.High
		}
		if present(r.Low) && (!out.Low.Valid || r.Low.Float64 < out.Low.Float64) {
			out.Low = r.Low
		}
		if present(r.Close) {
			out.Close = r.Close
		}
		if r.Volume.ValueOrZero() != 0 {
			out.Volume = null.IntFrom(out.Volume.ValueOrZero() + r.Volume.Int64)
		}
		if r.Value.ValueOrZero() != 0 {
			out.Value = null.IntFrom(out.Value.ValueOrZero() + r.Value.Int64)
		}
		change += r.Change.ValueOrZero()
	}
	out.Change = null.FloatFrom(mathx.Round2(change))
	return out, true
}

func present(f null.Float) bool {
	return f.Valid && f.Float64 != 0
}

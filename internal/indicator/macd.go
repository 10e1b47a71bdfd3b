package indicator

import "github.com/stockprophet/backend/internal/mathx"

// Default MACD periods
const (
	DefaultFast   = 12
	DefaultSlow   = 26
	DefaultSignal = 9
)

// MACDResult holds the three MACD lines, rounded to 6 decimals
type MACDResult struct {
	MACD   []float64
	Signal []float64
	Diff   []float64
}

// MACD computes EWMA(fast) - EWMA(slow), its signal EWMA and their difference
func MACD(values []float64, fast, slow, signal int) MACDResult {
	emaFast := EWMA(values, fast)
	emaSlow := EWMA(values, slow)

	line := make([]float64, len(values))
	for i := range values {
		line[i] = emaFast[i] - emaSlow[i]
	}
	sig := EWMA(line, signal)

	diff := make([]float64, len(values))
	for i := range values {
		diff[i] = line[i] - sig[i]
	}

	return MACDResult{
		MACD:   mathx.RoundAll(line, 6),
		Signal: mathx.RoundAll(sig, 6),
		Diff:   mathx.RoundAll(diff, 6),
	}
}

// Len returns the number of points
func (r MACDResult) Len() int {
	return len(r.Diff)
}

// IsBuyPoint reports a diff crossing from negative to positive on the last
// two points while the MACD and signal lines are not both above zero.
func (r MACDResult) IsBuyPoint() bool {
	n := len(r.Diff)
	if n < 2 {
		return false
	}
	if r.MACD[n-1] > 0 && r.Signal[n-1] > 0 {
		return false
	}
	return r.Diff[n-2] < 0 && r.Diff[n-1] > 0
}

// IsSellPoint reports a diff crossing from non-negative to non-positive on the
// last two points while the MACD and signal lines are not both below zero.
// Needs at least three points.
func (r MACDResult) IsSellPoint() bool {
	n := len(r.Diff)
	if n < 3 {
		return false
	}
	if r.MACD[n-1] < 0 && r.Signal[n-1] < 0 {
		return false
	}
	return r.Diff[n-2] >= 0 && r.Diff[n-1] <= 0
}

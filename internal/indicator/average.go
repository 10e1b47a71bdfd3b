// Package indicator computes moving averages, MACD and KDJ over ordered price series.
//
// ⭐ SSOT: 기술적 지표 계산은 여기서만
// Every function is pure; inputs are oldest first and never modified.
package indicator

import (
	"gonum.org/v1/gonum/floats"
)

// SMA returns the n-period simple moving average via cumulative sums.
// The result has len(values)-n+1 points, or none when the series is shorter than n.
func SMA(values []float64, n int) []float64 {
	if n <= 0 || len(values) < n {
		return nil
	}

	cumsum := make([]float64, len(values)+1)
	floats.CumSum(cumsum[1:], values)

	out := make([]float64, len(values)-n+1)
	for i := range out {
		out[i] = (cumsum[i+n] - cumsum[i]) / float64(n)
	}
	return out
}

// EWMA returns the n-period exponential moving average, one point per input.
// The first n points are the running mean of the previous outputs and the
// current value; afterwards the smoothing factor is 2/(n+1).
func EWMA(values []float64, n int) []float64 {
	out := make([]float64, 0, len(values))
	var seedSum float64
	for i, v := range values {
		if i < n {
			avg := (seedSum + v) / float64(i+1)
			seedSum += avg
			out = append(out, avg)
			continue
		}
		last := out[i-1]
		out = append(out, last+2*(v-last)/float64(n+1))
	}
	return out
}

// Package mathx holds the rounding rules shared by indicators, ratios and the account ledger.
package mathx

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds v to places decimals, ties to even.
// NaN and infinities pass through unchanged.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).RoundBank(int32(places)).InexactFloat64()
}

// Round2 rounds to cents
func Round2(v float64) float64 {
	return Round(v, 2)
}

// Round6 rounds indicator lines
func Round6(v float64) float64 {
	return Round(v, 6)
}

// RoundAll rounds every element of vs in place and returns it
func RoundAll(vs []float64, places int) []float64 {
	for i, v := range vs {
		vs[i] = Round(v, places)
	}
	return vs
}

// Trunc truncates toward zero like an integer cast
func Trunc(v float64) int64 {
	return int64(v)
}

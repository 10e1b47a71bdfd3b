package indicator

// DefaultKDJPeriod is the RSV window
const DefaultKDJPeriod = 9

// kdjSeed is K and D before the first RSV point
const kdjSeed = 50.0

// KDJ thresholds for oversold and overbought zones
const (
	KDJOversold   = 20.0
	KDJOverbought = 80.0
)

// RSV returns the raw stochastic value of every close from the n-th on.
// Points whose n-period high-low range is zero are skipped. high and low
// must be at least as long as closes.
func RSV(high, low, closes []float64, n int) []float64 {
	if n <= 0 || len(high) < len(closes) || len(low) < len(closes) {
		return nil
	}
	var out []float64
	for i := n; i <= len(closes); i++ {
		lo, hi := low[i-n], high[i-n]
		for j := i - n + 1; j < i; j++ {
			lo = min(lo, low[j])
			hi = max(hi, high[j])
		}
		if hi-lo == 0 {
			continue
		}
		out = append(out, 100*(closes[i-1]-lo)/(hi-lo))
	}
	return out
}

// KDJResult holds the K, D and J lines, one point per RSV point
type KDJResult struct {
	K []float64
	D []float64
	J []float64
}

// KDJ smooths RSV recursively, seeding K and D at 50
func KDJ(high, low, closes []float64, n int) KDJResult {
	rsv := RSV(high, low, closes, n)
	res := KDJResult{
		K: make([]float64, len(rsv)),
		D: make([]float64, len(rsv)),
		J: make([]float64, len(rsv)),
	}

	k, d := kdjSeed, kdjSeed
	for i, v := range rsv {
		k = 2.0/3.0*k + 1.0/3.0*v
		d = 2.0/3.0*d + 1.0/3.0*k
		res.K[i] = k
		res.D[i] = d
		res.J[i] = 3*d - 2*k
	}
	return res
}

// Len returns the number of points
func (r KDJResult) Len() int {
	return len(r.K)
}

// GoldenCross reports K rising and crossing above the previous D
func (r KDJResult) GoldenCross() bool {
	n := len(r.K)
	if n < 2 {
		return false
	}
	return r.K[n-1]-r.K[n-2] > 0 && r.K[n-1]-r.D[n-2] > 0
}

// DeathCross reports K falling and crossing below the previous D
func (r KDJResult) DeathCross() bool {
	n := len(r.K)
	if n < 2 {
		return false
	}
	return r.K[n-1]-r.K[n-2] < 0 && r.K[n-1]-r.D[n-2] < 0
}

// IsBuyPoint is a golden cross with K and D both in the oversold zone
func (r KDJResult) IsBuyPoint() bool {
	n := len(r.K)
	if n < 2 || r.K[n-1] > KDJOversold || r.D[n-1] > KDJOversold {
		return false
	}
	return r.GoldenCross()
}

// IsSellPoint is a death cross with K and D both in the overbought zone
func (r KDJResult) IsSellPoint() bool {
	n := len(r.K)
	if n < 2 || r.K[n-1] < KDJOverbought || r.D[n-1] < KDJOverbought {
		return false
	}
	return r.DeathCross()
}

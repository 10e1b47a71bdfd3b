package backtest

import (
	"fmt"

	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/indicator"
)

// Signal is a strategy's verdict on the latest bar
type Signal struct {
	Buy  bool
	Sell bool
}

// Strategy turns a trailing window of bars into buy and sell signals
type Strategy interface {
	Name() string
	Validate() error
	// Lookback is how many calendar days of bars the strategy reads for period
	Lookback(period contracts.Period) int
	// Evaluate receives bars with a valid close, oldest first
	Evaluate(bars []contracts.PriceHistory) Signal
}

// scaleDays widens a day count for weekly and monthly bars
func scaleDays(days int, period contracts.Period) int {
	switch period {
	case contracts.PeriodWeekly:
		return days * 7
	case contracts.PeriodMonthly:
		return days * 30
	default:
		return days
	}
}

// MACDStrategy buys on a MACD buy point and sells on a sell point
type MACDStrategy struct {
	NDay   int `json:"n_day" validate:"gte=1,lte=120"`
	Fast   int `json:"fast" validate:"gte=1"`
	Slow   int `json:"slow" validate:"gte=1"`
	Signal int `json:"signal" validate:"gte=1"`
}

// NewMACDStrategy returns the 12/26/9 MACD over nDay days
func NewMACDStrategy(nDay int) MACDStrategy {
	return MACDStrategy{
		NDay:   nDay,
		Fast:   indicator.DefaultFast,
		Slow:   indicator.DefaultSlow,
		Signal: indicator.DefaultSignal,
	}
}

func (s MACDStrategy) Name() string { return "macd" }

func (s MACDStrategy) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidRange, err)
	}
	return nil
}

func (s MACDStrategy) Lookback(period contracts.Period) int {
	return scaleDays(s.NDay, period)
}

func (s MACDStrategy) Evaluate(bars []contracts.PriceHistory) Signal {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close.Float64
	}
	r := indicator.MACD(closes, s.Fast, s.Slow, s.Signal)
	return Signal{Buy: r.IsBuyPoint(), Sell: r.IsSellPoint()}
}

// KDJStrategy buys on an oversold golden cross and sells on an overbought death cross
type KDJStrategy struct {
	NDay   int `json:"n_day" validate:"gte=3,lte=12"`
	Scalar int `json:"scalar" validate:"gte=1,lte=8"`
}

// NewKDJStrategy returns a KDJ over nDay bars reading nDay*scalar days
func NewKDJStrategy(nDay, scalar int) KDJStrategy {
	return KDJStrategy{NDay: nDay, Scalar: scalar}
}

func (s KDJStrategy) Name() string { return "kdj" }

func (s KDJStrategy) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidRange, err)
	}
	return nil
}

func (s KDJStrategy) Lookback(period contracts.Period) int {
	return scaleDays(s.NDay*s.Scalar, period)
}

// Evaluate falls back to the close where a bar has no high or low
func (s KDJStrategy) Evaluate(bars []contracts.PriceHistory) Signal {
	high := make([]float64, len(bars))
	low := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close.Float64
		high[i] = b.High.ValueOrZero()
		if !b.High.Valid {
			high[i] = closes[i]
		}
		low[i] = b.Low.ValueOrZero()
		if !b.Low.Valid {
			low[i] = closes[i]
		}
	}
	r := indicator.KDJ(high, low, closes, s.NDay)
	return Signal{Buy: r.IsBuyPoint(), Sell: r.IsSellPoint()}
}

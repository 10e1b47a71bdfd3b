package backtest

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/pkg/config"
)

var validate = validator.New()

// Params configures one simulation
type Params struct {
	Principal int64 `json:"principal" validate:"gt=0"`
	// InitVolume is the first buy in lots (張)
	InitVolume int64     `json:"init_volume" validate:"gte=1"`
	Start      time.Time `json:"start" validate:"required"`
	End        time.Time `json:"end" validate:"required"`
	Weekly     bool      `json:"weekly"`
	Monthly    bool      `json:"monthly"`
	// ROILimit is the loss in percent at or below which a sell signal cuts half the position
	ROILimit float64 `json:"roi_limit"`
}

// DefaultParams returns the configured defaults over [start, end]
func DefaultParams(cfg config.SimulationConfig, start, end time.Time) Params {
	return Params{
		Principal:  cfg.Principal,
		InitVolume: int64(cfg.InitVolume),
		Start:      start,
		End:        end,
		ROILimit:   cfg.ROILimit,
	}
}

// Validate rejects bad amounts, a backwards window and weekly plus monthly
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidRange, err)
	}
	if p.Weekly && p.Monthly {
		return contracts.RangeError("weekly and monthly are exclusive")
	}
	if !p.Start.Before(p.End) {
		return contracts.RangeError("start %s is not before end %s", calendar.FormatDate(p.Start), calendar.FormatDate(p.End))
	}
	return nil
}

// Period returns the candlestick table the simulation reads
func (p Params) Period() contracts.Period {
	switch {
	case p.Weekly:
		return contracts.PeriodWeekly
	case p.Monthly:
		return contracts.PeriodMonthly
	default:
		return contracts.PeriodDaily
	}
}

// InitShares converts InitVolume to shares
func (p Params) InitShares() int64 {
	return p.InitVolume * Kilo
}

// RankParams configures a ranking over every alive stock
type RankParams struct {
	Params
	TopSize int `json:"top_size" validate:"gte=1"`
	// LimitPrice excludes stocks closing above it on the end date
	LimitPrice float64 `json:"limit_price" validate:"gt=0"`
}

// DefaultRankParams returns the configured ranking defaults over [start, end]
func DefaultRankParams(cfg config.SimulationConfig, start, end time.Time) RankParams {
	return RankParams{
		Params:     DefaultParams(cfg, start, end),
		TopSize:    cfg.TopSize,
		LimitPrice: cfg.LimitPrice,
	}
}

// Validate checks the ranking fields and the embedded Params
func (p RankParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidRange, err)
	}
	return p.Params.Validate()
}

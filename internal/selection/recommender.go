package selection

import (
	"context"
	"fmt"
	"time"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/fundamental"
	"github.com/stockprophet/backend/internal/indicator"
	"github.com/stockprophet/backend/pkg/config"
)

// R1 technical window
const (
	r1WindowDays = 45
	r1KDJCeiling = 40.0
)

// R1Thresholds are the fundamental bounds of RecommendR1
type R1Thresholds struct {
	// MaxPBR is the highest price-to-book ratio accepted
	MaxPBR float64 `json:"max_pbr" validate:"gt=0"`
	// MinOPM is the lowest operating margin in percent
	MinOPM float64 `json:"min_opm"`
	MinEPS float64 `json:"min_eps"`
	// MinLots is the lowest 5-day average volume in lots (張)
	MinLots float64 `json:"min_lots" validate:"gte=0"`
}

// DefaultR1Thresholds returns the configured thresholds
func DefaultR1Thresholds(cfg config.SelectionConfig) R1Thresholds {
	return R1Thresholds{
		MaxPBR:  cfg.R1MaxPBR,
		MinOPM:  cfg.R1MinOPM,
		MinEPS:  cfg.R1MinEPS,
		MinLots: cfg.R1MinLots,
	}
}

// Validate rejects a non-positive PBR bound or a negative volume floor
func (t R1Thresholds) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrInvalidRange, err)
	}
	return nil
}

// RecommendR1 returns the alive stocks of market passing the fundamental and
// technical gates on date. A zero date means the latest trading date.
// The picks carry no date dimension ID; saving assigns it.
// ⭐ SSOT: R1 추천 조건은 여기서만
func (s *Screener) RecommendR1(ctx context.Context, market contracts.Market, date time.Time, t R1Thresholds) ([]contracts.Recommendation, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = s.EvaluationDate()
	}
	date = calendar.Truncate(date)

	rows, err := s.scan(ctx, "r1", market, date, func(ctx context.Context, st contracts.Stock) (*Row, error) {
		bar, ok, err := s.passesBasic(ctx, st, date, t)
		if err != nil || !ok {
			return nil, err
		}
		ok, err = s.passesTech(ctx, st, date, t.MinLots)
		if err != nil || !ok {
			return nil, err
		}
		return &Row{StockID: st.ID, Code: st.Code, Name: st.Name, Date: date, Close: bar.Close.Float64}, nil
	})
	if err != nil {
		return nil, err
	}

	picks := make([]contracts.Recommendation, 0, len(rows))
	for _, r := range rows {
		picks = append(picks, contracts.Recommendation{StockID: r.StockID, Date: date, Code: r.Code, Name: r.Name, Price: r.Close})
	}
	return picks, nil
}

// passesBasic checks the close on date, the latest season's PBR, operating
// margin and EPS, and that last month's revenue plus 1% reaches the month before.
func (s *Screener) passesBasic(ctx context.Context, st contracts.Stock, date time.Time, t R1Thresholds) (contracts.PriceHistory, bool, error) {
	bar, ok, err := dailyClose(ctx, s.reader, st.ID, date)
	if err != nil || !ok {
		return bar, false, err
	}

	ratios, err := fundamental.SeasonRatios(ctx, s.reader, st, bar.Close.Float64, calendar.LatestSeasonDate(date))
	if err != nil {
		return bar, false, err
	}
	if !ratios.PBR.Valid || ratios.PBR.Float64 > t.MaxPBR {
		return bar, false, nil
	}
	if !ratios.OperatingMargin.Valid || ratios.OperatingMargin.Float64 < t.MinOPM {
		return bar, false, nil
	}
	if !ratios.EPS.Valid || ratios.EPS.Float64 < t.MinEPS {
		return bar, false, nil
	}

	monthStart, _ := calendar.MonthRange(date)
	revenues, err := s.reader.ListMonthlyRevenue(ctx, st.ID, contracts.HistoryFilter{
		To:    monthStart.AddDate(0, 0, -1),
		Desc:  true,
		Limit: 2,
	})
	if err != nil {
		return bar, false, fmt.Errorf("list monthly revenue: %w", err)
	}
	if len(revenues) != 2 {
		return bar, false, nil
	}
	last, prev := revenues[0].Revenue, revenues[1].Revenue
	return bar, last+last/100 >= prev, nil
}

// passesTech checks the 45-day window: MA5 >= MA10 on price and on volume,
// an average of at least minLots, and K, D at or below 40 with K >= D.
func (s *Screener) passesTech(ctx context.Context, st contracts.Stock, date time.Time, minLots float64) (bool, error) {
	bars, err := s.reader.ListPriceHistory(ctx, contracts.PeriodDaily, st.ID, contracts.HistoryFilter{
		From: date.AddDate(0, 0, -r1WindowDays),
		To:   date,
	})
	if err != nil {
		return false, err
	}

	high, low, closes := priceSeries(bars)
	var lots []float64
	for _, b := range bars {
		if hasClose(b) {
			lots = append(lots, float64(b.Volume.ValueOrZero()/1000))
		}
	}

	ma5, ma10 := indicator.SMA(closes, 5), indicator.SMA(closes, 10)
	if len(ma5) == 0 || len(ma10) == 0 || last(ma5) < last(ma10) {
		return false, nil
	}
	vol5, vol10 := indicator.SMA(lots, 5), indicator.SMA(lots, 10)
	if last(vol5) < last(vol10) || last(vol5) < minLots {
		return false, nil
	}

	kdj := indicator.KDJ(high, low, closes, indicator.DefaultKDJPeriod)
	if kdj.Len() == 0 {
		return false, nil
	}
	k, d := last(kdj.K), last(kdj.D)
	return k <= r1KDJCeiling && d <= r1KDJCeiling && k >= d, nil
}

func last(values []float64) float64 {
	return values[len(values)-1]
}

// SaveReport counts what SaveRecommendations stored
type SaveReport struct {
	Dates   int `json:"dates"`
	Picks   int `json:"picks"`
	Created int `json:"created"`
}

// SaveRecommendations runs RecommendR1 on every trading day of [from, to] and
// stores each pick once per stock and date
func (s *Screener) SaveRecommendations(ctx context.Context, repo *Repository, market contracts.Market, from, to time.Time, t R1Thresholds) (*SaveReport, error) {
	if from.After(to) {
		return nil, contracts.RangeError("from %s is after to %s", calendar.FormatDate(from), calendar.FormatDate(to))
	}

	report := &SaveReport{}
	for day := range calendar.DateRange(from, to) {
		if !s.holidays.IsTradingDay(day) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		picks, err := s.RecommendR1(ctx, market, day, t)
		if err != nil {
			return report, err
		}
		created, err := repo.SaveDay(ctx, day, picks)
		if err != nil {
			return report, err
		}
		report.Dates++
		report.Picks += len(picks)
		report.Created += created

		if created > 0 {
			s.logger.WithFields(map[string]interface{}{
				"date":    calendar.FormatDate(day),
				"picks":   len(picks),
				"created": created,
			}).Info("Recommendations saved")
		}
	}
	return report, nil
}

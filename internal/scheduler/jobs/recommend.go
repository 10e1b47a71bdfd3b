package jobs

import (
	"context"
	"fmt"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/selection"
	"github.com/stockprophet/backend/pkg/logger"
)

// HolidaySource fetches the exchange calendar
type HolidaySource interface {
	Holidays(ctx context.Context) (calendar.Holidays, error)
}

// RecommendJob stores the R1 picks of the latest trading day
type RecommendJob struct {
	holidays   HolidaySource
	store      contracts.Store
	clock      calendar.Clock
	schedule   string
	thresholds selection.R1Thresholds
	logger     *logger.Logger
}

// NewRecommendJob creates the recommendation job
func NewRecommendJob(holidays HolidaySource, s contracts.Store, clock calendar.Clock, schedule string, t selection.R1Thresholds, log *logger.Logger) *RecommendJob {
	return &RecommendJob{
		holidays:   holidays,
		store:      s,
		clock:      clock,
		schedule:   schedule,
		thresholds: t,
		logger:     log.WithField("job", "recommend"),
	}
}

// Name returns the job name
func (j *RecommendJob) Name() string {
	return "recommend"
}

// Schedule returns the cron schedule
func (j *RecommendJob) Schedule() string {
	return j.schedule
}

// Run screens both markets on the latest trading day
func (j *RecommendJob) Run(ctx context.Context) error {
	holidays, err := j.holidays.Holidays(ctx)
	if err != nil {
		return fmt.Errorf("fetch holidays: %w", err)
	}

	screener := selection.NewScreener(j.store, holidays, j.clock, j.logger)
	repo := selection.NewRepository(j.store)
	day := screener.EvaluationDate()

	for _, market := range crawlMarkets {
		report, err := screener.SaveRecommendations(ctx, repo, market, day, day, j.thresholds)
		if err != nil {
			return fmt.Errorf("save %s recommendations: %w", market, err)
		}
		j.logger.WithFields(map[string]interface{}{
			"market":  market,
			"date":    calendar.FormatDate(day),
			"picks":   report.Picks,
			"created": report.Created,
		}).Info("Recommendations refreshed")
	}
	return nil
}

package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/crawler"
	"github.com/stockprophet/backend/pkg/logger"
)

// Sources is what the crawl job fetches from. *crawler.Sources implements it.
type Sources interface {
	Snapshot(market contracts.Market) (crawler.SnapshotSource, error)
	Holidays(ctx context.Context) (calendar.Holidays, error)
	Reductions() crawler.MarketReductionSource
}

var crawlMarkets = []contracts.Market{contracts.MarketTSE, contracts.MarketOTC}

// CrawlJob refreshes both markets after the close
// ⭐ SSOT: 일일 크롤링 스케줄은 이 Job에서만
type CrawlJob struct {
	sources   Sources
	store     contracts.Store
	lock      sync.Locker
	clock     calendar.Clock
	schedule  string
	aggregate bool
	runner    *crawler.Runner
	logger    *logger.Logger
}

// NewCrawlJob creates the daily crawl job. With aggregate set, weekly and
// monthly candlesticks are rebuilt over the days the crawl touched.
func NewCrawlJob(sources Sources, s contracts.Store, lock sync.Locker, clock calendar.Clock, schedule string, aggregate bool, log *logger.Logger) *CrawlJob {
	return &CrawlJob{
		sources:   sources,
		store:     s,
		lock:      lock,
		clock:     clock,
		schedule:  schedule,
		aggregate: aggregate,
		runner:    crawler.NewRunner(log),
		logger:    log.WithField("job", "crawl"),
	}
}

// Name returns the job name
func (j *CrawlJob) Name() string {
	return "crawl"
}

// Schedule returns the cron schedule
func (j *CrawlJob) Schedule() string {
	return j.schedule
}

// Run crawls the listing and daily history of both markets concurrently, then
// aggregates the periods, then reconciles the capital reduction feed
func (j *CrawlJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled crawl")

	holidays, err := j.sources.Holidays(ctx)
	if err != nil {
		return fmt.Errorf("fetch holidays: %w", err)
	}

	// 1. daily history
	tasks := make([]crawler.Task, 0, len(crawlMarkets))
	for _, market := range crawlMarkets {
		task, err := j.marketTask(market, holidays, crawler.MarketOptions{})
		if err != nil {
			return err
		}
		tasks = append(tasks, task)
	}
	crawled := j.runner.Run(ctx, tasks...)
	if err := crawled.Err(); err != nil {
		return fmt.Errorf("crawl daily history: %w", err)
	}

	// 2. weekly and monthly
	if j.aggregate {
		tasks = tasks[:0]
		for _, o := range crawled.Outcomes {
			report, ok := o.Report.(*crawler.MarketReport)
			if !ok || report == nil {
				continue
			}
			opts := crawler.MarketOptions{
				Window:       crawler.Window{Start: report.Start, End: report.End},
				BuildPeriods: true,
			}
			task, err := j.marketTask(report.Market, holidays, opts)
			if err != nil {
				return err
			}
			tasks = append(tasks, task)
		}
		if err := j.runner.Run(ctx, tasks...).Err(); err != nil {
			return fmt.Errorf("aggregate history: %w", err)
		}
	}

	// 3. capital reductions
	reduction := crawler.NewReductionTask(j.sources.Reductions(), j.store, j.clock, j.logger)
	if err := j.runner.Run(ctx, reduction).Err(); err != nil {
		return fmt.Errorf("reconcile capital reductions: %w", err)
	}

	j.logger.Info("Scheduled crawl completed")
	return nil
}

func (j *CrawlJob) marketTask(market contracts.Market, holidays calendar.Holidays, opts crawler.MarketOptions) (*crawler.MarketTask, error) {
	src, err := j.sources.Snapshot(market)
	if err != nil {
		return nil, err
	}
	task, err := crawler.NewMarketTask(src, j.store, j.lock, holidays, j.clock, j.logger, opts)
	if err != nil {
		return nil, fmt.Errorf("create %s task: %w", market, err)
	}
	return task, nil
}

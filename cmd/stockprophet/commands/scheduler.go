package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/scheduler"
	"github.com/stockprophet/backend/internal/scheduler/jobs"
	"github.com/stockprophet/backend/internal/selection"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "정기 작업 스케줄러",
	Long: `크롤링과 추천 저장을 cron 으로 실행합니다 (Asia/Taipei 기준).

Jobs:
  crawl      - 일봉/減資 수집, 설정 시 주봉/월봉 집계 (CRAWL_SCHEDULE)
  recommend  - 최근 거래일 R1 추천 저장 (RECOMMEND_SCHEDULE)`,
}

var schedulerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "스케줄러 데몬 실행 (Ctrl+C 로 종료)",
	RunE:  runScheduler,
}

var schedulerOnceCmd = &cobra.Command{
	Use:       "once <job>",
	Short:     "작업 하나를 즉시 실행",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"crawl", "recommend"},
	RunE:      runSchedulerOnce,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerRunCmd, schedulerOnceCmd)
}

func buildJobs(a *app) []scheduler.Job {
	sc := a.cfg.Scheduler
	return []scheduler.Job{
		jobs.NewCrawlJob(a.sources, a.store, a.lock, a.clock, sc.CrawlSchedule, sc.AggregateAfterCrawl, a.log),
		jobs.NewRecommendJob(a.sources, a.store, a.clock, sc.RecommendSchedule, selection.DefaultR1Thresholds(a.cfg.Selection), a.log),
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	s := scheduler.New(a.log, scheduler.WithLocation(calendar.Taipei), scheduler.WithRetry(2, 5*time.Minute))
	for _, job := range buildJobs(a) {
		if err := s.AddJob(job); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fields := make([][2]string, 0, 2)
	for _, name := range s.GetAllJobs() {
		next, err := s.Next(name)
		if err != nil {
			return err
		}
		fields = append(fields, [2]string{name, "next " + next.Format(time.DateTime)})
	}
	PrintHeader(out, "Scheduler", fields)

	s.Start()
	<-ctx.Done()
	a.log.Info("Signal received, stopping scheduler")
	s.Stop()

	for name, st := range s.GetJobStats() {
		fmt.Fprintf(out, "   %s: %d runs, %.0f%% success\n", name, st.TotalRuns, st.SuccessRate*100)
	}
	return nil
}

func runSchedulerOnce(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, job := range buildJobs(a) {
		if job.Name() != args[0] {
			continue
		}
		started := time.Now()
		if err := job.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", job.Name(), err)
		}
		PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s completed in %s", job.Name(), time.Since(started).Round(time.Second)))
		return nil
	}
	return fmt.Errorf("unknown job %q", args[0])
}

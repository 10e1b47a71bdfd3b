package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stockprophet/backend/pkg/logger"
)

// Task is one independently running unit of crawl work
type Task interface {
	Name() string
	Execute(ctx context.Context) (interface{}, error)
}

// Execute runs the task for a Runner
func (t *MarketTask) Execute(ctx context.Context) (interface{}, error) {
	return t.Run(ctx)
}

// Execute runs the task for a Runner
func (t *FundamentalTask) Execute(ctx context.Context) (interface{}, error) {
	return t.Run(ctx)
}

// Execute runs the task for a Runner
func (t *ReductionTask) Execute(ctx context.Context) (interface{}, error) {
	return t.Run(ctx)
}

// Outcome is the result of one task in a run
type Outcome struct {
	Task     string        `json:"task"`
	Report   interface{}   `json:"report,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// RunResult collects the outcomes of one run, in task order
type RunResult struct {
	RunID    string    `json:"run_id"`
	Outcomes []Outcome `json:"outcomes"`
}

// Err joins the errors of every failed task
func (r *RunResult) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Task, o.Err))
		}
	}
	return errors.Join(errs...)
}

// Runner starts every task in its own goroutine and waits for all of them
// ⭐ SSOT: 크롤링 태스크 병렬 실행은 여기서만
type Runner struct {
	logger *logger.Logger
}

// NewRunner creates a runner
func NewRunner(log *logger.Logger) *Runner {
	return &Runner{logger: log.WithField("module", "runner")}
}

// Run executes the tasks concurrently. A failing task is logged and does not
// cancel its siblings; only ctx does.
func (r *Runner) Run(ctx context.Context, tasks ...Task) *RunResult {
	res := &RunResult{
		RunID:    uuid.NewString(),
		Outcomes: make([]Outcome, len(tasks)),
	}
	log := r.logger.WithRunID(res.RunID)
	log.WithField("tasks", len(tasks)).Info("Starting crawl run")

	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			started := time.Now()
			report, err := task.Execute(ctx)
			res.Outcomes[i] = Outcome{
				Task:     task.Name(),
				Report:   report,
				Err:      err,
				Duration: time.Since(started),
			}
			if err != nil {
				log.WithField("task", task.Name()).WithError(err).Error("Task failed")
				return nil
			}
			log.WithFields(map[string]interface{}{
				"task":     task.Name(),
				"duration": res.Outcomes[i].Duration,
			}).Info("Task finished")
			return nil
		})
	}
	_ = g.Wait()

	log.Info("Crawl run finished")
	return res
}

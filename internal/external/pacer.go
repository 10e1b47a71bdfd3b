// Package external holds what the remote data source clients share:
// request pacing, retry budgets and number parsing of exchange payloads.
package external

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/pkg/config"
	"github.com/stockprophet/backend/pkg/logger"
)

// Doer runs one unit of remote work under a pacing and retry policy
type Doer interface {
	Do(ctx context.Context, what string, fn func(context.Context) error) error
}

// Pacer sleeps a random interval before every request and retries a failed
// unit of work up to its budget. After a rate-limit marker the interval is
// drawn from the overrun range until the next success.
// ⭐ SSOT: 원격 호출 간격 정책은 여기서만
type Pacer struct {
	normal   config.SleepRange
	overrun  config.SleepRange
	attempts int
	logger   *logger.Logger

	mu      sync.Mutex
	widened bool
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer with the given ranges and retry budget
func NewPacer(normal, overrun config.SleepRange, attempts int, log *logger.Logger) *Pacer {
	if attempts < 1 {
		attempts = 1
	}
	return &Pacer{
		normal:   normal,
		overrun:  overrun,
		attempts: attempts,
		logger:   log.WithField("module", "pacer"),
		sleep:    sleepContext,
	}
}

// Attempts returns the retry budget
func (p *Pacer) Attempts() int {
	return p.attempts
}

// Widened reports whether the pacer currently uses the overrun range
func (p *Pacer) Widened() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.widened
}

// Do runs fn until it succeeds or the budget is spent, sleeping before each attempt.
// The last error is returned once the budget is exhausted.
func (p *Pacer) Do(ctx context.Context, what string, fn func(context.Context) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := p.sleep(ctx, p.next()); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		err := fn(ctx)
		switch {
		case err == nil:
			p.setWidened(false)
		case errors.Is(err, contracts.ErrRateLimited):
			p.setWidened(true)
			p.logger.WithFields(map[string]interface{}{
				"what":    what,
				"attempt": attempt,
			}).Warn("rate limited, slowing down")
		case ctx.Err() != nil:
			return struct{}{}, backoff.Permanent(err)
		default:
			p.logger.WithFields(map[string]interface{}{
				"what":    what,
				"attempt": attempt,
			}).WithError(err).Debug("attempt failed")
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(uint(p.attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	return err
}

func (p *Pacer) setWidened(v bool) {
	p.mu.Lock()
	p.widened = v
	p.mu.Unlock()
}

// next draws the sleep before the coming request
func (p *Pacer) next() time.Duration {
	r := p.normal
	if p.Widened() {
		r = p.overrun
	}
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rand.N(r.Max-r.Min+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package crawler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/guregu/null/v6"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/mathx"
	"github.com/stockprophet/backend/pkg/logger"
)

// MarketReductionSource is a reduction feed bound to one market
type MarketReductionSource interface {
	ReductionSource
	Market() contracts.Market
}

// ReductionReport is what a reduction task did in one run
type ReductionReport struct {
	Since   time.Time        `json:"since"`
	Until   time.Time        `json:"until"`
	Events  int              `json:"events"`
	Created int              `json:"created"`
	Skipped int              `json:"skipped"`
	Unknown int              `json:"unknown"`
	Losses  []contracts.Loss `json:"losses,omitempty"`
}

// ReductionTask appends new capital reduction events to the store
type ReductionTask struct {
	source MarketReductionSource
	store  contracts.Store
	clock  calendar.Clock
	logger *logger.Logger
}

// NewReductionTask creates a reduction task
func NewReductionTask(source MarketReductionSource, s contracts.Store, clock calendar.Clock, log *logger.Logger) *ReductionTask {
	return &ReductionTask{
		source: source,
		store:  s,
		clock:  clock,
		logger: log.WithFields(map[string]interface{}{"module": "crawler", "market": source.Market(), "task": "reduction"}),
	}
}

// Name identifies the task in logs
func (t *ReductionTask) Name() string {
	return "reduction"
}

// Run fetches the feed from the latest stored effective date until today.
// An event is stored unless its stock already has a reduction on the same or a
// later date, so the table never regresses.
func (t *ReductionTask) Run(ctx context.Context) (*ReductionReport, error) {
	since := FundamentalStart
	latest, err := t.store.ListCapitalReductions(ctx, 0, contracts.HistoryFilter{Desc: true, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("list capital reductions: %w", err)
	}
	if len(latest) > 0 {
		since = latest[0].EffectiveDate
	}
	report := &ReductionReport{Since: since, Until: calendar.Today(t.clock)}

	events, err := t.source.FetchCapitalReductionFeed(ctx, report.Since, report.Until)
	if err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Losses = []contracts.Loss{{Kind: contracts.LossReduction, Market: t.source.Market(), Date: report.Until, Reason: err.Error()}}
		t.logger.WithError(err).Warn("Failed to fetch the capital reduction feed")
		return report, nil
	}
	report.Events = len(events)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EffectiveDate.Before(events[j].EffectiveDate)
	})

	for _, ev := range events {
		st, ok, err := t.store.GetStock(ctx, t.source.Market(), ev.Code)
		if err != nil {
			return report, fmt.Errorf("get stock %s: %w", ev.Code, err)
		}
		if !ok {
			report.Unknown++
			t.logger.WithFields(map[string]interface{}{"code": ev.Code, "name": ev.Name}).Warn("Reduction of unknown stock")
			continue
		}

		newer, err := t.store.ListCapitalReductions(ctx, st.ID, contracts.HistoryFilter{From: ev.EffectiveDate, Limit: 1})
		if err != nil {
			return report, fmt.Errorf("list capital reductions of %s: %w", ev.Code, err)
		}
		if len(newer) > 0 {
			report.Skipped++
			continue
		}

		r := toReduction(st.ID, ev)
		if err := t.store.CreateCapitalReduction(ctx, &r); err != nil {
			return report, fmt.Errorf("create capital reduction of %s: %w", ev.Code, err)
		}
		report.Created++
		t.logger.WithFields(map[string]interface{}{
			"code": ev.Code,
			"date": calendar.FormatDate(ev.EffectiveDate),
		}).Info("Capital reduction recorded")
	}

	t.logger.WithFields(map[string]interface{}{
		"events":  report.Events,
		"created": report.Created,
		"skipped": report.Skipped,
		"unknown": report.Unknown,
	}).Info("Capital reductions reconciled")
	return report, nil
}

// toReduction fills the share ratio from the feed or, when absent, from the
// price change of a reduction without refund
func toReduction(stockID int64, ev contracts.ReductionEvent) contracts.CapitalReduction {
	r := contracts.CapitalReduction{
		StockID:              stockID,
		OldPrice:             ev.OldPrice,
		NewPrice:             ev.NewPrice,
		Reason:               ev.Reason,
		NewSharesPerThousand: ev.NewSharesPerThousand,
		RefundPerShare:       ev.RefundPerShare,
		StopTradeDate:        ev.StopTradeDate,
		EffectiveDate:        ev.EffectiveDate,
	}
	if !r.NewSharesPerThousand.Valid && ev.NewPrice > 0 && !ev.RefundPerShare.Valid {
		r.NewSharesPerThousand = null.FloatFrom(mathx.Round2(1000 * ev.OldPrice / ev.NewPrice))
	}
	return r
}

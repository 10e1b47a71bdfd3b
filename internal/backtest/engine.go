package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/mathx"
	"github.com/stockprophet/backend/pkg/logger"
)

// DefaultWorkers is how many stocks a ranking simulates at once
const DefaultWorkers = 4

// RankEntry is one stock of a ranking
type RankEntry struct {
	Rank        int     `json:"rank"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Principal   int64   `json:"principal"`
	TotalAssets int64   `json:"total_assets"`
	DiffPct     float64 `json:"diff_pct"`
}

// Label renders the stock as name(code)
func (e RankEntry) Label() string {
	return fmt.Sprintf("%s(%s)", e.Name, e.Code)
}

// RankResult is a finished ranking
type RankResult struct {
	Strategy  string      `json:"strategy"`
	Params    RankParams  `json:"params"`
	Evaluated int         `json:"evaluated"`
	Excluded  int         `json:"excluded"`
	Entries   []RankEntry `json:"entries"`
}

// Engine ranks every alive stock by the final assets of a simulation
// ⭐ SSOT: 전 종목 백테스팅 랭킹은 여기서만
type Engine struct {
	simulator *Simulator
	reader    Reader
	workers   int
	logger    *logger.Logger
}

// NewEngine creates a ranking engine on top of a simulator
func NewEngine(simulator *Simulator, workers int, log *logger.Logger) *Engine {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Engine{
		simulator: simulator,
		reader:    simulator.reader,
		workers:   workers,
		logger:    log.WithField("module", "backtest"),
	}
}

// Rank simulates every alive stock and keeps the TopSize with the highest
// final assets above the principal. Stocks closing above LimitPrice on the end
// date, or with a capital reduction strictly inside the window, are excluded.
func (e *Engine) Rank(ctx context.Context, strategy Strategy, p RankParams) (*RankResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := strategy.Validate(); err != nil {
		return nil, err
	}

	e.logger.WithFields(map[string]interface{}{
		"strategy":    strategy.Name(),
		"start":       calendar.FormatDate(p.Start),
		"end":         calendar.FormatDate(p.End),
		"principal":   p.Principal,
		"top_size":    p.TopSize,
		"limit_price": p.LimitPrice,
	}).Info("Starting ranking")

	alive := true
	stocks, err := e.reader.ListStocks(ctx, contracts.StockFilter{Alive: &alive})
	if err != nil {
		return nil, fmt.Errorf("list alive stocks: %w", err)
	}
	revived, err := e.reducedInside(ctx, p)
	if err != nil {
		return nil, err
	}

	res := &RankResult{Strategy: strategy.Name(), Params: p}
	var mu sync.Mutex
	var entries []RankEntry

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, st := range stocks {
		if _, ok := revived[st.ID]; ok {
			res.Excluded++
			continue
		}
		g.Go(func() error {
			entry, ok, err := e.evaluate(gctx, st, strategy, p)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			res.Evaluated++
			if ok {
				entries = append(entries, entry)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalAssets != entries[j].TotalAssets {
			return entries[i].TotalAssets > entries[j].TotalAssets
		}
		return entries[i].Code < entries[j].Code
	})
	if len(entries) > p.TopSize {
		entries = entries[:p.TopSize]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	res.Entries = entries

	e.logger.WithFields(map[string]interface{}{
		"evaluated": res.Evaluated,
		"excluded":  res.Excluded,
		"ranked":    len(res.Entries),
	}).Info("Ranking completed")
	return res, nil
}

// reducedInside returns the stocks with a capital reduction strictly between start and end
func (e *Engine) reducedInside(ctx context.Context, p RankParams) (map[int64]struct{}, error) {
	reductions, err := e.reader.ListCapitalReductions(ctx, 0, contracts.HistoryFilter{From: p.Start, To: p.End})
	if err != nil {
		return nil, fmt.Errorf("list capital reductions: %w", err)
	}
	out := make(map[int64]struct{})
	for _, r := range reductions {
		if r.EffectiveDate.After(p.Start) && r.EffectiveDate.Before(p.End) {
			out[r.StockID] = struct{}{}
		}
	}
	return out, nil
}

// evaluate runs one stock. ok is false when the stock is filtered out or
// does not end above the principal.
func (e *Engine) evaluate(ctx context.Context, st contracts.Stock, strategy Strategy, p RankParams) (RankEntry, bool, error) {
	latest, err := e.reader.ListPriceHistory(ctx, contracts.PeriodDaily, st.ID, contracts.HistoryFilter{To: p.End, Desc: true, Limit: 1})
	if err != nil {
		return RankEntry{}, false, fmt.Errorf("latest close of %s: %w", st.Code, err)
	}
	if len(latest) == 0 || !latest[0].Close.Valid || latest[0].Close.Float64 == 0 {
		return RankEntry{}, false, nil
	}
	price := latest[0].Close.Float64
	if price > p.LimitPrice {
		return RankEntry{}, false, nil
	}

	res, err := e.simulator.simulate(ctx, st, strategy, p.Params)
	if err != nil {
		return RankEntry{}, false, err
	}
	if len(res.Records) == 0 {
		return RankEntry{}, false, nil
	}
	total := res.Records[len(res.Records)-1].TotalAssets
	if total <= p.Principal {
		return RankEntry{}, false, nil
	}
	return RankEntry{
		Code:        st.Code,
		Name:        st.Name,
		Price:       price,
		Principal:   p.Principal,
		TotalAssets: total,
		DiffPct:     mathx.Round2(float64(total-p.Principal) * 100 / float64(p.Principal)),
	}, true, nil
}

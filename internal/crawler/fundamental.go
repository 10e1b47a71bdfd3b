package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/external/mops"
	"github.com/stockprophet/backend/internal/store"
	"github.com/stockprophet/backend/pkg/logger"
)

// StatementKind selects a seasonal statement
type StatementKind string

const (
	StatementIncome  StatementKind = "income"
	StatementBalance StatementKind = "balance"
)

// ParseStatementKind validates a statement kind
func ParseStatementKind(s string) (StatementKind, error) {
	switch StatementKind(s) {
	case StatementIncome, StatementBalance:
		return StatementKind(s), nil
	default:
		return "", fmt.Errorf("unknown statement kind %q", s)
	}
}

func (k StatementKind) watermark() contracts.WatermarkKind {
	if k == StatementBalance {
		return contracts.WatermarkBalance
	}
	return contracts.WatermarkIncome
}

func (k StatementKind) loss() contracts.LossKind {
	if k == StatementBalance {
		return contracts.LossBalanceSheet
	}
	return contracts.LossIncomeStatement
}

// StatementResult counts the work of one statement pass
type StatementResult struct {
	Kind    StatementKind `json:"kind"`
	Stocks  int           `json:"stocks"`
	Created int           `json:"created"`
	Skipped int           `json:"skipped"`
	Lost    int           `json:"lost"`
}

// RevenueResult counts the work of one monthly revenue pass
type RevenueResult struct {
	Months  int `json:"months"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Lost    int `json:"lost"`
}

// FundamentalReport is what a fundamental task did in one run
type FundamentalReport struct {
	Start   time.Time        `json:"start"`
	End     time.Time        `json:"end"`
	Balance *StatementResult `json:"balance,omitempty"`
	Income  *StatementResult `json:"income,omitempty"`
	Revenue *RevenueResult   `json:"revenue,omitempty"`
	Losses  []contracts.Loss `json:"losses,omitempty"`
}

// FundamentalOptions selects what a FundamentalTask builds
type FundamentalOptions struct {
	Window
	Income  bool
	Balance bool
	Revenue bool
}

// FundamentalTask crawls statements and monthly revenue of every market
// ⭐ SSOT: 재무제표/월매출 수집은 여기서만
type FundamentalTask struct {
	source StatementSource
	store  contracts.Store
	lock   sync.Locker
	logger *logger.Logger

	start    time.Time
	end      time.Time
	explicit bool
	opts     FundamentalOptions
	losses   *contracts.LossLog
}

// NewFundamentalTask creates a fundamental task. The window may not start before FundamentalStart.
func NewFundamentalTask(source StatementSource, s contracts.Store, lock sync.Locker, holidays calendar.Holidays, clock calendar.Clock, log *logger.Logger, opts FundamentalOptions) (*FundamentalTask, error) {
	start, end, err := opts.resolve(FundamentalStart, holidays, clock)
	if err != nil {
		return nil, err
	}
	return &FundamentalTask{
		source:   source,
		store:    s,
		lock:     lock,
		logger:   log.WithFields(map[string]interface{}{"module": "crawler", "market": "mops"}),
		start:    start,
		end:      end,
		explicit: !opts.Start.IsZero(),
		opts:     opts,
		losses:   &contracts.LossLog{},
	}, nil
}

// Name identifies the task in logs
func (t *FundamentalTask) Name() string {
	return "fundamental"
}

// Losses returns the units lost so far
func (t *FundamentalTask) Losses() []contracts.Loss {
	return t.losses.Losses()
}

// Run builds the selected tables in order: balance sheets, income statements, revenue
func (t *FundamentalTask) Run(ctx context.Context) (*FundamentalReport, error) {
	t.logger.Info("Starting fundamental task")
	report := &FundamentalReport{Start: t.start, End: t.end}
	if !t.opts.Balance && !t.opts.Income && !t.opts.Revenue {
		t.logger.Warn("No table selected")
		return report, nil
	}

	var err error
	if t.opts.Balance {
		if report.Balance, err = t.BuildBalanceSheets(ctx); err != nil {
			return report, err
		}
	}
	if t.opts.Income {
		if report.Income, err = t.BuildIncomeStatements(ctx); err != nil {
			return report, err
		}
	}
	if t.opts.Revenue {
		if report.Revenue, err = t.BuildMonthlyRevenue(ctx); err != nil {
			return report, err
		}
	}

	report.Losses = t.losses.Losses()
	if len(report.Losses) > 0 {
		t.logger.WithField("losses", lossStrings(report.Losses)).Warn("Missing statements, patch them with the patch command")
	}
	t.logger.Info("Finished fundamental task")
	return report, nil
}

// BuildBalanceSheets crawls every missing balance sheet
func (t *FundamentalTask) BuildBalanceSheets(ctx context.Context) (*StatementResult, error) {
	return t.buildStatements(ctx, StatementBalance)
}

// BuildIncomeStatements crawls every missing income statement
func (t *FundamentalTask) BuildIncomeStatements(ctx context.Context) (*StatementResult, error) {
	return t.buildStatements(ctx, StatementIncome)
}

// buildStatements walks the seasons of every alive non-ETF stock in ascending
// order. Seasons already stored are skipped. The first season that cannot be
// fetched is recorded as a loss and the stock is left for the next run.
func (t *FundamentalTask) buildStatements(ctx context.Context, kind StatementKind) (*StatementResult, error) {
	latest := calendar.LatestYearSeason(t.end)
	log := t.logger.WithField("kind", kind)
	log.WithField("latest", latest.String()).Info("Building statements")

	res := &StatementResult{Kind: kind}
	alive := true
	for _, market := range contracts.AllMarkets() {
		stocks, err := t.store.ListStocks(ctx, contracts.StockFilter{Market: market, Alive: &alive})
		if err != nil {
			return res, fmt.Errorf("list %s stocks: %w", market, err)
		}
		if len(stocks) == 0 {
			log.Warnf("No alive %s stocks, build the stock table first", market)
			continue
		}

		for _, st := range stocks {
			if st.Category == contracts.CategoryETF {
				continue
			}
			res.Stocks++

			m, err := store.GetOrCreateMetadata(ctx, t.lock, t.store, st.ID)
			if err != nil {
				return res, err
			}

			for ys := t.firstSeason(m, kind, !t.explicit); !ys.After(latest); ys = ys.Next() {
				if err := ctx.Err(); err != nil {
					return res, err
				}
				pd, err := store.GetOrCreatePeriodDate(ctx, t.lock, t.store, contracts.PeriodSeason, ys.Start())
				if err != nil {
					return res, err
				}
				exists, err := t.statementExists(ctx, kind, st.ID, pd.ID)
				if err != nil {
					return res, err
				}
				if exists {
					res.Skipped++
					continue
				}

				if err := t.fetchStatement(ctx, kind, st, ys, pd, false); err != nil {
					if ctx.Err() != nil || !isRemote(err) {
						return res, err
					}
					res.Lost++
					t.losses.Add(contracts.Loss{Kind: kind.loss(), Market: market, Code: st.Code, Year: ys.Year, Season: ys.Season, Reason: err.Error()})
					log.WithError(err).Warnf("%s(%s) has no statement for %s", st.Name, st.Code, ys)
					break
				}
				res.Created++

				if m.Extend(kind.watermark(), pd.Date) {
					if err := t.store.UpdateStockMetadata(ctx, m); err != nil {
						return res, fmt.Errorf("update metadata of %s: %w", st.Code, err)
					}
				}
				log.Infof("%s(%s) built statement of %s", st.Name, st.Code, ys)
			}
		}
	}

	log.WithFields(map[string]interface{}{
		"stocks":  res.Stocks,
		"created": res.Created,
		"skipped": res.Skipped,
		"lost":    res.Lost,
	}).Info("Statements built")
	return res, nil
}

// firstSeason is the season after the later of the stock's daily history start
// and FundamentalStart. When resuming, the statement watermark of kind moves it
// past the seasons already stored. An explicit window start later than that wins,
// and its own season is included.
func (t *FundamentalTask) firstSeason(m *contracts.StockMetadata, kind StatementKind, resume bool) calendar.YearSeason {
	from := FundamentalStart
	if created := m.DailyHistoryCreateDate; created.Valid && created.Time.After(from) {
		from = created.Time
	}
	if resume {
		if mark := m.Updated(kind.watermark()); mark.Valid && mark.Time.After(from) {
			from = mark.Time
		}
	}
	first := calendar.DateToYearSeason(from).Next()
	if t.explicit {
		if ys := calendar.DateToYearSeason(t.start); ys.After(first) {
			first = ys
		}
	}
	return first
}

func (t *FundamentalTask) statementExists(ctx context.Context, kind StatementKind, stockID, seasonDateID int64) (bool, error) {
	var ok bool
	var err error
	if kind == StatementBalance {
		_, ok, err = t.store.GetBalanceSheet(ctx, stockID, seasonDateID)
	} else {
		_, ok, err = t.store.GetIncomeStatement(ctx, stockID, seasonDateID)
	}
	if err != nil {
		return false, fmt.Errorf("get %s statement: %w", kind, err)
	}
	return ok, nil
}

// fetchStatement fetches one season and stores it. upsert overwrites an existing row.
func (t *FundamentalTask) fetchStatement(ctx context.Context, kind StatementKind, st contracts.Stock, ys calendar.YearSeason, pd *contracts.PeriodDate, upsert bool) error {
	step := mops.StepFor(st.Code, st.Category)

	if kind == StatementBalance {
		b, err := t.source.FetchBalanceSheet(ctx, st.Market, st.Code, ys.Year, ys.Season, step)
		if err != nil {
			return err
		}
		b.StockID, b.SeasonDateID, b.Date = st.ID, pd.ID, pd.Date
		if upsert {
			err = t.store.UpsertBalanceSheet(ctx, b)
		} else {
			err = t.store.CreateBalanceSheet(ctx, b)
		}
		if err != nil {
			return fmt.Errorf("store balance sheet of %s %s: %w", st.Code, ys, err)
		}
		return nil
	}

	s, err := t.source.FetchIncomeStatement(ctx, st.Market, st.Code, ys.Year, ys.Season, step)
	if err != nil {
		return err
	}
	s.StockID, s.SeasonDateID, s.Date = st.ID, pd.ID, pd.Date
	if upsert {
		err = t.store.UpsertIncomeStatement(ctx, s)
	} else {
		err = t.store.CreateIncomeStatement(ctx, s)
	}
	if err != nil {
		return fmt.Errorf("store income statement of %s %s: %w", st.Code, ys, err)
	}
	return nil
}

// PatchStatements re-fetches every season of one stock inside the task window,
// overwriting stored rows. Unlike the regular build a missing season does not
// stop the walk.
func (t *FundamentalTask) PatchStatements(ctx context.Context, code string, kind StatementKind) (*StatementResult, error) {
	log := t.logger.WithFields(map[string]interface{}{"kind": kind, "code": code})
	log.Info("Patching statements")

	st, ok, err := t.store.GetStockByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get stock %s: %w", code, err)
	}
	if !ok {
		return nil, fmt.Errorf("stock %s: %w", code, contracts.ErrNotFound)
	}
	res := &StatementResult{Kind: kind}
	if st.Category == contracts.CategoryETF {
		log.Warn("ETF has no statements")
		return res, nil
	}
	res.Stocks = 1

	m, err := store.GetOrCreateMetadata(ctx, t.lock, t.store, st.ID)
	if err != nil {
		return res, err
	}

	first := t.firstSeason(m, kind, false)
	latest := calendar.LatestYearSeason(t.end)
	for ys := first; !ys.After(latest); ys = ys.Next() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		pd, err := store.GetOrCreatePeriodDate(ctx, t.lock, t.store, contracts.PeriodSeason, ys.Start())
		if err != nil {
			return res, err
		}
		if err := t.fetchStatement(ctx, kind, *st, ys, pd, true); err != nil {
			if ctx.Err() != nil || !isRemote(err) {
				return res, err
			}
			res.Lost++
			t.losses.Add(contracts.Loss{Kind: kind.loss(), Market: st.Market, Code: st.Code, Year: ys.Year, Season: ys.Season, Reason: err.Error()})
			log.WithError(err).Warnf("No statement for %s", ys)
			continue
		}
		res.Created++
		if m.Extend(kind.watermark(), pd.Date) {
			if err := t.store.UpdateStockMetadata(ctx, m); err != nil {
				return res, fmt.Errorf("update metadata of %s: %w", st.Code, err)
			}
		}
	}

	log.WithFields(map[string]interface{}{
		"patched": res.Created,
		"lost":    res.Lost,
	}).Info("Statements patched")
	return res, nil
}

// BuildMonthlyRevenue fetches the revenue table of every month in the window
// per market. Rows already stored and codes not in the stock table are skipped.
func (t *FundamentalTask) BuildMonthlyRevenue(ctx context.Context) (*RevenueResult, error) {
	t.logger.Info("Building monthly revenue")

	res := &RevenueResult{}
	first, _ := calendar.MonthRange(t.start)
	for _, market := range contracts.AllMarkets() {
		for month := first; !month.After(t.end); month = month.AddDate(0, 1, 0) {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			pd, err := store.GetOrCreatePeriodDate(ctx, t.lock, t.store, contracts.PeriodMonthly, month)
			if err != nil {
				return res, err
			}

			revenue, err := t.source.FetchMonthlyRevenue(ctx, market, month.Year(), int(month.Month()))
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				res.Lost++
				t.losses.Add(contracts.Loss{Kind: contracts.LossMonthlyRevenue, Market: market, Date: month, Reason: err.Error()})
				t.logger.WithError(err).Warnf("No %s revenue for %s", market, month.Format("2006-01"))
				continue
			}
			res.Months++

			for code, value := range revenue {
				st, ok, err := t.store.GetStock(ctx, market, code)
				if err != nil {
					return res, fmt.Errorf("get stock %s: %w", code, err)
				}
				if !ok {
					continue
				}
				_, exists, err := t.store.GetMonthlyRevenue(ctx, st.ID, pd.ID)
				if err != nil {
					return res, fmt.Errorf("get monthly revenue of %s: %w", code, err)
				}
				if exists {
					res.Skipped++
					continue
				}
				if err := t.store.CreateMonthlyRevenue(ctx, &contracts.MonthlyRevenue{StockID: st.ID, MonthDateID: pd.ID, Date: pd.Date, Revenue: value}); err != nil {
					return res, fmt.Errorf("create monthly revenue of %s: %w", code, err)
				}
				res.Created++
			}
			t.logger.WithField("count", len(revenue)).Debugf("Built %s revenue of %s", market, month.Format("2006-01"))
		}
	}

	t.logger.WithFields(map[string]interface{}{
		"months":  res.Months,
		"created": res.Created,
		"skipped": res.Skipped,
		"lost":    res.Lost,
	}).Info("Monthly revenue built")
	return res, nil
}

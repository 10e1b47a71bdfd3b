// Package memstore is an in-memory contracts.Store for tests and dry runs.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/stockprophet/backend/internal/calendar"
	"github.com/stockprophet/backend/internal/contracts"
)

type dateKey struct {
	period contracts.Period
	date   time.Time
}

type priceKey struct {
	period  contracts.Period
	stockID int64
	dateID  int64
}

type pairKey struct {
	stockID int64
	dateID  int64
}

type watermarkKey struct {
	market contracts.Market
	kind   contracts.WatermarkKind
}

// Store keeps every table in maps guarded by one mutex
type Store struct {
	mu     sync.RWMutex
	nextID int64

	stocks     map[int64]contracts.Stock
	dates      map[int64]contracts.PeriodDate
	dateIndex  map[dateKey]int64
	prices     map[priceKey]contracts.PriceHistory
	balances   map[pairKey]contracts.BalanceSheet
	incomes    map[pairKey]contracts.IncomeStatement
	revenues   map[pairKey]contracts.MonthlyRevenue
	reductions map[int64]contracts.CapitalReduction
	metadata   map[int64]contracts.StockMetadata
	watermarks map[watermarkKey]time.Time
	recommends map[pairKey]contracts.Recommendation
}

var _ contracts.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		stocks:     make(map[int64]contracts.Stock),
		dates:      make(map[int64]contracts.PeriodDate),
		dateIndex:  make(map[dateKey]int64),
		prices:     make(map[priceKey]contracts.PriceHistory),
		balances:   make(map[pairKey]contracts.BalanceSheet),
		incomes:    make(map[pairKey]contracts.IncomeStatement),
		revenues:   make(map[pairKey]contracts.MonthlyRevenue),
		reductions: make(map[int64]contracts.CapitalReduction),
		metadata:   make(map[int64]contracts.StockMetadata),
		watermarks: make(map[watermarkKey]time.Time),
		recommends: make(map[pairKey]contracts.Recommendation),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) dateOf(id int64) time.Time {
	return s.dates[id].Date
}

// sortByDate orders rows by the date key and applies Desc and Limit
func sortByDate[T any](rows []T, f contracts.HistoryFilter, date func(T) time.Time) []T {
	slices.SortStableFunc(rows, func(a, b T) int {
		c := date(a).Compare(date(b))
		if f.Desc {
			return -c
		}
		return c
	})
	if f.Limit > 0 && len(rows) > f.Limit {
		rows = rows[:f.Limit]
	}
	return rows
}

// ---- stocks ----

func (s *Store) CreateStock(_ context.Context, st *contracts.Stock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.stocks {
		if existing.Code == st.Code && existing.Market == st.Market {
			return fmt.Errorf("stock %s/%s already exists", st.Market, st.Code)
		}
	}
	st.ID = s.id()
	s.stocks[st.ID] = *st
	return nil
}

func (s *Store) GetStock(_ context.Context, market contracts.Market, code string) (*contracts.Stock, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.stocks {
		if st.Code == code && st.Market == market {
			return &st, true, nil
		}
	}
	return nil, false, nil
}

func (s *Store) GetStockByCode(_ context.Context, code string) (*contracts.Stock, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *contracts.Stock
	for _, st := range s.stocks {
		if st.Code != code {
			continue
		}
		if found == nil || st.ID < found.ID {
			found = &st
		}
	}
	return found, found != nil, nil
}

func (s *Store) ListStocks(_ context.Context, f contracts.StockFilter) ([]contracts.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.Stock
	for _, st := range s.stocks {
		if f.Matches(st) {
			out = append(out, st)
		}
	}
	slices.SortFunc(out, func(a, b contracts.Stock) int {
		if a.Code == b.Code {
			return int(a.ID - b.ID)
		}
		if a.Code < b.Code {
			return -1
		}
		return 1
	})
	return out, nil
}

func (s *Store) UpdateStockAlive(_ context.Context, id int64, alive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stocks[id]
	if !ok {
		return fmt.Errorf("stock %d: %w", id, contracts.ErrNotFound)
	}
	st.IsAlive = alive
	s.stocks[id] = st
	return nil
}

func (s *Store) UpdateStock(_ context.Context, st *contracts.Stock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.stocks[st.ID]
	if !ok {
		return fmt.Errorf("stock %d: %w", st.ID, contracts.ErrNotFound)
	}
	cur.Name = st.Name
	cur.Category = st.Category
	cur.IsAlive = st.IsAlive
	s.stocks[st.ID] = cur
	return nil
}

func (s *Store) DeleteStock(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stocks[id]; !ok {
		return fmt.Errorf("stock %d: %w", id, contracts.ErrNotFound)
	}
	delete(s.stocks, id)
	return nil
}

// ---- period dates ----

func (s *Store) GetPeriodDate(_ context.Context, period contracts.Period, date time.Time) (*contracts.PeriodDate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.dateIndex[dateKey{period, calendar.Truncate(date)}]
	if !ok {
		return nil, false, nil
	}
	pd := s.dates[id]
	return &pd, true, nil
}

func (s *Store) CreatePeriodDate(_ context.Context, period contracts.Period, date time.Time) (*contracts.PeriodDate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	date = calendar.Truncate(date)
	key := dateKey{period, date}
	if _, ok := s.dateIndex[key]; ok {
		return nil, fmt.Errorf("%s date %s already exists", period, date.Format("2006-01-02"))
	}
	pd := contracts.PeriodDate{ID: s.id(), Period: period, Date: date}
	s.dates[pd.ID] = pd
	s.dateIndex[key] = pd.ID
	return &pd, nil
}

func (s *Store) ListPeriodDates(_ context.Context, period contracts.Period, f contracts.HistoryFilter) ([]contracts.PeriodDate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.PeriodDate
	for _, pd := range s.dates {
		if pd.Period == period && f.Contains(pd.Date) {
			out = append(out, pd)
		}
	}
	return sortByDate(out, f, func(pd contracts.PeriodDate) time.Time { return pd.Date }), nil
}

// ---- price history ----

func (s *Store) InsertPriceHistory(_ context.Context, period contracts.Period, rows []contracts.PriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		if _, ok := s.stocks[row.StockID]; !ok {
			return fmt.Errorf("stock %d: %w", row.StockID, contracts.ErrMissingDimension)
		}
		if _, ok := s.dates[row.DateID]; !ok {
			return fmt.Errorf("date %d: %w", row.DateID, contracts.ErrMissingDimension)
		}
		key := priceKey{period, row.StockID, row.DateID}
		if _, ok := s.prices[key]; ok {
			continue
		}
		row.ID = s.id()
		row.Date = s.dateOf(row.DateID)
		s.prices[key] = row
	}
	return nil
}

func (s *Store) GetPriceHistory(_ context.Context, period contracts.Period, stockID, dateID int64) (*contracts.PriceHistory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.prices[priceKey{period, stockID, dateID}]
	if !ok {
		return nil, false, nil
	}
	return &row, true, nil
}

func (s *Store) ListPriceHistory(_ context.Context, period contracts.Period, stockID int64, f contracts.HistoryFilter) ([]contracts.PriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.PriceHistory
	for key, row := range s.prices {
		if key.period == period && key.stockID == stockID && f.Contains(row.Date) {
			out = append(out, row)
		}
	}
	return sortByDate(out, f, func(r contracts.PriceHistory) time.Time { return r.Date }), nil
}

func (s *Store) ListPriceHistoryByDate(_ context.Context, period contracts.Period, date time.Time) ([]contracts.PriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.PriceHistory
	for key, row := range s.prices {
		if key.period == period && row.Date.Equal(date) {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, func(a, b contracts.PriceHistory) int { return int(a.StockID - b.StockID) })
	return out, nil
}

func (s *Store) UpdatePriceHistory(_ context.Context, period contracts.Period, row contracts.PriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, existing := range s.prices {
		if key.period == period && existing.ID == row.ID {
			row.StockID, row.DateID, row.Date = existing.StockID, existing.DateID, existing.Date
			s.prices[key] = row
			return nil
		}
	}
	return fmt.Errorf("%s price history %d: %w", period, row.ID, contracts.ErrNotFound)
}

func (s *Store) DeletePriceHistory(_ context.Context, period contracts.Period, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, existing := range s.prices {
		if key.period == period && existing.ID == id {
			delete(s.prices, key)
			return nil
		}
	}
	return fmt.Errorf("%s price history %d: %w", period, id, contracts.ErrNotFound)
}

// ---- statements ----

func (s *Store) CreateBalanceSheet(_ context.Context, b *contracts.BalanceSheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{b.StockID, b.SeasonDateID}
	if _, ok := s.balances[key]; ok {
		return fmt.Errorf("balance sheet %d/%d already exists", b.StockID, b.SeasonDateID)
	}
	b.ID = s.id()
	b.Date = s.dateOf(b.SeasonDateID)
	s.balances[key] = *b
	return nil
}

func (s *Store) GetBalanceSheet(_ context.Context, stockID, seasonDateID int64) (*contracts.BalanceSheet, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[pairKey{stockID, seasonDateID}]
	if !ok {
		return nil, false, nil
	}
	return &b, true, nil
}

func (s *Store) ListBalanceSheets(_ context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.BalanceSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.BalanceSheet
	for key, b := range s.balances {
		if key.stockID == stockID && f.Contains(b.Date) {
			out = append(out, b)
		}
	}
	return sortByDate(out, f, func(b contracts.BalanceSheet) time.Time { return b.Date }), nil
}

func (s *Store) UpsertBalanceSheet(_ context.Context, b *contracts.BalanceSheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{b.StockID, b.SeasonDateID}
	if existing, ok := s.balances[key]; ok {
		b.ID = existing.ID
	} else {
		b.ID = s.id()
	}
	b.Date = s.dateOf(b.SeasonDateID)
	s.balances[key] = *b
	return nil
}

func (s *Store) CreateIncomeStatement(_ context.Context, st *contracts.IncomeStatement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{st.StockID, st.SeasonDateID}
	if _, ok := s.incomes[key]; ok {
		return fmt.Errorf("income statement %d/%d already exists", st.StockID, st.SeasonDateID)
	}
	st.ID = s.id()
	st.Date = s.dateOf(st.SeasonDateID)
	s.incomes[key] = *st
	return nil
}

func (s *Store) GetIncomeStatement(_ context.Context, stockID, seasonDateID int64) (*contracts.IncomeStatement, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.incomes[pairKey{stockID, seasonDateID}]
	if !ok {
		return nil, false, nil
	}
	return &st, true, nil
}

func (s *Store) ListIncomeStatements(_ context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.IncomeStatement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.IncomeStatement
	for key, st := range s.incomes {
		if key.stockID == stockID && f.Contains(st.Date) {
			out = append(out, st)
		}
	}
	return sortByDate(out, f, func(st contracts.IncomeStatement) time.Time { return st.Date }), nil
}

func (s *Store) UpsertIncomeStatement(_ context.Context, st *contracts.IncomeStatement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{st.StockID, st.SeasonDateID}
	if existing, ok := s.incomes[key]; ok {
		st.ID = existing.ID
	} else {
		st.ID = s.id()
	}
	st.Date = s.dateOf(st.SeasonDateID)
	s.incomes[key] = *st
	return nil
}

func (s *Store) CreateMonthlyRevenue(_ context.Context, r *contracts.MonthlyRevenue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{r.StockID, r.MonthDateID}
	if _, ok := s.revenues[key]; ok {
		return fmt.Errorf("monthly revenue %d/%d already exists", r.StockID, r.MonthDateID)
	}
	r.ID = s.id()
	r.Date = s.dateOf(r.MonthDateID)
	s.revenues[key] = *r
	return nil
}

func (s *Store) GetMonthlyRevenue(_ context.Context, stockID, monthDateID int64) (*contracts.MonthlyRevenue, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.revenues[pairKey{stockID, monthDateID}]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}

func (s *Store) ListMonthlyRevenue(_ context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.MonthlyRevenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.MonthlyRevenue
	for key, r := range s.revenues {
		if key.stockID == stockID && f.Contains(r.Date) {
			out = append(out, r)
		}
	}
	return sortByDate(out, f, func(r contracts.MonthlyRevenue) time.Time { return r.Date }), nil
}

// ---- capital reductions ----

func (s *Store) CreateCapitalReduction(_ context.Context, r *contracts.CapitalReduction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.reductions {
		if existing.StockID == r.StockID && existing.EffectiveDate.Equal(r.EffectiveDate) {
			return fmt.Errorf("capital reduction %d on %s already exists", r.StockID, r.EffectiveDate.Format("2006-01-02"))
		}
	}
	r.ID = s.id()
	s.reductions[r.ID] = *r
	return nil
}

func (s *Store) ListCapitalReductions(_ context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.CapitalReduction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.CapitalReduction
	for _, r := range s.reductions {
		if (stockID == 0 || r.StockID == stockID) && f.Contains(r.EffectiveDate) {
			out = append(out, r)
		}
	}
	return sortByDate(out, f, func(r contracts.CapitalReduction) time.Time { return r.EffectiveDate }), nil
}

// ---- metadata ----

func (s *Store) GetStockMetadata(_ context.Context, stockID int64) (*contracts.StockMetadata, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.metadata[stockID]
	if !ok {
		return nil, false, nil
	}
	return &m, true, nil
}

func (s *Store) CreateStockMetadata(_ context.Context, m *contracts.StockMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.metadata[m.StockID]; ok {
		return fmt.Errorf("metadata for stock %d already exists", m.StockID)
	}
	m.ID = s.id()
	s.metadata[m.StockID] = *m
	return nil
}

func (s *Store) UpdateStockMetadata(_ context.Context, m *contracts.StockMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.metadata[m.StockID]; !ok {
		return fmt.Errorf("metadata for stock %d: %w", m.StockID, contracts.ErrNotFound)
	}
	s.metadata[m.StockID] = *m
	return nil
}

func (s *Store) GetWatermark(_ context.Context, market contracts.Market, kind contracts.WatermarkKind) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.watermarks[watermarkKey{market, kind}]
	return d, ok, nil
}

func (s *Store) AdvanceWatermark(_ context.Context, market contracts.Market, kind contracts.WatermarkKind, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := watermarkKey{market, kind}
	if cur, ok := s.watermarks[key]; ok && !date.After(cur) {
		return nil
	}
	s.watermarks[key] = date
	return nil
}

// ---- recommendations ----

func (s *Store) CreateRecommendation(_ context.Context, r *contracts.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{r.StockID, r.DailyDateID}
	if _, ok := s.recommends[key]; ok {
		return fmt.Errorf("recommendation %d/%d already exists", r.StockID, r.DailyDateID)
	}
	st, ok := s.stocks[r.StockID]
	if !ok {
		return fmt.Errorf("stock %d: %w", r.StockID, contracts.ErrMissingDimension)
	}
	r.ID = s.id()
	r.Date = s.dateOf(r.DailyDateID)
	r.Code, r.Name = st.Code, st.Name
	s.recommends[key] = *r
	return nil
}

func (s *Store) GetRecommendation(_ context.Context, stockID, dailyDateID int64) (*contracts.Recommendation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recommends[pairKey{stockID, dailyDateID}]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}

func (s *Store) ListRecommendations(_ context.Context, f contracts.HistoryFilter) ([]contracts.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.Recommendation
	for _, r := range s.recommends {
		if f.Contains(r.Date) {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b contracts.Recommendation) int {
		if a.Code < b.Code {
			return -1
		}
		if a.Code > b.Code {
			return 1
		}
		return 0
	})
	return sortByDate(out, f, func(r contracts.Recommendation) time.Time { return r.Date }), nil
}

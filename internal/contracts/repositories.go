package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만
//
// Get* lookups return (row, found, err). A missing row is not an error;
// only transport or integrity failures are.

// HistoryFilter restricts a date-keyed list. Zero From/To are open bounds, both inclusive.
type HistoryFilter struct {
	From  time.Time
	To    time.Time
	Desc  bool
	Limit int
}

// Contains reports whether d falls inside the filter bounds
func (f HistoryFilter) Contains(d time.Time) bool {
	if !f.From.IsZero() && d.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && d.After(f.To) {
		return false
	}
	return true
}

// StockFilter restricts ListStocks. Zero fields match everything.
type StockFilter struct {
	Market   Market
	Alive    *bool
	Category string
}

// Matches reports whether s passes the filter
func (f StockFilter) Matches(s Stock) bool {
	if f.Market != "" && s.Market != f.Market {
		return false
	}
	if f.Alive != nil && s.IsAlive != *f.Alive {
		return false
	}
	if f.Category != "" && s.Category != f.Category {
		return false
	}
	return true
}

// StockRepository manages the listing table
type StockRepository interface {
	CreateStock(ctx context.Context, s *Stock) error
	GetStock(ctx context.Context, market Market, code string) (*Stock, bool, error)
	GetStockByCode(ctx context.Context, code string) (*Stock, bool, error)
	ListStocks(ctx context.Context, f StockFilter) ([]Stock, error)
	UpdateStockAlive(ctx context.Context, id int64, alive bool) error
	UpdateStock(ctx context.Context, s *Stock) error
	DeleteStock(ctx context.Context, id int64) error
}

// PeriodDateRepository manages the date dimensions
type PeriodDateRepository interface {
	GetPeriodDate(ctx context.Context, period Period, date time.Time) (*PeriodDate, bool, error)
	CreatePeriodDate(ctx context.Context, period Period, date time.Time) (*PeriodDate, error)
	ListPeriodDates(ctx context.Context, period Period, f HistoryFilter) ([]PeriodDate, error)
}

// PriceHistoryRepository manages daily, weekly and monthly candlesticks
type PriceHistoryRepository interface {
	// InsertPriceHistory bulk-creates rows. Rows whose (stock, date) already exists are skipped.
	InsertPriceHistory(ctx context.Context, period Period, rows []PriceHistory) error
	GetPriceHistory(ctx context.Context, period Period, stockID, dateID int64) (*PriceHistory, bool, error)
	ListPriceHistory(ctx context.Context, period Period, stockID int64, f HistoryFilter) ([]PriceHistory, error)
	ListPriceHistoryByDate(ctx context.Context, period Period, date time.Time) ([]PriceHistory, error)
	UpdatePriceHistory(ctx context.Context, period Period, row PriceHistory) error
	DeletePriceHistory(ctx context.Context, period Period, id int64) error
}

// StatementRepository manages balance sheets, income statements and monthly revenue
type StatementRepository interface {
	CreateBalanceSheet(ctx context.Context, b *BalanceSheet) error
	GetBalanceSheet(ctx context.Context, stockID, seasonDateID int64) (*BalanceSheet, bool, error)
	ListBalanceSheets(ctx context.Context, stockID int64, f HistoryFilter) ([]BalanceSheet, error)
	// UpsertBalanceSheet overwrites the row of (stock, season) or creates it
	UpsertBalanceSheet(ctx context.Context, b *BalanceSheet) error

	CreateIncomeStatement(ctx context.Context, s *IncomeStatement) error
	GetIncomeStatement(ctx context.Context, stockID, seasonDateID int64) (*IncomeStatement, bool, error)
	ListIncomeStatements(ctx context.Context, stockID int64, f HistoryFilter) ([]IncomeStatement, error)
	UpsertIncomeStatement(ctx context.Context, s *IncomeStatement) error

	CreateMonthlyRevenue(ctx context.Context, r *MonthlyRevenue) error
	GetMonthlyRevenue(ctx context.Context, stockID, monthDateID int64) (*MonthlyRevenue, bool, error)
	ListMonthlyRevenue(ctx context.Context, stockID int64, f HistoryFilter) ([]MonthlyRevenue, error)
}

// ReductionRepository manages capital reduction events
type ReductionRepository interface {
	CreateCapitalReduction(ctx context.Context, r *CapitalReduction) error
	// ListCapitalReductions filters on the effective date. stockID 0 lists every stock.
	ListCapitalReductions(ctx context.Context, stockID int64, f HistoryFilter) ([]CapitalReduction, error)
}

// MetadataRepository manages crawl watermarks
type MetadataRepository interface {
	GetStockMetadata(ctx context.Context, stockID int64) (*StockMetadata, bool, error)
	CreateStockMetadata(ctx context.Context, m *StockMetadata) error
	UpdateStockMetadata(ctx context.Context, m *StockMetadata) error

	GetWatermark(ctx context.Context, market Market, kind WatermarkKind) (time.Time, bool, error)
	// AdvanceWatermark moves the per-market watermark forward; an older date is ignored.
	AdvanceWatermark(ctx context.Context, market Market, kind WatermarkKind, date time.Time) error
}

// RecommendationRepository manages persisted screening hits
type RecommendationRepository interface {
	CreateRecommendation(ctx context.Context, r *Recommendation) error
	GetRecommendation(ctx context.Context, stockID, dailyDateID int64) (*Recommendation, bool, error)
	ListRecommendations(ctx context.Context, f HistoryFilter) ([]Recommendation, error)
}

// Store is the full table store every task receives
type Store interface {
	StockRepository
	PeriodDateRepository
	PriceHistoryRepository
	StatementRepository
	ReductionRepository
	MetadataRepository
	RecommendationRepository
}

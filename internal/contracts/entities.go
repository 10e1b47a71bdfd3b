package contracts

import (
	"time"

	"github.com/guregu/null/v6"
)

// Stock is one listed security, unique per (Code, Market).
// Rows are never deleted by reconciliation; only IsAlive flips.
type Stock struct {
	ID       int64  `json:"id" db:"id"`
	Code     string `json:"code" db:"code"`
	Name     string `json:"name" db:"name"`
	Market   Market `json:"market" db:"market"`
	Category string `json:"category" db:"category"`
	IsAlive  bool   `json:"is_alive" db:"is_alive"`
}

// PeriodDate is a date dimension row for one bucket of a period
type PeriodDate struct {
	ID     int64     `json:"id" db:"id"`
	Period Period    `json:"period" db:"period"`
	Date   time.Time `json:"date" db:"date"`
}

// PriceHistory is one candlestick. Daily rows are crawled; weekly and
// monthly rows are derived by aggregation and keyed by the bucket start date.
type PriceHistory struct {
	ID      int64     `json:"id" db:"id"`
	StockID int64     `json:"stock_id" db:"stock_id"`
	DateID  int64     `json:"date_id" db:"date_id"`
	Date    time.Time `json:"date" db:"date"`

	Open   null.Float `json:"open" db:"open"`
	High   null.Float `json:"high" db:"high"`
	Low    null.Float `json:"low" db:"low"`
	Close  null.Float `json:"close" db:"close"`
	Volume null.Int   `json:"volume" db:"volume"` // shares
	Value  null.Int   `json:"value" db:"value"`   // NTD
	Change null.Float `json:"change" db:"change"`
}

// BalanceSheet is one season of balance sheet figures in thousands of NTD
type BalanceSheet struct {
	ID           int64     `json:"id" db:"id"`
	StockID      int64     `json:"stock_id" db:"stock_id"`
	SeasonDateID int64     `json:"season_date_id" db:"season_date_id"`
	Date         time.Time `json:"date" db:"date"`

	IntangibleAssets      null.Int `json:"intangible_assets" db:"intangible_assets"`
	TotalAssets           null.Int `json:"total_assets" db:"total_assets"`
	TotalLiabs            null.Int `json:"total_liabs" db:"total_liabs"`
	ShortTermBorrowing    null.Int `json:"short_term_borrowing" db:"short_term_borrowing"`
	TotalCurrentAssets    null.Int `json:"total_current_assets" db:"total_current_assets"`
	TotalNonCurrentAssets null.Int `json:"total_non_current_assets" db:"total_non_current_assets"`
	TotalCurrentLiabs     null.Int `json:"total_current_liabs" db:"total_current_liabs"`
	TotalNonCurrentLiabs  null.Int `json:"total_non_current_liabs" db:"total_non_current_liabs"`
	AccruedPayable        null.Int `json:"accrued_payable" db:"accrued_payable"`
	OtherPayable          null.Int `json:"other_payable" db:"other_payable"`
	CapitalReserve        null.Int `json:"capital_reserve" db:"capital_reserve"`
	CommonStocks          null.Int `json:"common_stocks" db:"common_stocks"`
	TotalStocks           null.Int `json:"total_stocks" db:"total_stocks"`
	Inventories           null.Int `json:"inventories" db:"inventories"`
	Prepaid               null.Int `json:"prepaid" db:"prepaid"`
	ShareholdersNetIncome null.Int `json:"shareholders_net_income" db:"shareholders_net_income"`
}

// IncomeStatement is one season of income statement figures in thousands of NTD
type IncomeStatement struct {
	ID           int64     `json:"id" db:"id"`
	StockID      int64     `json:"stock_id" db:"stock_id"`
	SeasonDateID int64     `json:"season_date_id" db:"season_date_id"`
	Date         time.Time `json:"date" db:"date"`

	NetSales                 null.Int   `json:"net_sales" db:"net_sales"`
	CostOfGoodsSold          null.Int   `json:"cost_of_goods_sold" db:"cost_of_goods_sold"`
	GrossProfit              null.Int   `json:"gross_profit" db:"gross_profit"`
	OperatingExpenses        null.Int   `json:"operating_expenses" db:"operating_expenses"`
	OperatingIncome          null.Int   `json:"operating_income" db:"operating_income"`
	TotalNonOpIncomeExpenses null.Int   `json:"total_non_op_income_expenses" db:"total_non_op_income_expenses"`
	PreTaxIncome             null.Int   `json:"pre_tax_income" db:"pre_tax_income"`
	IncomeTaxExpense         null.Int   `json:"income_tax_expense" db:"income_tax_expense"`
	NetIncome                null.Int   `json:"net_income" db:"net_income"`
	OtherComprehensiveIncome null.Int   `json:"other_comprehensive_income" db:"other_comprehensive_income"`
	ConsolidatedNetIncome    null.Int   `json:"consolidated_net_income" db:"consolidated_net_income"`
	EPS                      null.Float `json:"eps" db:"eps"`
}

// MonthlyRevenue is one month of reported revenue in thousands of NTD
type MonthlyRevenue struct {
	ID          int64     `json:"id" db:"id"`
	StockID     int64     `json:"stock_id" db:"stock_id"`
	MonthDateID int64     `json:"month_date_id" db:"month_date_id"`
	Date        time.Time `json:"date" db:"date"`
	Revenue     int64     `json:"revenue" db:"revenue"`
	Note        string    `json:"note" db:"note"`
}

// CapitalReduction is one capital reduction event.
// After the event a holder keeps NewSharesPerThousand shares per 1000 and is refunded RefundPerShare.
type CapitalReduction struct {
	ID                   int64      `json:"id" db:"id"`
	StockID              int64      `json:"stock_id" db:"stock_id"`
	OldPrice             float64    `json:"old_price" db:"old_price"`
	NewPrice             float64    `json:"new_price" db:"new_price"`
	Reason               string     `json:"reason" db:"reason"`
	NewSharesPerThousand null.Float `json:"new_shares_per_thousand" db:"new_shares_per_thousand"`
	RefundPerShare       null.Float `json:"refund_per_share" db:"refund_per_share"`
	StopTradeDate        null.Time  `json:"stop_trade_date" db:"stop_trade_date"`
	EffectiveDate        time.Time  `json:"effective_date" db:"effective_date"`
}

// StockMetadata is the per-stock crawl watermark.
// For every kind, create date <= update date and update dates only move forward.
type StockMetadata struct {
	ID      int64 `json:"id" db:"id"`
	StockID int64 `json:"stock_id" db:"stock_id"`

	DailyHistoryCreateDate    null.Time `json:"daily_history_create_date" db:"daily_history_create_date"`
	DailyHistoryUpdateDate    null.Time `json:"daily_history_update_date" db:"daily_history_update_date"`
	WeeklyHistoryCreateDate   null.Time `json:"weekly_history_create_date" db:"weekly_history_create_date"`
	WeeklyHistoryUpdateDate   null.Time `json:"weekly_history_update_date" db:"weekly_history_update_date"`
	MonthlyHistoryCreateDate  null.Time `json:"monthly_history_create_date" db:"monthly_history_create_date"`
	MonthlyHistoryUpdateDate  null.Time `json:"monthly_history_update_date" db:"monthly_history_update_date"`
	IncomeStatementCreateDate null.Time `json:"income_statement_create_date" db:"income_statement_create_date"`
	IncomeStatementUpdateDate null.Time `json:"income_statement_update_date" db:"income_statement_update_date"`
	BalanceSheetCreateDate    null.Time `json:"balance_sheet_create_date" db:"balance_sheet_create_date"`
	BalanceSheetUpdateDate    null.Time `json:"balance_sheet_update_date" db:"balance_sheet_update_date"`
}

// WatermarkKind names a per-stock or per-market progress column
type WatermarkKind string

const (
	WatermarkDailyHistory   WatermarkKind = "daily_history"
	WatermarkWeeklyHistory  WatermarkKind = "weekly_history"
	WatermarkMonthlyHistory WatermarkKind = "monthly_history"
	WatermarkIncome         WatermarkKind = "income_statement"
	WatermarkBalance        WatermarkKind = "balance_sheet"
)

// Advance moves the create/update pair of kind forward to d.
// The create date is set once; an older d never rewinds the update date.
// Returns false when nothing changed.
func (m *StockMetadata) Advance(kind WatermarkKind, d time.Time) bool {
	create, update := m.fields(kind)
	if create == nil {
		return false
	}
	changed := false
	if !create.Valid {
		*create = null.TimeFrom(d)
		changed = true
	}
	if !update.Valid || d.After(update.Time) {
		*update = null.TimeFrom(d)
		changed = true
	}
	return changed
}

// Extend widens the create/update pair of kind so it covers d. Unlike
// Advance it may move the create date back, which a backfill needs.
func (m *StockMetadata) Extend(kind WatermarkKind, d time.Time) bool {
	create, _ := m.fields(kind)
	if create == nil {
		return false
	}
	changed := m.Advance(kind, d)
	if d.Before(create.Time) {
		*create = null.TimeFrom(d)
		changed = true
	}
	return changed
}

// Updated returns the update date of kind
func (m *StockMetadata) Updated(kind WatermarkKind) null.Time {
	_, update := m.fields(kind)
	if update == nil {
		return null.Time{}
	}
	return *update
}

// Created returns the create date of kind
func (m *StockMetadata) Created(kind WatermarkKind) null.Time {
	create, _ := m.fields(kind)
	if create == nil {
		return null.Time{}
	}
	return *create
}

func (m *StockMetadata) fields(kind WatermarkKind) (*null.Time, *null.Time) {
	switch kind {
	case WatermarkDailyHistory:
		return &m.DailyHistoryCreateDate, &m.DailyHistoryUpdateDate
	case WatermarkWeeklyHistory:
		return &m.WeeklyHistoryCreateDate, &m.WeeklyHistoryUpdateDate
	case WatermarkMonthlyHistory:
		return &m.MonthlyHistoryCreateDate, &m.MonthlyHistoryUpdateDate
	case WatermarkIncome:
		return &m.IncomeStatementCreateDate, &m.IncomeStatementUpdateDate
	case WatermarkBalance:
		return &m.BalanceSheetCreateDate, &m.BalanceSheetUpdateDate
	default:
		return nil, nil
	}
}

// Recommendation is a persisted screening hit, unique per (StockID, DailyDateID)
type Recommendation struct {
	ID          int64     `json:"id" db:"id"`
	StockID     int64     `json:"stock_id" db:"stock_id"`
	DailyDateID int64     `json:"daily_date_id" db:"daily_date_id"`
	Date        time.Time `json:"date" db:"date"`
	Code        string    `json:"code" db:"code"`
	Name        string    `json:"name" db:"name"`
	Price       float64   `json:"price" db:"price"`
	Note        string    `json:"note" db:"note"`
}

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/stockprophet/backend/internal/contracts"
)

var balanceFields = []string{
	"intangible_assets", "total_assets", "total_liabs", "short_term_borrowing",
	"total_current_assets", "total_non_current_assets", "total_current_liabs", "total_non_current_liabs",
	"accrued_payable", "other_payable", "capital_reserve", "common_stocks",
	"total_stocks", "inventories", "prepaid", "shareholders_net_income",
}

var incomeFields = []string{
	"net_sales", "cost_of_goods_sold", "gross_profit", "operating_expenses",
	"operating_income", "total_non_op_income_expenses", "pre_tax_income", "income_tax_expense",
	"net_income", "other_comprehensive_income", "consolidated_net_income", "eps",
}

func balanceValues(b *contracts.BalanceSheet) []any {
	return []any{
		b.IntangibleAssets, b.TotalAssets, b.TotalLiabs, b.ShortTermBorrowing,
		b.TotalCurrentAssets, b.TotalNonCurrentAssets, b.TotalCurrentLiabs, b.TotalNonCurrentLiabs,
		b.AccruedPayable, b.OtherPayable, b.CapitalReserve, b.CommonStocks,
		b.TotalStocks, b.Inventories, b.Prepaid, b.ShareholdersNetIncome,
	}
}

func incomeValues(s *contracts.IncomeStatement) []any {
	return []any{
		s.NetSales, s.CostOfGoodsSold, s.GrossProfit, s.OperatingExpenses,
		s.OperatingIncome, s.TotalNonOpIncomeExpenses, s.PreTaxIncome, s.IncomeTaxExpense,
		s.NetIncome, s.OtherComprehensiveIncome, s.ConsolidatedNetIncome, s.EPS,
	}
}

// statementTable builds the SQL of one season-keyed statement table
type statementTable struct {
	name   string
	fields []string
}

var (
	balanceTable = statementTable{name: "balance_sheet", fields: balanceFields}
	incomeTable  = statementTable{name: "income_statement", fields: incomeFields}
)

func (t statementTable) selectSQL() string {
	cols := make([]string, len(t.fields))
	for i, f := range t.fields {
		cols[i] = "t." + f
	}
	return fmt.Sprintf(`SELECT t.id, t.stock_id, t.season_date_id, d.date, %s FROM %s t JOIN period_date d ON d.id = t.season_date_id`,
		strings.Join(cols, ", "), t.name)
}

// insertSQL returns an INSERT with the stock and season as $1 and $2.
// With upsert set, an existing (stock, season) row is overwritten.
func (t statementTable) insertSQL(upsert bool) string {
	params := make([]string, len(t.fields))
	sets := make([]string, len(t.fields))
	for i, f := range t.fields {
		params[i] = fmt.Sprintf("$%d", i+3)
		sets[i] = f + " = EXCLUDED." + f
	}
	q := fmt.Sprintf(`INSERT INTO %s (stock_id, season_date_id, %s) VALUES ($1, $2, %s)`,
		t.name, strings.Join(t.fields, ", "), strings.Join(params, ", "))
	if upsert {
		q += ` ON CONFLICT (stock_id, season_date_id) DO UPDATE SET ` + strings.Join(sets, ", ")
	}
	return q + ` RETURNING id, (SELECT date FROM period_date WHERE id = $2)`
}

func (s *Store) saveBalanceSheet(ctx context.Context, b *contracts.BalanceSheet, upsert bool) error {
	args := append([]any{b.StockID, b.SeasonDateID}, balanceValues(b)...)
	if err := s.pool.QueryRow(ctx, balanceTable.insertSQL(upsert), args...).Scan(&b.ID, &b.Date); err != nil {
		return fmt.Errorf("failed to save balance sheet %d/%d: %w", b.StockID, b.SeasonDateID, mapError(err))
	}
	return nil
}

func (s *Store) CreateBalanceSheet(ctx context.Context, b *contracts.BalanceSheet) error {
	return s.saveBalanceSheet(ctx, b, false)
}

func (s *Store) UpsertBalanceSheet(ctx context.Context, b *contracts.BalanceSheet) error {
	return s.saveBalanceSheet(ctx, b, true)
}

func (s *Store) GetBalanceSheet(ctx context.Context, stockID, seasonDateID int64) (*contracts.BalanceSheet, bool, error) {
	return collectOne[contracts.BalanceSheet](ctx, s.pool,
		balanceTable.selectSQL()+` WHERE t.stock_id = $1 AND t.season_date_id = $2`, stockID, seasonDateID)
}

func (s *Store) ListBalanceSheets(ctx context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.BalanceSheet, error) {
	w := &where{}
	w.add("t.stock_id = ?", stockID)
	return collectAll[contracts.BalanceSheet](ctx, s.pool, balanceTable.selectSQL()+w.history("d.date", f), w.args...)
}

func (s *Store) saveIncomeStatement(ctx context.Context, st *contracts.IncomeStatement, upsert bool) error {
	args := append([]any{st.StockID, st.SeasonDateID}, incomeValues(st)...)
	if err := s.pool.QueryRow(ctx, incomeTable.insertSQL(upsert), args...).Scan(&st.ID, &st.Date); err != nil {
		return fmt.Errorf("failed to save income statement %d/%d: %w", st.StockID, st.SeasonDateID, mapError(err))
	}
	return nil
}

func (s *Store) CreateIncomeStatement(ctx context.Context, st *contracts.IncomeStatement) error {
	return s.saveIncomeStatement(ctx, st, false)
}

func (s *Store) UpsertIncomeStatement(ctx context.Context, st *contracts.IncomeStatement) error {
	return s.saveIncomeStatement(ctx, st, true)
}

func (s *Store) GetIncomeStatement(ctx context.Context, stockID, seasonDateID int64) (*contracts.IncomeStatement, bool, error) {
	return collectOne[contracts.IncomeStatement](ctx, s.pool,
		incomeTable.selectSQL()+` WHERE t.stock_id = $1 AND t.season_date_id = $2`, stockID, seasonDateID)
}

func (s *Store) ListIncomeStatements(ctx context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.IncomeStatement, error) {
	w := &where{}
	w.add("t.stock_id = ?", stockID)
	return collectAll[contracts.IncomeStatement](ctx, s.pool, incomeTable.selectSQL()+w.history("d.date", f), w.args...)
}

// ---- monthly revenue ----

const revenueSelect = `
	SELECT r.id, r.stock_id, r.month_date_id, d.date, r.revenue, r.note
	FROM monthly_revenue r JOIN period_date d ON d.id = r.month_date_id`

func (s *Store) CreateMonthlyRevenue(ctx context.Context, r *contracts.MonthlyRevenue) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO monthly_revenue (stock_id, month_date_id, revenue, note)
		VALUES ($1, $2, $3, $4)
		RETURNING id, (SELECT date FROM period_date WHERE id = $2)`,
		r.StockID, r.MonthDateID, r.Revenue, r.Note).Scan(&r.ID, &r.Date)
	if err != nil {
		return fmt.Errorf("failed to save monthly revenue %d/%d: %w", r.StockID, r.MonthDateID, mapError(err))
	}
	return nil
}

func (s *Store) GetMonthlyRevenue(ctx context.Context, stockID, monthDateID int64) (*contracts.MonthlyRevenue, bool, error) {
	return collectOne[contracts.MonthlyRevenue](ctx, s.pool,
		revenueSelect+` WHERE r.stock_id = $1 AND r.month_date_id = $2`, stockID, monthDateID)
}

func (s *Store) ListMonthlyRevenue(ctx context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.MonthlyRevenue, error) {
	w := &where{}
	w.add("r.stock_id = ?", stockID)
	return collectAll[contracts.MonthlyRevenue](ctx, s.pool, revenueSelect+w.history("d.date", f), w.args...)
}

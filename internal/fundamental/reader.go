package fundamental

import (
	"context"
	"fmt"
	"time"

	"github.com/stockprophet/backend/internal/contracts"
)

// StatementReader is the part of the store ratio lookups need
type StatementReader interface {
	ListBalanceSheets(ctx context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.BalanceSheet, error)
	ListIncomeStatements(ctx context.Context, stockID int64, f contracts.HistoryFilter) ([]contracts.IncomeStatement, error)
}

// SeasonStatements loads the balance sheet and income statement of the season starting at seasonDate.
// A missing statement is returned as nil.
func SeasonStatements(ctx context.Context, r StatementReader, stockID int64, seasonDate time.Time) (*contracts.BalanceSheet, *contracts.IncomeStatement, error) {
	f := contracts.HistoryFilter{From: seasonDate, To: seasonDate, Limit: 1}

	balances, err := r.ListBalanceSheets(ctx, stockID, f)
	if err != nil {
		return nil, nil, fmt.Errorf("list balance sheets: %w", err)
	}
	incomes, err := r.ListIncomeStatements(ctx, stockID, f)
	if err != nil {
		return nil, nil, fmt.Errorf("list income statements: %w", err)
	}

	var b *contracts.BalanceSheet
	if len(balances) > 0 {
		b = &balances[0]
	}
	var s *contracts.IncomeStatement
	if len(incomes) > 0 {
		s = &incomes[0]
	}
	return b, s, nil
}

// SeasonRatios computes the ratios of stock at price using the season starting at seasonDate
func SeasonRatios(ctx context.Context, r StatementReader, stock contracts.Stock, price float64, seasonDate time.Time) (Ratios, error) {
	b, s, err := SeasonStatements(ctx, r, stock.ID, seasonDate)
	if err != nil {
		return Ratios{}, err
	}
	return Compute(stock.Code, price, b, s), nil
}

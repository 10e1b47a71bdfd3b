package mops

import (
	"github.com/guregu/null/v6"

	"github.com/stockprophet/backend/internal/contracts"
	"github.com/stockprophet/backend/internal/external"
)

// incomeField maps an income statement row title to its field
func incomeField(s *contracts.IncomeStatement, title string) *null.Int {
	switch title {
	case "營業收入合計":
		return &s.NetSales
	case "營業成本合計":
		return &s.CostOfGoodsSold
	case "營業毛利（毛損）淨額":
		return &s.GrossProfit
	case "營業費用合計":
		return &s.OperatingExpenses
	case "營業利益（損失）":
		return &s.OperatingIncome
	case "營業外收入及支出合計":
		return &s.TotalNonOpIncomeExpenses
	case "稅前淨利（淨損）":
		return &s.PreTaxIncome
	case "所得稅費用（利益）合計":
		return &s.IncomeTaxExpense
	case "本期淨利（淨損）":
		return &s.NetIncome
	case "其他綜合損益（淨額）":
		return &s.OtherComprehensiveIncome
	case "本期綜合損益總額":
		return &s.ConsolidatedNetIncome
	default:
		return nil
	}
}

const epsTitle = "基本每股盈餘"

// balanceField maps a balance sheet row title, including its aliases, to its field
func balanceField(b *contracts.BalanceSheet, title string) *null.Int {
	switch title {
	case "無形資產":
		return &b.IntangibleAssets
	case "資產總額", "資產總計":
		return &b.TotalAssets
	case "負債總額", "負債總計":
		return &b.TotalLiabs
	case "短期借款":
		return &b.ShortTermBorrowing
	case "流動資產合計":
		return &b.TotalCurrentAssets
	case "非流動資產合計":
		return &b.TotalNonCurrentAssets
	case "流動負債合計":
		return &b.TotalCurrentLiabs
	case "非流動負債合計":
		return &b.TotalNonCurrentLiabs
	case "應付帳款":
		return &b.AccruedPayable
	case "其他應付款":
		return &b.OtherPayable
	case "資本公積", "資本公積合計":
		return &b.CapitalReserve
	case "普通股股本":
		return &b.CommonStocks
	case "股本合計":
		return &b.TotalStocks
	case "存貨":
		return &b.Inventories
	case "預付款項":
		return &b.Prepaid
	case "歸屬於母公司業主之權益", "歸屬於母公司業主之權益合計":
		return &b.ShareholdersNetIncome
	default:
		return nil
	}
}

// translateIncome converts raw rows. Values that do not parse are dropped.
// ok is false when no known row was found.
func translateIncome(raw map[string]string) (*contracts.IncomeStatement, bool) {
	s := &contracts.IncomeStatement{}
	found := false
	for title, value := range raw {
		if title == epsTitle {
			if v := external.ParseFloat(value); v.Valid {
				s.EPS = v
				found = true
			}
			continue
		}
		field := incomeField(s, title)
		if field == nil {
			continue
		}
		if v := external.ParseInt(value); v.Valid {
			*field = v
			found = true
		}
	}
	return s, found
}

// translateBalance converts raw rows. ok is false when no known row was found.
func translateBalance(raw map[string]string) (*contracts.BalanceSheet, bool) {
	b := &contracts.BalanceSheet{}
	found := false
	for title, value := range raw {
		field := balanceField(b, title)
		if field == nil {
			continue
		}
		if v := external.ParseInt(value); v.Valid {
			*field = v
			found = true
		}
	}
	return b, found
}

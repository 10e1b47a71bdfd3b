package fundamental

import (
	"github.com/guregu/null/v6"

	"github.com/stockprophet/backend/internal/contracts"
)

// IsLiabilitiesDescending reports whether total liabilities shrank season over season.
// balances are newest first and must hold exactly n seasons; seasons without a figure are ignored.
func IsLiabilitiesDescending(balances []contracts.BalanceSheet, n int) bool {
	return monotonic(balances, n, func(b contracts.BalanceSheet) null.Int { return b.TotalLiabs },
		func(newer, older int64) bool { return older >= newer })
}

// IsAssetsAscending reports whether total assets grew season over season.
// balances are newest first and must hold exactly n seasons.
func IsAssetsAscending(balances []contracts.BalanceSheet, n int) bool {
	return monotonic(balances, n, func(b contracts.BalanceSheet) null.Int { return b.TotalAssets },
		func(newer, older int64) bool { return older <= newer })
}

func monotonic(balances []contracts.BalanceSheet, n int, field func(contracts.BalanceSheet) null.Int, ok func(newer, older int64) bool) bool {
	if len(balances) != n {
		return false
	}

	var prev int64
	compared := false
	for _, b := range balances {
		v := field(b).ValueOrZero()
		if v == 0 {
			continue
		}
		if prev == 0 {
			prev = v
			continue
		}
		if !ok(prev, v) {
			return false
		}
		prev = v
		compared = true
	}
	return compared
}

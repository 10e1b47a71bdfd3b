package contracts

import (
	"time"

	"github.com/guregu/null/v6"
)

// Quote is one normalized row of a full-market daily snapshot
type Quote struct {
	Code   string     `json:"code"`
	Name   string     `json:"name"`
	Open   null.Float `json:"open"`
	High   null.Float `json:"high"`
	Low    null.Float `json:"low"`
	Close  null.Float `json:"close"`
	Volume null.Int   `json:"volume"`
	Value  null.Int   `json:"value"`
	Change null.Float `json:"change"`
}

// ListedStock is one (code, name) pair of a category listing
type ListedStock struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Listing maps a category name to the stocks listed under it
type Listing map[string][]ListedStock

// Category is a remote category query code and its display name
type Category struct {
	Code string
	Name string
}

// ReductionEvent is one row of the capital reduction feed. The share ratio,
// refund and stop-trade date are null when the feed does not carry them.
type ReductionEvent struct {
	Code                 string     `json:"code"`
	Name                 string     `json:"name"`
	EffectiveDate        time.Time  `json:"effective_date"`
	OldPrice             float64    `json:"old_price"`
	NewPrice             float64    `json:"new_price"`
	Reason               string     `json:"reason"`
	NewSharesPerThousand null.Float `json:"new_shares_per_thousand"`
	RefundPerShare       null.Float `json:"refund_per_share"`
	StopTradeDate        null.Time  `json:"stop_trade_date"`
}

package backtest

import (
	"time"

	"github.com/guregu/null/v6"

	"github.com/stockprophet/backend/internal/mathx"
)

// Trading cost model
const (
	Kilo    = 1000
	FeeRate = 1.425 / Kilo // buy fee on notional
	TaxRate = 3.0 / Kilo   // sell tax on notional
)

// Record is one ledger row. A buy row carries BuyPrice/BuyVolume, a sell or
// reduction row carries SellPrice/SellVolume.
type Record struct {
	Date        time.Time  `json:"date"`
	BuyPrice    null.Float `json:"buy_price"`
	BuyVolume   null.Int   `json:"buy_volume"`
	SellPrice   null.Float `json:"sell_price"`
	SellVolume  null.Int   `json:"sell_volume"`
	AvgPrice    float64    `json:"avg_price"`
	TotalVolume int64      `json:"total_volume"`
	StockAssets int64      `json:"stock_assets"`
	Cash        int64      `json:"cash"`
	TotalAssets int64      `json:"total_assets"`
	ROI         null.Float `json:"roi"`
	Reduction   bool       `json:"reduction,omitempty"`
}

// Account is a single-stock cash account. Volumes are in shares.
// ⭐ SSOT: 모의 계좌 손익 계산은 여기서만
type Account struct {
	principal   int64
	cash        float64
	avgPrice    float64
	stockAssets float64
	totalVolume int64
	totalAssets int64
	records     []Record
}

// NewAccount opens an account funded with principal
func NewAccount(principal int64) *Account {
	return &Account{
		principal:   principal,
		cash:        float64(principal),
		totalAssets: principal,
	}
}

// Principal returns the opening cash
func (a *Account) Principal() int64 { return a.principal }

// Cash returns the cash left
func (a *Account) Cash() float64 { return a.cash }

// AvgPrice returns the fee-inclusive average price of the position
func (a *Account) AvgPrice() float64 { return a.avgPrice }

// TotalVolume returns the shares held
func (a *Account) TotalVolume() int64 { return a.totalVolume }

// TotalAssets returns cash plus stock at the last traded price
func (a *Account) TotalAssets() int64 { return a.totalAssets }

// Records returns the ledger
func (a *Account) Records() []Record { return a.records }

func (a *Account) clear() {
	a.avgPrice = 0
	a.stockAssets = 0
	a.totalVolume = 0
}

// ROI returns the unrealized return in percent at price.
// It is null while no stock is held.
func (a *Account) ROI(price float64) null.Float {
	if a.stockAssets == 0 {
		return null.Float{}
	}
	vol := float64(a.totalVolume)
	return null.FloatFrom(mathx.Round2((price*vol - a.avgPrice*vol) * 100 / a.stockAssets))
}

// MaxBuyVolume returns the most shares, in whole lots, the cash can buy
// at price after the fee
func (a *Account) MaxBuyVolume(price float64) int64 {
	if price <= 0 {
		return 0
	}
	lots := int64(a.cash / (price * Kilo))
	notional := price * float64(lots) * Kilo
	if notional+float64(mathx.Trunc(notional*FeeRate)) > a.cash {
		lots--
	}
	return max(lots, 0) * Kilo
}

// Buy adds volume shares at price. It is a no-op returning false when volume
// is zero or the cost with fee would use up the cash.
func (a *Account) Buy(date time.Time, price float64, volume int64) bool {
	cost := price * float64(volume)
	fee := float64(mathx.Trunc(cost * FeeRate))
	if volume <= 0 || a.cash-(cost+fee) <= 0 {
		return false
	}

	a.cash -= cost + fee
	a.totalVolume += volume
	a.avgPrice = a.buyAvgPrice(price, volume)
	a.stockAssets = price * float64(a.totalVolume)
	a.totalAssets = int64(a.cash + a.stockAssets)

	a.records = append(a.records, Record{
		Date:        date,
		BuyPrice:    null.FloatFrom(mathx.Round2(price)),
		BuyVolume:   null.IntFrom(volume),
		AvgPrice:    a.avgPrice,
		TotalVolume: a.totalVolume,
		StockAssets: int64(a.stockAssets),
		Cash:        int64(a.cash),
		TotalAssets: a.totalAssets,
		ROI:         a.ROI(price),
	})
	return true
}

// buyAvgPrice blends the fee-inclusive cost of the new shares into the
// average. totalVolume already includes them.
func (a *Account) buyAvgPrice(price float64, volume int64) float64 {
	bought := price * float64(volume) * (1 + FeeRate)
	held := a.avgPrice * float64(a.totalVolume-volume)
	return mathx.Round2((bought + held) / float64(a.totalVolume))
}

// Sell removes volume shares at price. It is a no-op returning false unless
// 0 < volume <= TotalVolume. The ROI of the row is taken before the sale.
func (a *Account) Sell(date time.Time, price float64, volume int64) bool {
	if volume <= 0 || volume > a.totalVolume {
		return false
	}

	proceeds := price * float64(volume)
	tax := float64(mathx.Trunc(proceeds * TaxRate))
	avg := a.sellAvgPrice(price, volume)
	roi := a.ROI(price)

	a.cash += proceeds - tax
	a.totalVolume -= volume
	a.avgPrice = avg
	a.stockAssets = price * float64(a.totalVolume)
	if a.totalVolume == 0 {
		avg = 0
		a.clear()
	}
	a.totalAssets = int64(a.cash + a.stockAssets)

	a.records = append(a.records, Record{
		Date:        date,
		SellPrice:   null.FloatFrom(mathx.Round2(price)),
		SellVolume:  null.IntFrom(volume),
		AvgPrice:    avg,
		TotalVolume: a.totalVolume,
		StockAssets: int64(a.stockAssets),
		Cash:        int64(a.cash),
		TotalAssets: a.totalAssets,
		ROI:         roi,
	})
	return true
}

func (a *Account) sellAvgPrice(price float64, volume int64) float64 {
	sold := price * float64(volume) * (1 - TaxRate)
	var held float64
	if rest := a.totalVolume - volume; rest > 0 {
		held = a.avgPrice * float64(rest)
	}
	return mathx.Round2((sold + held) / float64(a.totalVolume))
}

// ApplyReduction shrinks the position after a capital reduction: of every
// 1000 shares newSharesPerThousand remain, the removed shares are refunded
// refundPerShare less tax, and the average price follows the price change.
// It is a no-op returning false while no stock is held.
func (a *Account) ApplyReduction(date time.Time, newSharesPerThousand, refundPerShare, oldPrice, newPrice float64) bool {
	if a.totalVolume == 0 {
		return false
	}

	removed := a.totalVolume - int64(float64(a.totalVolume)*(newSharesPerThousand/Kilo))
	refund := float64(removed) * refundPerShare
	tax := float64(mathx.Trunc(refund * TaxRate))
	avg := a.avgPrice
	if oldPrice > 0 {
		avg = mathx.Round2(a.avgPrice * (newPrice / oldPrice))
	}

	a.cash += refund - tax
	a.totalVolume -= removed
	a.stockAssets = newPrice * float64(a.totalVolume)
	a.avgPrice = avg
	a.totalAssets = int64(a.cash + a.stockAssets)

	a.records = append(a.records, Record{
		Date:        date,
		SellPrice:   null.FloatFrom(mathx.Round2(newPrice)),
		SellVolume:  null.IntFrom(removed),
		AvgPrice:    avg,
		TotalVolume: a.totalVolume,
		StockAssets: int64(a.stockAssets),
		Cash:        int64(a.cash),
		TotalAssets: a.totalAssets,
		ROI:         a.ROI(newPrice),
		Reduction:   true,
	})
	return true
}

package donchian

import (
	"tradesim/types"

	"github.com/shopspring/decimal"
)

// LongOnlyAllocator sizes new long entries as a share of account equity.
type LongOnlyAllocator struct {
	positionPercent decimal.Decimal
}

func NewLongOnlyAllocator(positionPercent decimal.Decimal) *LongOnlyAllocator {
	return &LongOnlyAllocator{
		positionPercent: positionPercent,
	}
}

// Size returns the whole number of units to buy at price. It is zero when the
// account already holds the symbol or the budget does not cover one unit.
func (a *LongOnlyAllocator) Size(view types.AccountView, symbol string, price decimal.Decimal) decimal.Decimal {
	if pos, ok := view.Positions[symbol]; ok && pos.Quantity.IsPositive() {
		// no pyramiding
		return decimal.Zero
	}
	capitalToUse := view.Equity.Mul(a.positionPercent)
	if !capitalToUse.IsPositive() {
		return decimal.Zero
	}
	return getQuantityForPrice(price, capitalToUse)
}

func getQuantityForPrice(stockPrice, capitalToUse decimal.Decimal) decimal.Decimal {
	if stockPrice.IsZero() {
		return decimal.Zero
	}
	return capitalToUse.Div(stockPrice).Floor()
}

package matching

import (
	"tradesim/types"

	"github.com/shopspring/decimal"
)

// CommissionModel prices one execution.
type CommissionModel interface {
	Fee(symbol string, side types.Side, price, quantity decimal.Decimal) decimal.Decimal
}

type NoCommission struct{}

func (NoCommission) Fee(string, types.Side, decimal.Decimal, decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

// PercentageCommission charges Rate of the trade value, clamped to [Min, Max].
// A zero Max means no cap.
type PercentageCommission struct {
	Rate decimal.Decimal
	Min  decimal.Decimal
	Max  decimal.Decimal
}

func (c PercentageCommission) Fee(_ string, _ types.Side, price, quantity decimal.Decimal) decimal.Decimal {
	tradeValue := price.Mul(quantity)
	if tradeValue.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	fee := tradeValue.Mul(c.Rate)
	if fee.LessThan(c.Min) {
		fee = c.Min
	}
	if c.Max.IsPositive() && fee.GreaterThan(c.Max) {
		fee = c.Max
	}
	return fee
}

// IBKRNetherlandsFixedUSD is the IBKR "Fixed - IB SmartRouting" schedule for
// USD-denominated Netherlands stocks:
//   - 0.05% of trade value
//   - Minimum per order: USD 1.70
//   - Maximum per order: USD 39.00
func IBKRNetherlandsFixedUSD() PercentageCommission {
	return PercentageCommission{
		Rate: decimal.RequireFromString("0.0005"),
		Min:  decimal.RequireFromString("1.70"),
		Max:  decimal.RequireFromString("39"),
	}
}

// IBKRForexTier1 is 0.20 basis point of trade value with a USD 2.00 minimum.
func IBKRForexTier1() PercentageCommission {
	return PercentageCommission{
		Rate: decimal.RequireFromString("0.00002"),
		Min:  decimal.RequireFromString("2.00"),
	}
}

package account

import (
	"time"
	"tradesim/types"

	"github.com/shopspring/decimal"
)

// Position is the open exposure of an account in one symbol.
type Position struct {
	Symbol          string
	Direction       types.Direction
	Quantity        decimal.Decimal
	EntryPrice      decimal.Decimal
	EntryTime       time.Time
	LastPrice       decimal.Decimal
	Profit          decimal.Decimal
	Commission      decimal.Decimal
	ExtraCommission decimal.Decimal
	ProtectiveStop  decimal.Decimal
}

func NewPosition(symbol string, dir types.Direction, qty, entryPrice decimal.Decimal, entryTime time.Time) *Position {
	return &Position{
		Symbol:     symbol,
		Direction:  dir,
		Quantity:   qty,
		EntryPrice: entryPrice,
		EntryTime:  entryTime,
		LastPrice:  entryPrice,
	}
}

// profitAt is the profit of qty units of the position marked at price.
func (p *Position) profitAt(price, qty decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice)
	if p.Direction == types.DirectionShort {
		diff = diff.Neg()
	}
	return diff.Mul(qty)
}

// Risk is the loss taken if the protective stop is hit. Zero without a stop.
func (p *Position) Risk() decimal.Decimal {
	if !p.ProtectiveStop.IsPositive() {
		return decimal.Zero
	}
	return p.EntryPrice.Sub(p.ProtectiveStop).Abs().Mul(p.Quantity)
}

func (p *Position) Value() decimal.Decimal {
	return p.LastPrice.Mul(p.Quantity)
}

func (p *Position) Snapshot() types.PositionSnapshot {
	return types.PositionSnapshot{
		Symbol:     p.Symbol,
		Direction:  p.Direction,
		Quantity:   p.Quantity,
		EntryPrice: p.EntryPrice,
		LastPrice:  p.LastPrice,
		Profit:     p.Profit,
		Commission: p.Commission.Add(p.ExtraCommission),
		EntryTime:  p.EntryTime,
	}
}

// Transaction is the record of a closed (or partly closed) position.
type Transaction struct {
	ID         int64
	Account    string
	Symbol     string
	Direction  types.Direction
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	EntryTime  time.Time
	ExitTime   time.Time
	Profit     decimal.Decimal
	Commission decimal.Decimal
	Partial    bool
}

// NetProfit is the profit after all commissions.
func (t Transaction) NetProfit() decimal.Decimal {
	return t.Profit.Sub(t.Commission)
}

func (t Transaction) IsWin() bool {
	return t.NetProfit().IsPositive()
}

func (t Transaction) Holding() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountView is a read-only copy of an account at one instant.
type AccountView struct {
	Name           string
	Balance        decimal.Decimal
	Credit         decimal.Decimal
	Profit         decimal.Decimal
	RealizedProfit decimal.Decimal
	Equity         decimal.Decimal
	Positions      map[string]PositionSnapshot
	Time           time.Time
}

type PositionSnapshot struct {
	Symbol     string
	Direction  Direction
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	LastPrice  decimal.Decimal
	Profit     decimal.Decimal
	Commission decimal.Decimal
	EntryTime  time.Time
}

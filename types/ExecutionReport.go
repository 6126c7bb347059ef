package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionReport records one fill. It is produced once and never changed.
type ExecutionReport struct {
	ExecutionID   string
	OrderID       string
	Account       string
	Symbol        string
	Side          Side
	Status        OrderState
	Time          time.Time
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	CumulativeQty decimal.Decimal
	AvgPrice      decimal.Decimal
	RemainingQty  decimal.Decimal
	Fee           decimal.Decimal
}

func (er ExecutionReport) Value() decimal.Decimal {
	return er.Price.Mul(er.Quantity)
}

func (er ExecutionReport) IsFinal() bool {
	return er.Status == OrderFilled
}

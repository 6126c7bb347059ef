// Package order models an order and the finite-state machine that governs its
// lifecycle. Only the matching simulator mutates an Order; everybody else gets
// a View.
package order

import (
	"fmt"
	"time"
	"tradesim/types"

	"github.com/shopspring/decimal"
)

// Request is what an algorithm asks for. It becomes an Order once the engine
// assigns an id.
type Request struct {
	Account        string
	Symbol         string
	Side           types.Side
	Type           types.OrderType
	Quantity       decimal.Decimal
	LimitPrice     decimal.Decimal
	StopPrice      decimal.Decimal
	ProtectiveStop decimal.Decimal
	TimeInForce    types.TimeInForce
	ValidFrom      time.Time
	ExpirationTime time.Time
	Tag            string
}

// Validate checks the request shape. It does not look at market data.
func (r Request) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("empty symbol: %w", ErrInvalidRequest)
	}
	if !r.Side.Valid() {
		return fmt.Errorf("side %q: %w", r.Side, ErrInvalidRequest)
	}
	if !r.Quantity.IsPositive() {
		return fmt.Errorf("quantity %s: %w", r.Quantity, ErrInvalidRequest)
	}
	switch r.Type {
	case types.TypeMarket:
	case types.TypeLimit:
		if !r.LimitPrice.IsPositive() {
			return fmt.Errorf("limit order without limit price: %w", ErrInvalidRequest)
		}
	case types.TypeStop:
		if !r.StopPrice.IsPositive() {
			return fmt.Errorf("stop order without stop price: %w", ErrInvalidRequest)
		}
	case types.TypeStopLimit:
		if !r.StopPrice.IsPositive() || !r.LimitPrice.IsPositive() {
			return fmt.Errorf("stop-limit order needs stop and limit prices: %w", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("order type %q: %w", r.Type, ErrInvalidRequest)
	}
	switch r.TimeInForce {
	case types.TimeInForceIOC, types.TimeInForceGTC:
	default:
		return fmt.Errorf("time in force %q: %w", r.TimeInForce, ErrInvalidRequest)
	}
	if !r.ExpirationTime.IsZero() && !r.ValidFrom.IsZero() && r.ExpirationTime.Before(r.ValidFrom) {
		return fmt.Errorf("expires %s before valid from %s: %w", r.ExpirationTime, r.ValidFrom, ErrInvalidRequest)
	}
	return nil
}

// View is the read-only face of an order.
type View interface {
	ID() string
	Account() string
	Symbol() string
	Side() types.Side
	Type() types.OrderType
	Quantity() decimal.Decimal
	LimitPrice() decimal.Decimal
	StopPrice() decimal.Decimal
	ProtectiveStop() decimal.Decimal
	TimeInForce() types.TimeInForce
	ValidFrom() time.Time
	ExpirationTime() time.Time
	CreatedAt() time.Time
	Tag() string
	State() types.OrderState
	FilledQuantity() decimal.Decimal
	AvgFillPrice() decimal.Decimal
	RemainingQuantity() decimal.Decimal
	RejectReason() string
}

var _ View = (*Order)(nil)

type Order struct {
	id        string
	req       Request
	createdAt time.Time

	state        types.OrderState
	filledQty    decimal.Decimal
	avgPrice     decimal.Decimal
	rejectReason string

	listeners  []listenerEntry
	listenerID int
}

// New creates an order in NEWLY_CREATED.
func New(id string, req Request, createdAt time.Time) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &Order{
		id:        id,
		req:       req,
		createdAt: createdAt,
		state:     types.OrderNewlyCreated,
		filledQty: decimal.Zero,
		avgPrice:  decimal.Zero,
	}, nil
}

func (o *Order) ID() string                      { return o.id }
func (o *Order) Account() string                 { return o.req.Account }
func (o *Order) Symbol() string                  { return o.req.Symbol }
func (o *Order) Side() types.Side                { return o.req.Side }
func (o *Order) Type() types.OrderType           { return o.req.Type }
func (o *Order) Quantity() decimal.Decimal       { return o.req.Quantity }
func (o *Order) LimitPrice() decimal.Decimal     { return o.req.LimitPrice }
func (o *Order) StopPrice() decimal.Decimal      { return o.req.StopPrice }
func (o *Order) ProtectiveStop() decimal.Decimal { return o.req.ProtectiveStop }
func (o *Order) TimeInForce() types.TimeInForce  { return o.req.TimeInForce }
func (o *Order) ValidFrom() time.Time            { return o.req.ValidFrom }
func (o *Order) ExpirationTime() time.Time       { return o.req.ExpirationTime }
func (o *Order) CreatedAt() time.Time            { return o.createdAt }
func (o *Order) Tag() string                     { return o.req.Tag }
func (o *Order) State() types.OrderState         { return o.state }
func (o *Order) FilledQuantity() decimal.Decimal { return o.filledQty }
func (o *Order) AvgFillPrice() decimal.Decimal   { return o.avgPrice }
func (o *Order) RejectReason() string            { return o.rejectReason }

func (o *Order) RemainingQuantity() decimal.Decimal {
	return o.req.Quantity.Sub(o.filledQty)
}

// IsImmediate reports whether the order must be decided on the first event.
func (o *Order) IsImmediate() bool {
	return o.req.TimeInForce == types.TimeInForceIOC
}

// IsExpired reports whether the expiration time lies strictly before at.
func (o *Order) IsExpired(at time.Time) bool {
	return !o.req.ExpirationTime.IsZero() && o.req.ExpirationTime.Before(at)
}

// IsValidAt reports whether the validity window has started at the given time.
func (o *Order) IsValidAt(at time.Time) bool {
	return o.req.ValidFrom.IsZero() || !o.req.ValidFrom.After(at)
}

// Transition moves the order to the given state and notifies listeners. On an
// illegal transition the state is left untouched.
func (o *Order) Transition(to types.OrderState) error {
	from := o.state
	if !CanTransition(from, to) {
		return illegal(from, to)
	}
	o.state = to
	o.notify(from, to)
	return nil
}

// Reject moves the order to REJECTED and records why.
func (o *Order) Reject(reason string) error {
	if !CanTransition(o.state, types.OrderRejected) {
		return illegal(o.state, types.OrderRejected)
	}
	o.rejectReason = reason
	return o.Transition(types.OrderRejected)
}

// ApplyFill books one fill and moves the order to PARTIALLY_FILLED or FILLED.
// The returned report carries everything but the execution id and fee, which
// belong to the simulator.
func (o *Order) ApplyFill(price, qty decimal.Decimal, at time.Time) (types.ExecutionReport, error) {
	remaining := o.RemainingQuantity()
	if !qty.IsPositive() || qty.GreaterThan(remaining) {
		return types.ExecutionReport{}, fmt.Errorf("order %s: fill %s with %s remaining: %w", o.id, qty, remaining, ErrOverfill)
	}
	next := types.OrderPartiallyFilled
	if qty.Equal(remaining) {
		next = types.OrderFilled
	}
	from := o.state
	if !CanTransition(from, next) {
		return types.ExecutionReport{}, illegal(from, next)
	}

	o.avgPrice = weightedAvg(o.avgPrice, o.filledQty, price, qty)
	o.filledQty = o.filledQty.Add(qty)
	o.state = next

	report := types.ExecutionReport{
		OrderID:       o.id,
		Account:       o.req.Account,
		Symbol:        o.req.Symbol,
		Side:          o.req.Side,
		Status:        next,
		Time:          at,
		Price:         price,
		Quantity:      qty,
		CumulativeQty: o.filledQty,
		AvgPrice:      o.avgPrice,
		RemainingQty:  o.RemainingQuantity(),
		Fee:           decimal.Zero,
	}
	o.notify(from, next)
	return report, nil
}

func weightedAvg(existingAvgPrice, existingQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return newPrice
	}
	return existingAvgPrice.Mul(existingQty).
		Add(newPrice.Mul(newQty)).
		Div(existingQty.Add(newQty))
}

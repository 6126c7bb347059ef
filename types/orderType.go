package types

type Side string

type Direction string
type OrderType string
type TimeInForce string

// OrderState is the lifecycle state of an order. Legal transitions live in
// internal/order.
type OrderState string

const (
	OrderNewlyCreated    OrderState = "NEWLY_CREATED"
	OrderSubmitted       OrderState = "SUBMITTED"
	OrderAccepted        OrderState = "ACCEPTED"
	OrderPartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderFilled          OrderState = "FILLED"
	OrderCancelling      OrderState = "CANCELLING"
	OrderCancelled       OrderState = "CANCELLED"
	OrderRejected        OrderState = "REJECTED"
	OrderExpired         OrderState = "EXPIRED"

	SideTypeBuy   Side = "BUY"
	SideTypeSell  Side = "SELL"
	SideTypeShort Side = "SHORT"
	SideTypeCover Side = "COVER"

	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"

	TypeMarket    OrderType = "MARKET"
	TypeLimit     OrderType = "LIMIT"
	TypeStop      OrderType = "STOP"
	TypeStopLimit OrderType = "STOP_LIMIT"

	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceGTC TimeInForce = "GTC"
)

func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected, OrderExpired:
		return true
	default:
		return false
	}
}

// Direction is the exposure the side opens or closes.
func (s Side) Direction() Direction {
	switch s {
	case SideTypeShort, SideTypeCover:
		return DirectionShort
	default:
		return DirectionLong
	}
}

// IsEntry reports whether the side opens or increases exposure.
func (s Side) IsEntry() bool {
	return s == SideTypeBuy || s == SideTypeShort
}

// IsBuying reports whether the side buys the instrument.
func (s Side) IsBuying() bool {
	return s == SideTypeBuy || s == SideTypeCover
}

func (s Side) Valid() bool {
	switch s {
	case SideTypeBuy, SideTypeSell, SideTypeShort, SideTypeCover:
		return true
	default:
		return false
	}
}

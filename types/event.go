package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventKind uint8

const (
	EventCandle EventKind = iota + 1
	EventStatus
)

func (k EventKind) String() string {
	switch k {
	case EventCandle:
		return "CANDLE"
	case EventStatus:
		return "STATUS"
	default:
		return "UNKNOWN"
	}
}

// MarketEvent is anything a market supplier can deliver.
type MarketEvent interface {
	Kind() EventKind
	Symbol() string
	Time() time.Time
}

// PricedEvent is implemented by events that carry a usable reference price.
type PricedEvent interface {
	MarketEvent
	ReferencePrice() (decimal.Decimal, bool)
}

var _ PricedEvent = CandleEvent{}
var _ MarketEvent = StatusEvent{}

// CandleEvent delivers a closed bar for one symbol.
type CandleEvent struct {
	Candle Candle
}

func NewCandleEvent(c Candle) CandleEvent {
	return CandleEvent{Candle: c}
}

func (e CandleEvent) Kind() EventKind { return EventCandle }
func (e CandleEvent) Symbol() string  { return e.Candle.Symbol }
func (e CandleEvent) Time() time.Time { return e.Candle.Timestamp }

// ReferencePrice is the open of the bar, the first price seen in the period.
func (e CandleEvent) ReferencePrice() (decimal.Decimal, bool) {
	if !e.Candle.Open.IsPositive() {
		return decimal.Zero, false
	}
	return e.Candle.Open, true
}

type MarketStatus string

const (
	StatusOpen   MarketStatus = "OPEN"
	StatusClosed MarketStatus = "CLOSED"
	StatusHalted MarketStatus = "HALTED"
)

// StatusEvent marks a change in trading status. It carries no price.
type StatusEvent struct {
	Ticker    string
	Status    MarketStatus
	Timestamp time.Time
}

func (e StatusEvent) Kind() EventKind { return EventStatus }
func (e StatusEvent) Symbol() string  { return e.Ticker }
func (e StatusEvent) Time() time.Time { return e.Timestamp }

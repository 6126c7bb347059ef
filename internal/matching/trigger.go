package matching

import (
	"tradesim/internal/order"
	"tradesim/types"

	"github.com/shopspring/decimal"
)

// TriggerMatcher decides whether a working order fills on an event, at what
// price and for how much.
type TriggerMatcher interface {
	Match(o order.View, ev types.MarketEvent) (price, quantity decimal.Decimal, ok bool)
}

// NoTrigger never fills working orders. Only IOC orders trade.
type NoTrigger struct{}

func (NoTrigger) Match(order.View, types.MarketEvent) (decimal.Decimal, decimal.Decimal, bool) {
	return decimal.Zero, decimal.Zero, false
}

// OHLCTrigger fills working orders against the range of a bar.
//
// Market orders fill at the open. Limit and stop prices are compared with the
// bar's low and high; a gap through the level fills at the open. A stop-limit
// order must trigger and reach its limit within the same bar. When
// Participation is positive, a fill is capped at that fraction of the bar
// volume, producing partial fills.
type OHLCTrigger struct {
	Participation decimal.Decimal
}

func (t OHLCTrigger) Match(o order.View, ev types.MarketEvent) (decimal.Decimal, decimal.Decimal, bool) {
	ce, ok := ev.(types.CandleEvent)
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	c := ce.Candle

	price, ok := triggerPrice(o, c)
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}

	qty := o.RemainingQuantity()
	if t.Participation.IsPositive() {
		capQty := c.Volume.Mul(t.Participation).Floor()
		if !capQty.IsPositive() {
			return decimal.Zero, decimal.Zero, false
		}
		qty = decimal.Min(qty, capQty)
	}
	return price, qty, true
}

func triggerPrice(o order.View, c types.Candle) (decimal.Decimal, bool) {
	buying := o.Side().IsBuying()
	switch o.Type() {
	case types.TypeMarket:
		return c.Open, c.Open.IsPositive()
	case types.TypeLimit:
		return limitPrice(buying, o.LimitPrice(), c.Open, c)
	case types.TypeStop:
		return stopPrice(buying, o.StopPrice(), c)
	case types.TypeStopLimit:
		stop, ok := stopPrice(buying, o.StopPrice(), c)
		if !ok {
			return decimal.Zero, false
		}
		return limitPrice(buying, o.LimitPrice(), stop, c)
	}
	return decimal.Zero, false
}

// limitPrice fills at from when it is already through the limit, otherwise at
// the limit if the bar reached it.
func limitPrice(buying bool, limit, from decimal.Decimal, c types.Candle) (decimal.Decimal, bool) {
	if buying {
		if from.LessThanOrEqual(limit) {
			return from, true
		}
		return limit, c.Low.LessThanOrEqual(limit)
	}
	if from.GreaterThanOrEqual(limit) {
		return from, true
	}
	return limit, c.High.GreaterThanOrEqual(limit)
}

func stopPrice(buying bool, stop decimal.Decimal, c types.Candle) (decimal.Decimal, bool) {
	if buying {
		if c.Open.GreaterThanOrEqual(stop) {
			return c.Open, true
		}
		return stop, c.High.GreaterThanOrEqual(stop)
	}
	if c.Open.LessThanOrEqual(stop) {
		return c.Open, true
	}
	return stop, c.Low.LessThanOrEqual(stop)
}

package matching

import (
	"testing"
	"tradesim/internal/order"
	"tradesim/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOHLCTriggerPrices(t *testing.T) {
	ev := bar(t, "X", t0, 100, 110, 90, 105, 1000)
	d := decimal.NewFromInt
	tests := []struct {
		name      string
		req       order.Request
		wantPrice int64
		wantOK    bool
	}{
		{name: "market", req: order.Request{}, wantPrice: 100, wantOK: true},
		{name: "buy limit touched", req: order.Request{Type: types.TypeLimit, LimitPrice: d(95)}, wantPrice: 95, wantOK: true},
		{name: "buy limit above open", req: order.Request{Type: types.TypeLimit, LimitPrice: d(101)}, wantPrice: 100, wantOK: true},
		{name: "buy limit missed", req: order.Request{Type: types.TypeLimit, LimitPrice: d(89)}},
		{name: "sell limit touched", req: order.Request{Side: types.SideTypeSell, Type: types.TypeLimit, LimitPrice: d(108)}, wantPrice: 108, wantOK: true},
		{name: "sell limit missed", req: order.Request{Side: types.SideTypeShort, Type: types.TypeLimit, LimitPrice: d(111)}},
		{name: "buy stop touched", req: order.Request{Type: types.TypeStop, StopPrice: d(108)}, wantPrice: 108, wantOK: true},
		{name: "buy stop gapped", req: order.Request{Side: types.SideTypeCover, Type: types.TypeStop, StopPrice: d(99)}, wantPrice: 100, wantOK: true},
		{name: "sell stop touched", req: order.Request{Side: types.SideTypeSell, Type: types.TypeStop, StopPrice: d(92)}, wantPrice: 92, wantOK: true},
		{name: "sell stop missed", req: order.Request{Side: types.SideTypeSell, Type: types.TypeStop, StopPrice: d(85)}},
		{name: "stop-limit within limit", req: order.Request{Type: types.TypeStopLimit, StopPrice: d(105), LimitPrice: d(106)}, wantPrice: 105, wantOK: true},
		{name: "stop-limit capped at limit", req: order.Request{Type: types.TypeStopLimit, StopPrice: d(108), LimitPrice: d(104)}, wantPrice: 104, wantOK: true},
		{name: "stop-limit not triggered", req: order.Request{Type: types.TypeStopLimit, StopPrice: d(120), LimitPrice: d(121)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrder(t, "1", tt.req)
			price, qty, ok := OHLCTrigger{}.Match(o, ev)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, price.Equal(d(tt.wantPrice)), "price %s", price)
				assert.True(t, qty.Equal(o.Quantity()))
			}
		})
	}
}

func TestOHLCTriggerIgnoresStatusEvents(t *testing.T) {
	o := newOrder(t, "1", order.Request{})
	_, _, ok := OHLCTrigger{}.Match(o, types.StatusEvent{Ticker: "X", Timestamp: t0})
	assert.False(t, ok)
}

func TestOHLCTriggerParticipationCap(t *testing.T) {
	o := newOrder(t, "1", order.Request{Quantity: decimal.NewFromInt(50)})
	trigger := OHLCTrigger{Participation: decimal.RequireFromString("0.05")}

	_, qty, ok := trigger.Match(o, bar(t, "X", t0, 10, 10, 10, 10, 19))
	assert.False(t, ok, "cap floors to zero")

	_, qty, ok = trigger.Match(o, bar(t, "X", t0, 10, 10, 10, 10, 400))
	assert.True(t, ok)
	assert.True(t, qty.Equal(decimal.NewFromInt(20)))
}

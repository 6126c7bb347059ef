// Package donchian is a long-only channel breakout strategy: buy a break of
// the highest high of the preceding bars, sell a break of the lowest low or a
// close under the ATR stop.
package donchian

import (
	"log/slog"
	"tradesim/internal/engine"
	"tradesim/internal/order"
	"tradesim/types"

	"github.com/shopspring/decimal"
)

type Params struct {
	EntryPeriod     int // bars in the breakout channel
	ExitPeriod      int // bars in the exit channel
	ATRPeriod       int
	ATRMultiplier   decimal.Decimal
	PositionPercent decimal.Decimal // share of equity per entry
	Account         string
}

func DefaultParams() Params {
	return Params{
		EntryPeriod:     20,
		ExitPeriod:      20,
		ATRPeriod:       20,
		ATRMultiplier:   decimal.NewFromInt(2),
		PositionPercent: decimal.RequireFromString("0.1"),
	}
}

var _ engine.Algorithm = (*Strategy)(nil)

type Strategy struct {
	engine.BaseAlgorithm

	params    Params
	allocator *LongOnlyAllocator
	api       engine.API
	logger    *slog.Logger

	history  map[string][]types.Candle
	stopLoss map[string]decimal.Decimal
	// symbols with an order placed but not yet decided
	inFlight map[string]bool
}

func New(params Params) *Strategy {
	return &Strategy{
		params:    params,
		allocator: NewLongOnlyAllocator(params.PositionPercent),
		logger:    slog.Default().With("component", "donchian"),
	}
}

func (s *Strategy) OnInit(api engine.API) error {
	s.api = api
	s.history = make(map[string][]types.Candle)
	s.stopLoss = make(map[string]decimal.Decimal)
	s.inFlight = make(map[string]bool)
	return nil
}

func (s *Strategy) OnMarketEvent(ev types.MarketEvent) error {
	ce, ok := ev.(types.CandleEvent)
	if !ok {
		return nil
	}
	c := ce.Candle
	// orders placed on the previous bar were decided before this callback
	delete(s.inFlight, c.Symbol)
	s.history[c.Symbol] = append(s.history[c.Symbol], c)
	return nil
}

func (s *Strategy) ExitOrders(ev types.MarketEvent) []order.Request {
	ce, ok := ev.(types.CandleEvent)
	if !ok || s.inFlight[ce.Candle.Symbol] {
		return nil
	}
	c := ce.Candle
	pos, ok := s.api.Account(s.params.Account).Positions[c.Symbol]
	if !ok || pos.Direction != types.DirectionLong {
		return nil
	}

	reason := ""
	hist := s.history[c.Symbol]
	if len(hist) > s.params.ExitPeriod {
		_, lowestLow := donchianHighLow(hist[len(hist)-1-s.params.ExitPeriod : len(hist)-1])
		if c.Low.LessThan(lowestLow) {
			reason = "Break of lowest low of preceding bars"
		}
	}
	if stop := s.stopLoss[c.Symbol]; stop.IsPositive() && c.Close.LessThan(stop) {
		reason = "ATR stop-loss"
	}
	if reason == "" {
		return nil
	}

	s.inFlight[c.Symbol] = true
	delete(s.stopLoss, c.Symbol)
	s.logger.Debug("exit signal", "symbol", c.Symbol, "reason", reason, "at", c.Timestamp)
	return []order.Request{{
		Account:     s.params.Account,
		Symbol:      c.Symbol,
		Side:        types.SideTypeSell,
		Type:        types.TypeMarket,
		Quantity:    pos.Quantity,
		TimeInForce: types.TimeInForceIOC,
		Tag:         reason,
	}}
}

func (s *Strategy) EntryOrders(ev types.MarketEvent) []order.Request {
	ce, ok := ev.(types.CandleEvent)
	if !ok || s.inFlight[ce.Candle.Symbol] {
		return nil
	}
	c := ce.Candle
	hist := s.history[c.Symbol]
	if len(hist) <= s.params.EntryPeriod {
		return nil
	}

	// channel of the completed bars, excluding the current one
	highestHigh, _ := donchianHighLow(hist[len(hist)-1-s.params.EntryPeriod : len(hist)-1])
	if !c.High.GreaterThan(highestHigh) {
		return nil
	}
	qty := s.allocator.Size(s.api.Account(s.params.Account), c.Symbol, c.Close)
	if qty.IsZero() {
		return nil
	}

	stop := decimal.Zero
	if atr := calcATR(hist, s.params.ATRPeriod); atr.IsPositive() {
		stop = c.Close.Sub(atr.Mul(s.params.ATRMultiplier))
		s.stopLoss[c.Symbol] = stop
	}

	s.inFlight[c.Symbol] = true
	s.logger.Debug("entry signal", "symbol", c.Symbol, "breakout", highestHigh.String(), "qty", qty.String())
	return []order.Request{{
		Account:        s.params.Account,
		Symbol:         c.Symbol,
		Side:           types.SideTypeBuy,
		Type:           types.TypeMarket,
		Quantity:       qty,
		ProtectiveStop: stop,
		TimeInForce:    types.TimeInForceIOC,
		Tag:            "Break of highest high of preceding bars",
	}}
}

// Utility: Donchian Channel High/Low
func donchianHighLow(candles []types.Candle) (decimal.Decimal, decimal.Decimal) {
	if len(candles) == 0 {
		return decimal.Zero, decimal.Zero
	}

	highest := candles[0].High
	lowest := candles[0].Low

	for _, c := range candles {
		if c.High.GreaterThan(highest) {
			highest = c.High
		}
		if c.Low.LessThan(lowest) {
			lowest = c.Low
		}
	}
	return highest, lowest
}

// calcATR is Wilder's average true range over the whole slice.
func calcATR(candles []types.Candle, period int) decimal.Decimal {
	if period <= 0 || len(candles) < period+1 {
		return decimal.Zero // need enough data (prev candle + period)
	}

	var trueRanges []decimal.Decimal

	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		range1 := high.Sub(low)
		range2 := high.Sub(prevClose).Abs()
		range3 := low.Sub(prevClose).Abs()

		trueRanges = append(trueRanges, decimal.Max(range1, range2, range3))
	}

	atr := decimal.Zero
	for _, tr := range trueRanges[:period] {
		atr = atr.Add(tr)
	}
	atr = atr.Div(decimal.NewFromInt(int64(period)))

	for i := period; i < len(trueRanges); i++ {
		atr = (atr.Mul(decimal.NewFromInt(int64(period - 1))).Add(trueRanges[i])).
			Div(decimal.NewFromInt(int64(period)))
	}

	return atr
}

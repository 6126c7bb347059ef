package market

import (
	"context"
	"fmt"
	"time"
	"tradesim/types"
)

// BarProvider is a historical data provider. Candles must be returned in time
// order.
type BarProvider interface {
	Candles(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error)
}

// ProviderSource queries a BarProvider when opened and replays the result.
type ProviderSource struct {
	provider BarProvider
	symbol   string
	interval types.Interval
	start    time.Time
	end      time.Time

	candles []types.Candle
	pos     int
}

func NewProviderSource(p BarProvider, symbol string, interval types.Interval, start, end time.Time) *ProviderSource {
	return &ProviderSource{provider: p, symbol: symbol, interval: interval, start: start, end: end}
}

func (s *ProviderSource) Open(ctx context.Context) error {
	candles, err := s.provider.Candles(ctx, s.symbol, s.interval, s.start, s.end)
	if err != nil {
		return fmt.Errorf("loading %s %s bars: %w", s.symbol, s.interval, err)
	}
	s.candles = candles
	s.pos = 0
	return nil
}

func (s *ProviderSource) Next() (types.MarketEvent, bool, error) {
	if s.pos >= len(s.candles) {
		return nil, false, nil
	}
	c := s.candles[s.pos]
	s.pos++
	return types.NewCandleEvent(c), true, nil
}

func (s *ProviderSource) Close() error {
	s.candles = nil
	s.pos = 0
	return nil
}

// NewProviderSupplier merges one ProviderSource per symbol.
func NewProviderSupplier(p BarProvider, symbols []string, interval types.Interval, start, end time.Time) *MultiSymbolSupplier {
	sources := make([]Source, len(symbols))
	for i, sym := range symbols {
		sources[i] = NewProviderSource(p, sym, interval, start, end)
	}
	return NewMultiSymbolSupplier(sources...)
}

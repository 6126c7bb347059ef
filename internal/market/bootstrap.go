package market

import (
	"context"
	"fmt"
	"math/rand/v2"
	"tradesim/types"

	"github.com/shopspring/decimal"
)

const (
	maxFactorDraws  = 8
	syntheticPlaces = 8
)

var _ Supplier = (*BootstrapSupplier)(nil)

// shapeFactor is a bar expressed as ratios of the previous bar's close.
type shapeFactor struct {
	open, high, low, close, volume decimal.Decimal
}

func newShapeFactor(prevClose decimal.Decimal, c types.Candle) (shapeFactor, bool) {
	if !prevClose.IsPositive() {
		return shapeFactor{}, false
	}
	f := shapeFactor{
		open:   c.Open.Div(prevClose),
		high:   c.High.Div(prevClose),
		low:    c.Low.Div(prevClose),
		close:  c.Close.Div(prevClose),
		volume: c.Volume.Div(prevClose),
	}
	if !f.open.IsPositive() || !f.high.IsPositive() || !f.low.IsPositive() || !f.close.IsPositive() {
		return shapeFactor{}, false
	}
	if f.volume.IsNegative() {
		return shapeFactor{}, false
	}
	return f, true
}

func (f shapeFactor) apply(prevClose decimal.Decimal, orig types.Candle) (types.Candle, error) {
	scale := func(r decimal.Decimal) decimal.Decimal {
		return r.Mul(prevClose).Round(syntheticPlaces)
	}
	return types.NewCandle(orig.Symbol,
		scale(f.open), scale(f.high), scale(f.low), scale(f.close), scale(f.volume),
		orig.TradeCount, orig.Interval, orig.Timestamp)
}

type BootstrapOption func(*BootstrapSupplier)

// WithSeed fixes the random source so every construction yields the same path.
func WithSeed(seed uint64) BootstrapOption {
	return func(b *BootstrapSupplier) {
		b.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// BootstrapSupplier replays a resampled path of its delegate. The delegate is
// drained once on the first Open; the synthetic path is cached and replayed
// identically on every later Open.
type BootstrapSupplier struct {
	delegate Supplier
	rng      *rand.Rand

	path  []types.MarketEvent
	built bool
	pos   int
	open  bool
}

func NewBootstrapSupplier(delegate Supplier, opts ...BootstrapOption) *BootstrapSupplier {
	b := &BootstrapSupplier{delegate: delegate}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return b
}

func (b *BootstrapSupplier) Open(ctx context.Context) error {
	if b.open {
		return ErrAlreadyOpen
	}
	if !b.built {
		original, err := b.drain(ctx)
		if err != nil {
			return err
		}
		b.path, err = b.synthesize(original)
		if err != nil {
			return err
		}
		b.built = true
	}
	b.pos = 0
	b.open = true
	return nil
}

func (b *BootstrapSupplier) drain(ctx context.Context) ([]types.MarketEvent, error) {
	if err := b.delegate.Open(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap delegate: %w", err)
	}
	var events []types.MarketEvent
	collect := func(ev types.MarketEvent) error {
		events = append(events, ev)
		return nil
	}
	for {
		n, err := b.delegate.Poll(collect, DefaultPollLimit)
		if err != nil {
			b.delegate.Close()
			return nil, fmt.Errorf("bootstrap delegate: %w", err)
		}
		if n == 0 {
			break
		}
	}
	if err := b.delegate.Close(); err != nil {
		return nil, fmt.Errorf("bootstrap delegate: %w", err)
	}
	return events, nil
}

// synthesize replaces every candle with its resampled counterpart, keeping
// the original event order and timestamps. Other events pass through.
func (b *BootstrapSupplier) synthesize(events []types.MarketEvent) ([]types.MarketEvent, error) {
	var symbols []string
	bySymbol := make(map[string][]types.Candle)
	for _, ev := range events {
		ce, ok := ev.(types.CandleEvent)
		if !ok {
			continue
		}
		sym := ce.Symbol()
		if _, seen := bySymbol[sym]; !seen {
			symbols = append(symbols, sym)
		}
		bySymbol[sym] = append(bySymbol[sym], ce.Candle)
	}

	synthetic := make(map[string][]types.Candle, len(symbols))
	for _, sym := range symbols {
		series, err := b.resample(bySymbol[sym])
		if err != nil {
			return nil, fmt.Errorf("resampling %s: %w", sym, err)
		}
		synthetic[sym] = series
	}

	out := make([]types.MarketEvent, len(events))
	next := make(map[string]int, len(symbols))
	for i, ev := range events {
		ce, ok := ev.(types.CandleEvent)
		if !ok {
			out[i] = ev
			continue
		}
		sym := ce.Symbol()
		out[i] = types.NewCandleEvent(synthetic[sym][next[sym]])
		next[sym]++
	}
	return out, nil
}

func (b *BootstrapSupplier) resample(original []types.Candle) ([]types.Candle, error) {
	var pool []shapeFactor
	for i := 1; i < len(original); i++ {
		if f, ok := newShapeFactor(original[i-1].Close, original[i]); ok {
			pool = append(pool, f)
		}
	}
	if len(pool) == 0 {
		return original, nil
	}

	out := make([]types.Candle, len(original))
	out[0] = original[0]
	for i := 1; i < len(original); i++ {
		prev := out[i-1].Close
		c, ok := b.draw(pool, prev, original[i])
		if !ok {
			flat, err := types.NewCandle(original[i].Symbol, prev, prev, prev, prev, original[i].Volume,
				original[i].TradeCount, original[i].Interval, original[i].Timestamp)
			if err != nil {
				return nil, err
			}
			c = flat
		}
		out[i] = c
	}
	return out, nil
}

func (b *BootstrapSupplier) draw(pool []shapeFactor, prevClose decimal.Decimal, orig types.Candle) (types.Candle, bool) {
	for range maxFactorDraws {
		f := pool[b.rng.IntN(len(pool))]
		c, err := f.apply(prevClose, orig)
		if err != nil || !c.Low.IsPositive() {
			continue
		}
		return c, true
	}
	return types.Candle{}, false
}

func (b *BootstrapSupplier) Poll(handler Handler, limit int) (int, error) {
	if !b.open {
		return 0, ErrNotOpen
	}
	if limit <= 0 {
		limit = DefaultPollLimit
	}
	if b.pos >= len(b.path) {
		return 0, nil
	}
	instant := b.path[b.pos].Time()
	n := 0
	for n < limit && b.pos < len(b.path) && b.path[b.pos].Time().Equal(instant) {
		ev := b.path[b.pos]
		b.pos++
		n++
		if err := handler(ev); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Close ends the current replay. The cached path survives for the next Open.
func (b *BootstrapSupplier) Close() error {
	b.open = false
	return nil
}

// Package market supplies time-ordered market events to the engine.
package market

import (
	"context"
	"errors"
	"tradesim/types"
)

var (
	ErrAlreadyOpen = errors.New("supplier already open")
	ErrNotOpen     = errors.New("supplier not open")
	ErrOutOfOrder  = errors.New("source produced events out of time order")
)

// DefaultPollLimit bounds a Poll when the caller passes a non-positive limit.
const DefaultPollLimit = 64

// Handler consumes one event. A non-nil error stops the current Poll.
type Handler func(ev types.MarketEvent) error

// Supplier is a pull-based source of time-ordered market events.
//
// Poll delivers at most limit events, all sharing the earliest pending
// timestamp, and returns how many were delivered. A return of 0 with a nil
// error means the supplier is exhausted.
type Supplier interface {
	Open(ctx context.Context) error
	Poll(handler Handler, limit int) (int, error)
	Close() error
}

// Source is a sequential per-symbol stream of events in non-decreasing time
// order. Next returns ok=false once the stream is exhausted.
type Source interface {
	Next() (ev types.MarketEvent, ok bool, err error)
	Close() error
}

// opener is implemented by sources that acquire resources before the first
// Next, such as files or provider queries.
type opener interface {
	Open(ctx context.Context) error
}

// SliceSource replays events held in memory.
type SliceSource struct {
	events []types.MarketEvent
	pos    int
}

func NewSliceSource(events ...types.MarketEvent) *SliceSource {
	return &SliceSource{events: events}
}

// NewCandleSource wraps candles as CandleEvents.
func NewCandleSource(candles []types.Candle) *SliceSource {
	events := make([]types.MarketEvent, len(candles))
	for i, c := range candles {
		events[i] = types.NewCandleEvent(c)
	}
	return &SliceSource{events: events}
}

func (s *SliceSource) Next() (types.MarketEvent, bool, error) {
	if s.pos >= len(s.events) {
		return nil, false, nil
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, true, nil
}

func (s *SliceSource) Close() error {
	s.pos = len(s.events)
	return nil
}

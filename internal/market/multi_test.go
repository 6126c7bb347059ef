package market

import (
	"context"
	"errors"
	"testing"
	"tradesim/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeCounter struct {
	*SliceSource
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return c.SliceSource.Close()
}

func TestMultiSymbolMergeIsTimeSortedAndNeverStraddles(t *testing.T) {
	a := NewCandleSource([]types.Candle{
		candle(t, "AAA", day(0), 10, 11, 9, 10, 100),
		candle(t, "AAA", day(2), 10, 11, 9, 10, 100),
		candle(t, "AAA", day(3), 10, 11, 9, 10, 100),
	})
	b := NewCandleSource([]types.Candle{
		candle(t, "BBB", day(0), 20, 21, 19, 20, 100),
		candle(t, "BBB", day(1), 20, 21, 19, 20, 100),
		candle(t, "BBB", day(3), 20, 21, 19, 20, 100),
	})
	c := NewCandleSource([]types.Candle{
		candle(t, "CCC", day(3), 30, 31, 29, 30, 100),
	})
	s := NewMultiSymbolSupplier(a, b, c)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	batches := collectAll(t, s, 10)
	require.Len(t, batches, 4)

	var symbols [][]string
	var prev types.MarketEvent
	for _, batch := range batches {
		var syms []string
		for _, ev := range batch {
			assert.True(t, ev.Time().Equal(batch[0].Time()), "batch straddles instants")
			if prev != nil {
				assert.False(t, ev.Time().Before(prev.Time()))
			}
			prev = ev
			syms = append(syms, ev.Symbol())
		}
		symbols = append(symbols, syms)
	}
	assert.Equal(t, [][]string{
		{"AAA", "BBB"},
		{"BBB"},
		{"AAA"},
		{"AAA", "BBB", "CCC"},
	}, symbols)
}

func TestMultiSymbolPollLimitKeepsRemainderAtSameInstant(t *testing.T) {
	var sources []Source
	for _, sym := range []string{"A", "B", "C"} {
		sources = append(sources, NewCandleSource([]types.Candle{
			candle(t, sym, day(0), 1, 1, 1, 1, 1),
			candle(t, sym, day(1), 1, 1, 1, 1, 1),
		}))
	}
	s := NewMultiSymbolSupplier(sources...)
	require.NoError(t, s.Open(context.Background()))

	batches := collectAll(t, s, 2)
	require.Len(t, batches, 4)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)
	assert.True(t, batches[1][0].Time().Equal(day(0)))
	assert.Equal(t, "C", batches[1][0].Symbol())
	assert.Len(t, batches[2], 2)
	assert.True(t, batches[2][0].Time().Equal(day(1)))
}

func TestMultiSymbolLifecycle(t *testing.T) {
	src := &closeCounter{SliceSource: NewCandleSource([]types.Candle{candle(t, "A", day(0), 1, 1, 1, 1, 1)})}
	s := NewMultiSymbolSupplier(src)

	_, err := s.Poll(func(types.MarketEvent) error { return nil }, 1)
	require.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, s.Open(context.Background()))
	require.ErrorIs(t, s.Open(context.Background()), ErrAlreadyOpen)

	batches := collectAll(t, s, 1)
	assert.Len(t, batches, 1)
	assert.Equal(t, 1, src.closes, "exhausted source is closed")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Poll(func(types.MarketEvent) error { return nil }, 1)
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestMultiSymbolOutOfOrderSource(t *testing.T) {
	s := NewMultiSymbolSupplier(NewCandleSource([]types.Candle{
		candle(t, "A", day(1), 1, 1, 1, 1, 1),
		candle(t, "A", day(0), 1, 1, 1, 1, 1),
	}))
	require.NoError(t, s.Open(context.Background()))

	_, err := s.Poll(func(types.MarketEvent) error { return nil }, 10)
	require.ErrorIs(t, err, ErrOutOfOrder)
}

func TestMultiSymbolHandlerErrorStopsPoll(t *testing.T) {
	boom := errors.New("boom")
	s := NewMultiSymbolSupplier(
		NewCandleSource([]types.Candle{candle(t, "A", day(0), 1, 1, 1, 1, 1)}),
		NewCandleSource([]types.Candle{candle(t, "B", day(0), 1, 1, 1, 1, 1)}),
	)
	require.NoError(t, s.Open(context.Background()))

	n, err := s.Poll(func(types.MarketEvent) error { return boom }, 10)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

func TestStatusEventsInterleaveWithCandles(t *testing.T) {
	status := types.StatusEvent{Ticker: "A", Status: types.StatusHalted, Timestamp: day(1)}
	s := NewMultiSymbolSupplier(NewSliceSource(
		types.NewCandleEvent(candle(t, "A", day(0), 1, 1, 1, 1, 1)),
		status,
		types.NewCandleEvent(candle(t, "A", day(1), 1, 1, 1, 1, 1)),
	))
	require.NoError(t, s.Open(context.Background()))

	batches := collectAll(t, s, 10)
	require.Len(t, batches, 2)
	require.Len(t, batches[1], 2)
	assert.Equal(t, types.EventStatus, batches[1][0].Kind())
	assert.Equal(t, types.EventCandle, batches[1][1].Kind())
}

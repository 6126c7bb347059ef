package market

import (
	"testing"
	"time"
	"tradesim/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)

func day(i int) time.Time { return day0.AddDate(0, 0, i) }

func candle(t *testing.T, symbol string, at time.Time, o, h, l, c, v float64) types.Candle {
	t.Helper()
	cd, err := types.NewCandle(symbol,
		decimal.NewFromFloat(o), decimal.NewFromFloat(h), decimal.NewFromFloat(l), decimal.NewFromFloat(c),
		decimal.NewFromFloat(v), 0, types.Day, at)
	require.NoError(t, err)
	return cd
}

// collectAll polls s until exhaustion and returns every batch.
func collectAll(t *testing.T, s Supplier, limit int) [][]types.MarketEvent {
	t.Helper()
	var batches [][]types.MarketEvent
	for {
		var batch []types.MarketEvent
		n, err := s.Poll(func(ev types.MarketEvent) error {
			batch = append(batch, ev)
			return nil
		}, limit)
		require.NoError(t, err)
		require.Equal(t, n, len(batch))
		if n == 0 {
			return batches
		}
		batches = append(batches, batch)
	}
}

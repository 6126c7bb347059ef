package market

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"tradesim/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatFileCSV(t *testing.T) {
	dir := t.TempDir()
	aaa := "timestamp,open,high,low,close,volume,trade_count\n" +
		"2024-01-02T21:00:00Z,10,11,9,10.5,1000,12\n" +
		"2024-01-03T21:00:00Z,10.5,12,10,11,900,8\n"
	bbb := "Timestamp,Open,High,Low,Close,Volume\n" +
		"1704315600000,20,21,19,20,50\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAA.csv"), []byte(aaa), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BBB.csv"), []byte(bbb), 0o644))

	s, err := NewFlatFileSupplier(dir, FormatCSV, []string{"AAA", "BBB"}, types.Day)
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	batches := collectAll(t, s, 10)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 1)
	assert.Len(t, batches[1], 2)

	first := batches[0][0].(types.CandleEvent).Candle
	assert.Equal(t, "AAA", first.Symbol)
	assert.Equal(t, "10.5", first.Close.String())
	assert.Equal(t, int64(12), first.TradeCount)
}

func TestFlatFileCSVMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		openErr bool
	}{
		{name: "missing column", content: "timestamp,open,high,low,close\n", openErr: true},
		{name: "bad number", content: "timestamp,open,high,low,close,volume\n2024-01-02T21:00:00Z,x,1,1,1,1\n"},
		{name: "bad timestamp", content: "timestamp,open,high,low,close,volume\nyesterday,1,1,1,1,1\n"},
		{name: "inverted range", content: "timestamp,open,high,low,close,volume\n2024-01-02T21:00:00Z,5,4,6,5,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "X.csv")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			src := NewCSVSource(path, "X", types.Day)
			defer src.Close()

			err := src.Open(context.Background())
			if tt.openErr {
				require.ErrorIs(t, err, ErrMalformedRow)
				return
			}
			require.NoError(t, err)
			_, _, err = src.Next()
			require.Error(t, err)
		})
	}
}

func TestFlatFileParquet(t *testing.T) {
	dir := t.TempDir()
	records := []BarRecord{
		{Timestamp: day(0).UnixMilli(), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100},
		{Timestamp: day(1).UnixMilli(), Open: 10.5, High: 12, Low: 10, Close: 11, Volume: 200, TradeCount: 3},
	}
	require.NoError(t, WriteBarRecords(filepath.Join(dir, "XYZ.parquet"), records))

	s, err := NewFlatFileSupplier(dir, FormatParquet, []string{"XYZ"}, types.Day)
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	batches := collectAll(t, s, 10)
	require.Len(t, batches, 2)
	last := batches[1][0].(types.CandleEvent).Candle
	assert.Equal(t, "XYZ", last.Symbol)
	assert.True(t, last.Timestamp.Equal(day(1)))
	assert.Equal(t, int64(3), last.TradeCount)
}

func TestFlatFileMissingFile(t *testing.T) {
	s, err := NewFlatFileSupplier(t.TempDir(), FormatCSV, []string{"NOPE"}, types.Day)
	require.NoError(t, err)
	require.Error(t, s.Open(context.Background()))
	require.NoError(t, s.Close())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("PARQUET")
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, f)
	_, err = ParseFormat("xlsx")
	require.Error(t, err)
}

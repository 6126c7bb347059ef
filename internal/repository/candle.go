package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
	"tradesim/internal/market"
	"tradesim/types"

	"github.com/jackc/pgx/v5"
)

var _ market.BarProvider = (*Database)(nil)

var bucketToInterval = map[types.Interval]string{
	types.OneMinute:      "1 minute",
	types.FiveMinutes:    "5 minutes",
	types.FifteenMinutes: "15 minutes",
	types.ThirtyMinutes:  "30 minutes",
	types.Hour:           "1 hour",
	types.FourHours:      "4 hours",
	types.Day:            "1 day",
	types.Week:           "1 week",
}

// GetAggregates returns bars of the given interval in [start, end). Candle
// timestamps are bucket close times.
func (db *Database) GetAggregates(ctx context.Context, asset *types.Asset, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	bucket, ok := bucketToInterval[interval]
	if !ok {
		return nil, fmt.Errorf("%s: %w", interval, ErrIntervalNotSupported)
	}
	args := aggregatesParams{
		TimeBucket: bucket,
		AssetID:    int32(asset.ID),
		Starttime:  start,
		Endtime:    end,
	}
	rows, err := db.candles.GetAggregates(ctx, args)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCandles
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %s: %w", asset.Ticker, interval, ErrNoCandles)
	}
	return convertCandles(rows, interval, asset.Ticker)
}

// Candles looks the ticker up and loads its aggregates.
func (db *Database) Candles(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	asset, err := db.GetAssetByTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return db.GetAggregates(ctx, asset, interval, start, end)
}

func convertCandles(rows []aggregateRow, interval types.Interval, ticker string) ([]types.Candle, error) {
	width := types.IntervalToTime[interval]
	candles := make([]types.Candle, 0, len(rows))
	for _, r := range rows {
		c, err := types.NewCandle(ticker, r.Open, r.High, r.Low, r.Close, r.Volume, r.TradeCount, interval, r.Bucket.Add(width))
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, nil
}

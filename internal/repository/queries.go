package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type dbtx interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type queries struct {
	db dbtx
}

type assetRow struct {
	ID         int32
	Ticker     string
	Name       string
	Type       string
	CreatedAt  *time.Time
	ModifiedAt *time.Time
}

type aggregatesParams struct {
	TimeBucket string
	AssetID    int32
	Starttime  time.Time
	Endtime    time.Time
}

type aggregateRow struct {
	Bucket     time.Time
	AssetID    int32
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
	TradeCount int64
}

const getAssetByTicker = `
SELECT id, ticker, name, type, created_at, modified_at
FROM assets
WHERE ticker = $1
LIMIT 1`

func (q *queries) GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error) {
	var a assetRow
	err := q.db.QueryRow(ctx, getAssetByTicker, ticker).Scan(
		&a.ID,
		&a.Ticker,
		&a.Name,
		&a.Type,
		&a.CreatedAt,
		&a.ModifiedAt,
	)
	return a, err
}

// getAggregates rolls minute candles up into time_bucket sized bars.
const getAggregates = `
SELECT time_bucket($1::interval, timestamp) AS bucket,
       asset_id,
       first(open, timestamp)  AS open,
       max(high)               AS high,
       min(low)                AS low,
       last(close, timestamp)  AS close,
       sum(volume)             AS volume,
       coalesce(sum(trade_count), 0)::bigint AS trade_count
FROM candles
WHERE asset_id = $2
  AND timestamp >= $3
  AND timestamp < $4
GROUP BY bucket, asset_id
ORDER BY bucket`

func (q *queries) GetAggregates(ctx context.Context, arg aggregatesParams) ([]aggregateRow, error) {
	rows, err := q.db.Query(ctx, getAggregates, arg.TimeBucket, arg.AssetID, arg.Starttime, arg.Endtime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []aggregateRow
	for rows.Next() {
		var r aggregateRow
		if err := rows.Scan(
			&r.Bucket,
			&r.AssetID,
			&r.Open,
			&r.High,
			&r.Low,
			&r.Close,
			&r.Volume,
			&r.TradeCount,
		); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

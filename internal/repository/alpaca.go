package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"tradesim/internal/market"
	"tradesim/types"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

var _ market.BarProvider = (*AlpacaProvider)(nil)

type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

var alpacaTimeFrames = map[types.Interval]marketdata.TimeFrame{
	types.OneMinute:      marketdata.NewTimeFrame(1, marketdata.Min),
	types.FiveMinutes:    marketdata.NewTimeFrame(5, marketdata.Min),
	types.FifteenMinutes: marketdata.NewTimeFrame(15, marketdata.Min),
	types.ThirtyMinutes:  marketdata.NewTimeFrame(30, marketdata.Min),
	types.Hour:           marketdata.NewTimeFrame(1, marketdata.Hour),
	types.FourHours:      marketdata.NewTimeFrame(4, marketdata.Hour),
	types.Day:            marketdata.NewTimeFrame(1, marketdata.Day),
	types.Week:           marketdata.NewTimeFrame(1, marketdata.Week),
}

// AlpacaProvider loads bars from the Alpaca market data API.
type AlpacaProvider struct {
	client barsClient
	feed   marketdata.Feed
	log    *slog.Logger
}

// NewAlpacaProvider creates a provider for the given credentials. An empty
// dataURL uses the Alpaca default.
func NewAlpacaProvider(apiKey, apiSecret, dataURL string, feed marketdata.Feed) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = marketdata.IEX
	}
	return &AlpacaProvider{
		client: marketdata.NewClient(opts),
		feed:   feed,
		log:    slog.Default().With("component", "alpaca"),
	}
}

func (p *AlpacaProvider) Candles(ctx context.Context, symbol string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tf, ok := alpacaTimeFrames[interval]
	if !ok {
		return nil, fmt.Errorf("%s: %w", interval, ErrIntervalNotSupported)
	}

	bars, err := p.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Adjustment: marketdata.Split,
		Start:      start,
		End:        end,
		Feed:       p.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, interval, ErrNoCandles)
	}

	width := types.IntervalToTime[interval]
	ticker := strings.ToUpper(symbol)
	candles := make([]types.Candle, 0, len(bars))
	for _, ab := range bars {
		// Alpaca stamps the bar open; candles carry the close.
		c, err := types.NewCandle(ticker,
			decimal.NewFromFloat(ab.Open),
			decimal.NewFromFloat(ab.High),
			decimal.NewFromFloat(ab.Low),
			decimal.NewFromFloat(ab.Close),
			decimal.NewFromInt(int64(ab.Volume)),
			int64(ab.TradeCount),
			interval,
			ab.Timestamp.Add(width),
		)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	p.log.Debug("loaded bars", "symbol", ticker, "interval", interval, "count", len(candles))
	return candles, nil
}

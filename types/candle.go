package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidCandle = errors.New("invalid candle")

var two = decimal.NewFromInt(2)
var three = decimal.NewFromInt(3)

// Candle is one OHLCV observation. Timestamp is the close instant of the
// period, kept at microsecond precision.
type Candle struct {
	Symbol     string          `json:"symbol"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
	TradeCount int64           `json:"tradeCount"`
	Interval   Interval        `json:"interval"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewCandle builds a candle and checks that the prices describe a valid range.
func NewCandle(
	symbol string,
	open, high, low, close, volume decimal.Decimal,
	tradeCount int64,
	interval Interval,
	closeTime time.Time,
) (Candle, error) {
	c := Candle{
		Symbol:     symbol,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      close,
		Volume:     volume,
		TradeCount: tradeCount,
		Interval:   interval,
		Timestamp:  closeTime.Truncate(time.Microsecond),
	}
	if err := c.Validate(); err != nil {
		return Candle{}, err
	}
	return c, nil
}

// Validate reports whether low <= min(open,close) <= max(open,close) <= high
// and the volume is not negative.
func (c Candle) Validate() error {
	if c.Low.GreaterThan(decimal.Min(c.Open, c.Close)) || decimal.Max(c.Open, c.Close).GreaterThan(c.High) {
		return fmt.Errorf("%s at %s: range %s-%s does not cover open %s close %s: %w",
			c.Symbol, c.Timestamp.Format(time.RFC3339), c.Low, c.High, c.Open, c.Close, ErrInvalidCandle)
	}
	if c.Volume.IsNegative() {
		return fmt.Errorf("%s at %s: negative volume: %w", c.Symbol, c.Timestamp.Format(time.RFC3339), ErrInvalidCandle)
	}
	return nil
}

func (c Candle) TypicalPrice() decimal.Decimal {
	return c.High.Add(c.Low).Add(c.Close).Div(three)
}

func (c Candle) MidPrice() decimal.Decimal {
	return c.High.Add(c.Low).Div(two)
}

func (c Candle) Range() decimal.Decimal {
	return c.High.Sub(c.Low)
}

func (c Candle) IsBullish() bool {
	return c.Close.GreaterThan(c.Open)
}

func (c Candle) IsBearish() bool {
	return c.Close.LessThan(c.Open)
}

// OpenTime is the start of the period when the interval has a fixed length.
func (c Candle) OpenTime() time.Time {
	d, ok := IntervalToTime[c.Interval]
	if !ok {
		return c.Timestamp
	}
	return c.Timestamp.Add(-d)
}

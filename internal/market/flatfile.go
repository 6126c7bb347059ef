package market

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"tradesim/types"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

var ErrMalformedRow = errors.New("malformed bar row")

// Format selects the on-disk layout of flat-file bars.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	}
	return "", fmt.Errorf("unknown flat-file format %q", s)
}

// FlatFileOption configures NewFlatFileSupplier.
type FlatFileOption func(*flatFileConfig)

type flatFileConfig struct {
	start, end time.Time
}

// WithWindow limits every file to bars stamped within [start, end]. A zero
// bound leaves that side open.
func WithWindow(start, end time.Time) FlatFileOption {
	return func(c *flatFileConfig) {
		c.start = start
		c.end = end
	}
}

// NewFlatFileSupplier reads <dir>/<SYMBOL>.<format> for every symbol. Files
// are opened when the supplier is opened.
func NewFlatFileSupplier(dir string, format Format, symbols []string, interval types.Interval, opts ...FlatFileOption) (*MultiSymbolSupplier, error) {
	if len(symbols) == 0 {
		return nil, errors.New("flat-file supplier needs at least one symbol")
	}
	var cfg flatFileConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	windowed := !cfg.start.IsZero() || !cfg.end.IsZero()

	sources := make([]Source, 0, len(symbols))
	for _, sym := range symbols {
		path := filepath.Join(dir, sym+"."+string(format))
		var src Source
		switch format {
		case FormatCSV:
			src = NewCSVSource(path, sym, interval)
		case FormatParquet:
			src = NewParquetSource(path, sym, interval)
		default:
			return nil, fmt.Errorf("unknown flat-file format %q", format)
		}
		if windowed {
			src = NewWindowSource(src, cfg.start, cfg.end)
		}
		sources = append(sources, src)
	}
	return NewMultiSymbolSupplier(sources...), nil
}

// CSVSource streams bars from a CSV file with a header row naming at least
// timestamp, open, high, low, close and volume. A trade_count column is
// optional. Timestamps are RFC3339 or Unix milliseconds.
type CSVSource struct {
	path     string
	symbol   string
	interval types.Interval

	f      *os.File
	r      *csv.Reader
	cols   map[string]int
	line   int
	closed bool
}

var csvRequired = []string{"timestamp", "open", "high", "low", "close", "volume"}

func NewCSVSource(path, symbol string, interval types.Interval) *CSVSource {
	return &CSVSource{path: path, symbol: symbol, interval: interval}
}

func (s *CSVSource) Open(_ context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.path, err)
	}
	r := csv.NewReader(f)
	r.ReuseRecord = true
	header, err := r.Read()
	if err != nil {
		f.Close()
		return fmt.Errorf("reading header of %s: %w", s.path, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range csvRequired {
		if _, ok := cols[name]; !ok {
			f.Close()
			return fmt.Errorf("%s: missing column %q: %w", s.path, name, ErrMalformedRow)
		}
	}
	s.f, s.r, s.cols, s.line = f, r, cols, 1
	return nil
}

func (s *CSVSource) Next() (types.MarketEvent, bool, error) {
	if s.closed || s.r == nil {
		return nil, false, nil
	}
	row, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", s.path, err)
	}
	s.line++
	c, err := s.parse(row)
	if err != nil {
		return nil, false, fmt.Errorf("%s line %d: %w", s.path, s.line, err)
	}
	return types.NewCandleEvent(c), true, nil
}

func (s *CSVSource) parse(row []string) (types.Candle, error) {
	field := func(name string) string {
		i, ok := s.cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	ts, err := parseTimestamp(field("timestamp"))
	if err != nil {
		return types.Candle{}, err
	}
	var prices [5]decimal.Decimal
	for i, name := range []string{"open", "high", "low", "close", "volume"} {
		prices[i], err = decimal.NewFromString(field(name))
		if err != nil {
			return types.Candle{}, fmt.Errorf("column %s: %w", name, ErrMalformedRow)
		}
	}
	var tradeCount int64
	if v := field("trade_count"); v != "" {
		tradeCount, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return types.Candle{}, fmt.Errorf("column trade_count: %w", ErrMalformedRow)
		}
	}
	return types.NewCandle(s.symbol, prices[0], prices[1], prices[2], prices[3], prices[4], tradeCount, s.interval, ts)
}

func parseTimestamp(v string) (time.Time, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", v, ErrMalformedRow)
	}
	return t, nil
}

func (s *CSVSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}

// BarRecord is the Parquet schema for bar files.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// Candle converts the record, falling back to symbol when the file does not
// carry one.
func (r BarRecord) Candle(symbol string, interval types.Interval) (types.Candle, error) {
	if r.Symbol != "" {
		symbol = r.Symbol
	}
	return types.NewCandle(symbol,
		decimal.NewFromFloat(r.Open),
		decimal.NewFromFloat(r.High),
		decimal.NewFromFloat(r.Low),
		decimal.NewFromFloat(r.Close),
		decimal.NewFromInt(r.Volume),
		r.TradeCount,
		interval,
		time.UnixMilli(r.Timestamp).UTC(),
	)
}

// WriteBarRecords writes records to a Parquet file, creating parent
// directories as needed.
func WriteBarRecords(path string, records []BarRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

const parquetBatch = 256

// ParquetSource streams BarRecords from a Parquet file in batches.
type ParquetSource struct {
	path     string
	symbol   string
	interval types.Interval

	f      *os.File
	r      *parquet.GenericReader[BarRecord]
	buf    []BarRecord
	pos    int
	n      int
	eof    bool
	closed bool
}

func NewParquetSource(path, symbol string, interval types.Interval) *ParquetSource {
	return &ParquetSource{path: path, symbol: symbol, interval: interval}
}

func (s *ParquetSource) Open(_ context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.path, err)
	}
	s.f = f
	s.r = parquet.NewGenericReader[BarRecord](f)
	s.buf = make([]BarRecord, parquetBatch)
	return nil
}

func (s *ParquetSource) Next() (types.MarketEvent, bool, error) {
	if s.closed || s.r == nil {
		return nil, false, nil
	}
	if s.pos >= s.n {
		if s.eof {
			return nil, false, nil
		}
		n, err := s.r.Read(s.buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, false, fmt.Errorf("reading %s: %w", s.path, err)
		}
		s.pos, s.n = 0, n
		s.eof = errors.Is(err, io.EOF)
		if n == 0 {
			return nil, false, nil
		}
	}
	rec := s.buf[s.pos]
	s.pos++
	c, err := rec.Candle(s.symbol, s.interval)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", s.path, err)
	}
	return types.NewCandleEvent(c), true, nil
}

func (s *ParquetSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.r == nil {
		return nil
	}
	return errors.Join(s.r.Close(), s.f.Close())
}

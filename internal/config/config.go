// Package config loads the backtester configuration from YAML, then lets
// well-known environment variables override secrets and paths.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration of one backtest run.
type Config struct {
	Data       Data       `yaml:"data"`
	Simulation Simulation `yaml:"simulation"`
	Strategy   Strategy   `yaml:"strategy"`
	Reporting  Reporting  `yaml:"reporting"`
	Logging    Logging    `yaml:"logging"`
	Profiling  Profiling  `yaml:"profiling"`
}

// Data selects where bars come from.
type Data struct {
	// Source is one of "flatfile", "postgres" or "alpaca".
	Source      string    `yaml:"source"`
	Dir         string    `yaml:"dir"`
	Format      string    `yaml:"format"`
	Symbols     []string  `yaml:"symbols"`
	Interval    string    `yaml:"interval"`
	Start       time.Time `yaml:"start"`
	End         time.Time `yaml:"end"`
	DatabaseURL string    `yaml:"database_url"`
	Alpaca      Alpaca    `yaml:"alpaca"`

	// Bootstrap replays a resampled path instead of the recorded one. Without
	// a seed every run draws a different path.
	Bootstrap bool    `yaml:"bootstrap"`
	Seed      *uint64 `yaml:"seed"`
}

// Alpaca holds credentials and endpoints for the market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Simulation configures accounts and the matching simulator. Decimal fields
// must be quoted in YAML.
type Simulation struct {
	InitialCash   decimal.Decimal `yaml:"initial_cash"`
	Credit        decimal.Decimal `yaml:"credit"`
	AllowShort    bool            `yaml:"allow_short"`
	PollLimit     int             `yaml:"poll_limit"`
	Matcher       string          `yaml:"matcher"`
	Participation decimal.Decimal `yaml:"participation"`
	Commission    Commission      `yaml:"commission"`
}

// Commission selects a fee schedule. Kind is "none", "percentage",
// "ibkr_nl_fixed_usd" or "ibkr_forex".
type Commission struct {
	Kind string          `yaml:"kind"`
	Rate decimal.Decimal `yaml:"rate"`
	Min  decimal.Decimal `yaml:"min"`
	Max  decimal.Decimal `yaml:"max"`
}

// Strategy holds the Donchian breakout parameters.
type Strategy struct {
	Name            string          `yaml:"name"`
	Account         string          `yaml:"account"`
	EntryPeriod     int             `yaml:"entry_period"`
	ExitPeriod      int             `yaml:"exit_period"`
	ATRPeriod       int             `yaml:"atr_period"`
	ATRMultiplier   decimal.Decimal `yaml:"atr_multiplier"`
	PositionPercent decimal.Decimal `yaml:"position_percent"`
}

// Reporting controls what is produced after the run.
type Reporting struct {
	RiskFreeRate decimal.Decimal `yaml:"risk_free_rate"`
	ShowProgress bool            `yaml:"show_progress"`
	WriteCSV     bool            `yaml:"write_csv"`
	Name         string          `yaml:"name"`
	Dir          string          `yaml:"dir"`
	JournalPath  string          `yaml:"journal_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Profiling enables the continuous profiler when PyroscopeAddress is set.
type Profiling struct {
	PyroscopeAddress string `yaml:"pyroscope_address"`
	ApplicationName  string `yaml:"application_name"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the values used for every key the file leaves out.
func Default() *Config {
	return &Config{
		Data: Data{
			Source:   "flatfile",
			Dir:      "data",
			Format:   "csv",
			Interval: "D",
			Alpaca: Alpaca{
				Feed: "iex",
			},
		},
		Simulation: Simulation{
			InitialCash: decimal.NewFromInt(10000),
			PollLimit:   64,
			Matcher:     "ohlc",
			Commission: Commission{
				Kind: "none",
			},
		},
		Strategy: Strategy{
			Name:            "donchian",
			EntryPeriod:     20,
			ExitPeriod:      20,
			ATRPeriod:       20,
			ATRMultiplier:   decimal.NewFromInt(2),
			PositionPercent: decimal.RequireFromString("0.1"),
		},
		Reporting: Reporting{
			Dir: ".",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Profiling: Profiling{
			ApplicationName: "tradesim",
		},
	}
}

// Load reads the YAML configuration file at the given path over the defaults,
// applies environment variable overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADESIM_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("TRADESIM_DATABASE_URL"); v != "" {
		cfg.Data.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars, the names the SDK itself reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Data.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Data.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate reports the first setting that cannot produce a run.
func (c *Config) Validate() error {
	if len(c.Data.Symbols) == 0 {
		return fmt.Errorf("data.symbols is empty: %w", ErrInvalid)
	}
	switch c.Data.Source {
	case "flatfile":
		if c.Data.Dir == "" {
			return fmt.Errorf("data.dir is required for flatfile: %w", ErrInvalid)
		}
		switch strings.ToLower(c.Data.Format) {
		case "csv", "parquet":
		default:
			return fmt.Errorf("data.format %q: %w", c.Data.Format, ErrInvalid)
		}
	case "postgres":
		if c.Data.DatabaseURL == "" {
			return fmt.Errorf("data.database_url is required for postgres: %w", ErrInvalid)
		}
	case "alpaca":
		if c.Data.Alpaca.APIKey == "" || c.Data.Alpaca.APISecret == "" {
			return fmt.Errorf("alpaca credentials are required: %w", ErrInvalid)
		}
	default:
		return fmt.Errorf("data.source %q: %w", c.Data.Source, ErrInvalid)
	}
	if c.Data.Source != "flatfile" && (c.Data.Start.IsZero() || c.Data.End.IsZero()) {
		return fmt.Errorf("data.start and data.end are required for %s: %w", c.Data.Source, ErrInvalid)
	}
	if !c.Data.End.IsZero() && c.Data.End.Before(c.Data.Start) {
		return fmt.Errorf("data.end %s before data.start %s: %w", c.Data.End, c.Data.Start, ErrInvalid)
	}

	sim := c.Simulation
	if !sim.InitialCash.IsPositive() {
		return fmt.Errorf("simulation.initial_cash %s: %w", sim.InitialCash, ErrInvalid)
	}
	if sim.Credit.IsNegative() {
		return fmt.Errorf("simulation.credit %s: %w", sim.Credit, ErrInvalid)
	}
	if sim.PollLimit < 0 {
		return fmt.Errorf("simulation.poll_limit %d: %w", sim.PollLimit, ErrInvalid)
	}
	switch sim.Matcher {
	case "ohlc", "none":
	default:
		return fmt.Errorf("simulation.matcher %q: %w", sim.Matcher, ErrInvalid)
	}
	if sim.Participation.IsNegative() || sim.Participation.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("simulation.participation %s: %w", sim.Participation, ErrInvalid)
	}
	switch sim.Commission.Kind {
	case "none", "ibkr_nl_fixed_usd", "ibkr_forex":
	case "percentage":
		if sim.Commission.Rate.IsNegative() || sim.Commission.Min.IsNegative() || sim.Commission.Max.IsNegative() {
			return fmt.Errorf("simulation.commission has a negative amount: %w", ErrInvalid)
		}
	default:
		return fmt.Errorf("simulation.commission.kind %q: %w", sim.Commission.Kind, ErrInvalid)
	}

	st := c.Strategy
	if st.Name != "donchian" {
		return fmt.Errorf("strategy.name %q: %w", st.Name, ErrInvalid)
	}
	if st.EntryPeriod <= 0 || st.ExitPeriod <= 0 || st.ATRPeriod <= 0 {
		return fmt.Errorf("strategy periods must be positive: %w", ErrInvalid)
	}
	if !st.PositionPercent.IsPositive() || st.PositionPercent.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("strategy.position_percent %s: %w", st.PositionPercent, ErrInvalid)
	}
	return nil
}

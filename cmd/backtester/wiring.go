package main

import (
	"context"
	"fmt"
	"tradesim/internal/config"
	"tradesim/internal/market"
	"tradesim/internal/matching"
	"tradesim/internal/repository"
	"tradesim/types"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// buildSupplier returns the configured market supplier and a cleanup func for
// whatever connection backs it.
func buildSupplier(ctx context.Context, cfg config.Data) (market.Supplier, func(), error) {
	noop := func() {}
	interval, err := types.ParseInterval(cfg.Interval)
	if err != nil {
		return nil, noop, err
	}

	var supplier market.Supplier
	cleanup := noop
	switch cfg.Source {
	case "flatfile":
		format, err := market.ParseFormat(cfg.Format)
		if err != nil {
			return nil, noop, err
		}
		supplier, err = market.NewFlatFileSupplier(cfg.Dir, format, cfg.Symbols, interval,
			market.WithWindow(cfg.Start, cfg.End))
		if err != nil {
			return nil, noop, err
		}
	case "postgres":
		db, err := repository.NewDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("connect database: %w", err)
		}
		cleanup = db.Close
		supplier = market.NewProviderSupplier(db, cfg.Symbols, interval, cfg.Start, cfg.End)
	case "alpaca":
		p := repository.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, marketdata.Feed(cfg.Alpaca.Feed))
		supplier = market.NewProviderSupplier(p, cfg.Symbols, interval, cfg.Start, cfg.End)
	default:
		return nil, noop, fmt.Errorf("unknown data source %q", cfg.Source)
	}

	if cfg.Bootstrap {
		supplier = market.NewBootstrapSupplier(supplier, bootstrapOptions(cfg)...)
	}
	return supplier, cleanup, nil
}

// bootstrapOptions fixes the seed when one is configured, zero included.
func bootstrapOptions(cfg config.Data) []market.BootstrapOption {
	if cfg.Seed == nil {
		return nil
	}
	return []market.BootstrapOption{market.WithSeed(*cfg.Seed)}
}

func buildMatcher(cfg config.Simulation) (matching.TriggerMatcher, error) {
	switch cfg.Matcher {
	case "ohlc":
		return matching.OHLCTrigger{Participation: cfg.Participation}, nil
	case "none":
		return matching.NoTrigger{}, nil
	default:
		return nil, fmt.Errorf("unknown matcher %q", cfg.Matcher)
	}
}

func buildCommission(cfg config.Commission) (matching.CommissionModel, error) {
	switch cfg.Kind {
	case "", "none":
		return matching.NoCommission{}, nil
	case "percentage":
		return matching.PercentageCommission{Rate: cfg.Rate, Min: cfg.Min, Max: cfg.Max}, nil
	case "ibkr_nl_fixed_usd":
		return matching.IBKRNetherlandsFixedUSD(), nil
	case "ibkr_forex":
		return matching.IBKRForexTier1(), nil
	default:
		return nil, fmt.Errorf("unknown commission kind %q", cfg.Kind)
	}
}

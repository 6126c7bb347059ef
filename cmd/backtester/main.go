package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	"tradesim/internal/config"
	"tradesim/internal/engine"
	"tradesim/internal/journal"
	"tradesim/internal/util"
	"tradesim/strategies/donchian"

	"github.com/google/uuid"
	"github.com/grafana/pyroscope-go"
)

func main() {
	configPath := flag.String("config", "tradesim.yaml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("backtest failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if addr := cfg.Profiling.PyroscopeAddress; addr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.ApplicationName,
			ServerAddress:   addr,
			Logger:          pyroscopeLogger{logger.With("component", "pyroscope")},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return fmt.Errorf("pyroscope start: %w", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	supplier, cleanup, err := buildSupplier(ctx, cfg.Data)
	if err != nil {
		return err
	}
	defer cleanup()

	matcher, err := buildMatcher(cfg.Simulation)
	if err != nil {
		return err
	}
	commission, err := buildCommission(cfg.Simulation.Commission)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	opts := []engine.Option{
		engine.WithRunID(runID),
		engine.WithLogger(logger.With("component", "engine")),
		engine.WithPortfolioConfig(
			engine.NewPortfolioConfig(cfg.Simulation.InitialCash, cfg.Simulation.AllowShort).
				WithCredit(cfg.Simulation.Credit)),
		engine.WithSimulationConfig(
			engine.NewSimulationConfig(cfg.Data.Start, cfg.Data.End, cfg.Simulation.PollLimit).
				WithTriggerMatcher(matcher).
				WithCommission(commission)),
		engine.WithReportingConfig(
			engine.NewReportingConfig(cfg.Reporting.RiskFreeRate, cfg.Reporting.WriteCSV, cfg.Reporting.Name, cfg.Reporting.Dir).
				WithProgress(cfg.Reporting.ShowProgress)),
	}

	// the journal reads the engine clock, which exists only once the engine does
	var eng *engine.Engine
	var jrnl *journal.SQLite
	if path := cfg.Reporting.JournalPath; path != "" {
		jrnl, err = journal.NewSQLite(ctx, path, runID,
			journal.WithClock(func() time.Time { return eng.Now() }),
			journal.WithLogger(logger.With("component", "journal")))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			if err := jrnl.Close(); err != nil {
				logger.Error("close journal", "error", err)
			}
		}()
		opts = append(opts, engine.WithReportHandler(jrnl))
	}

	strategy := donchian.New(donchian.Params{
		EntryPeriod:     cfg.Strategy.EntryPeriod,
		ExitPeriod:      cfg.Strategy.ExitPeriod,
		ATRPeriod:       cfg.Strategy.ATRPeriod,
		ATRMultiplier:   cfg.Strategy.ATRMultiplier,
		PositionPercent: cfg.Strategy.PositionPercent,
		Account:         cfg.Strategy.Account,
	})

	eng, err = engine.NewEngine(supplier, strategy, opts...)
	if err != nil {
		return err
	}
	report, err := eng.Run(ctx)
	if err != nil {
		return err
	}
	report.Print(os.Stdout)

	if jrnl != nil {
		return finishJournal(ctx, jrnl, report)
	}
	return nil
}

// finishJournal stores the run summary and returns the first write error the
// journal kept during the run.
func finishJournal(ctx context.Context, jrnl *journal.SQLite, report *engine.BacktestReport) error {
	if err := jrnl.SaveReport(ctx, report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	if err := jrnl.Err(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

// pyroscopeLogger routes profiler messages into slog.
type pyroscopeLogger struct {
	l *slog.Logger
}

func (p pyroscopeLogger) Infof(format string, args ...interface{}) {
	p.l.Info(fmt.Sprintf(format, args...))
}

func (p pyroscopeLogger) Debugf(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

func (p pyroscopeLogger) Errorf(format string, args ...interface{}) {
	p.l.Error(fmt.Sprintf(format, args...))
}

// Package engine runs one algorithm over one market stream. The loop is
// single-threaded: every event is fully processed by the trade connector, the
// matching simulator, the valuator and the algorithm before the next one is
// read.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
	"tradesim/internal/account"
	"tradesim/internal/clock"
	"tradesim/internal/market"
	"tradesim/internal/matching"
	"tradesim/types"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
)

var (
	ErrAlreadyRun = errors.New("engine already run")
	ErrNoSupplier = errors.New("engine needs a market supplier")
	ErrNoAlgo     = errors.New("engine needs an algorithm")
)

// runSequence numbers runs within the process.
var runSequence atomic.Int64

type Engine struct {
	supplier market.Supplier
	algo     Algorithm

	clock     *clock.Playback
	ledger    *account.Ledger
	valuator  *account.Valuator
	simulator *matching.Simulator
	connector *tradeConnector
	worker    *algorithmWorker

	portfolioConfig  *PortfolioConfig
	simulationConfig *SimulationConfig
	reportingConfig  *ReportingConfig
	sinks            []matching.ReportHandler
	logger           *slog.Logger

	runID      string
	ran        bool
	shutdown   bool
	events     int
	lastSample time.Time
	snapshots  []types.AccountView
	progress   *progressbar.ProgressBar
}

type Option func(*Engine)

func WithPortfolioConfig(c *PortfolioConfig) Option {
	return func(e *Engine) { e.portfolioConfig = c }
}

func WithSimulationConfig(c *SimulationConfig) Option {
	return func(e *Engine) { e.simulationConfig = c }
}

func WithReportingConfig(c *ReportingConfig) Option {
	return func(e *Engine) { e.reportingConfig = c }
}

// WithReportHandler adds a sink that sees every order report after the
// ledger has booked it.
func WithReportHandler(h matching.ReportHandler) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, h) }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

func NewEngine(supplier market.Supplier, algo Algorithm, opts ...Option) (*Engine, error) {
	if supplier == nil {
		return nil, ErrNoSupplier
	}
	if algo == nil {
		return nil, ErrNoAlgo
	}
	e := &Engine{
		supplier:         supplier,
		algo:             algo,
		portfolioConfig:  NewPortfolioConfig(decimal.NewFromInt(100_000), true),
		simulationConfig: NewSimulationConfig(time.Time{}, time.Time{}, defaultPollLimit),
		reportingConfig:  NewReportingConfig(decimal.Zero, false, "", ""),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default().With("component", "engine")
	}
	if e.runID == "" {
		e.runID = uuid.NewString()
	}

	e.clock = clock.NewPlayback(e.simulationConfig.start)
	e.ledger = account.NewLedger(e.portfolioConfig.initialCash,
		account.WithCredit(e.portfolioConfig.credit),
		account.WithLogger(e.logger),
	)
	e.valuator = account.NewValuator(e.ledger)
	e.worker = newAlgorithmWorker(algo)

	handlers := matching.ReportHandlers{e.ledger}
	handlers = append(handlers, e.sinks...)
	handlers = append(handlers, e.worker)
	e.simulator = matching.NewSimulator(handlers,
		matching.WithTriggerMatcher(e.simulationConfig.matcher),
		matching.WithCommission(e.simulationConfig.commission),
		matching.WithExposureChecker(e.ledger),
		matching.WithLogger(e.logger),
		matching.WithExecutionPrefix(e.runID[:min(8, len(e.runID))]),
	)
	e.connector = newTradeConnector(e.simulator, e.clock, e.portfolioConfig.allowShortSelling, e.logger)
	return e, nil
}

func (e *Engine) RunID() string { return e.runID }

// Ledger exposes the accounts of the run.
func (e *Engine) Ledger() *account.Ledger { return e.ledger }

// Now is the playback time of the last delivered event.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// Run replays the supplier through the algorithm until the supplier is
// exhausted, the algorithm shuts down or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) (report *BacktestReport, err error) {
	if e.ran {
		return nil, ErrAlreadyRun
	}
	e.ran = true
	started := time.Now()
	e.logger.Info("backtest starting", "run_id", e.runID)

	api := &engineAPI{engine: e}
	if err := e.algo.OnInit(api); err != nil {
		return nil, fmt.Errorf("algorithm init: %w", err)
	}
	if err := e.algo.OnAfterInit(); err != nil {
		return nil, fmt.Errorf("algorithm after init: %w", err)
	}

	defer func() {
		closeErr := errors.Join(e.supplier.Close(), e.simulator.Close())
		if err == nil && closeErr != nil {
			report, err = nil, fmt.Errorf("close: %w", closeErr)
		}
	}()
	if err := e.supplier.Open(ctx); err != nil {
		return nil, fmt.Errorf("open supplier: %w", err)
	}

	if e.reportingConfig.showProgress {
		e.progress = e.initProgressBar()
	}
	if err := e.loop(ctx); err != nil {
		return nil, err
	}
	if e.progress != nil {
		_ = e.progress.Finish()
	}

	report = e.generateReport(started)
	e.algo.OnExit(report)
	if e.reportingConfig.printTrades {
		if err := e.writeReportFiles(report); err != nil {
			return nil, err
		}
	}
	e.logger.Info("backtest finished",
		"run_id", e.runID,
		"events", e.events,
		"net_profit", report.NetProfit.String(),
		"elapsed_seconds", report.ElapsedSeconds,
	)
	return report, nil
}

func (e *Engine) loop(ctx context.Context) error {
	limit := e.simulationConfig.pollLimit
	for !e.shutdown {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := e.supplier.Poll(e.onEvent, limit)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		e.sample()
	}
	e.logger.Info("backtest shut down by algorithm", "run_id", e.runID, "at", e.clock.Now())
	return nil
}

// onEvent runs the fixed per-event sequence.
func (e *Engine) onEvent(ev types.MarketEvent) error {
	if err := e.clock.Set(ev.Time()); err != nil {
		return fmt.Errorf("%s event for %s: %w", ev.Kind(), ev.Symbol(), err)
	}
	e.events++
	if err := e.connector.work(); err != nil {
		return err
	}
	if err := e.simulator.OnEvent(ev); err != nil {
		return err
	}
	if err := e.ledger.Err(); err != nil {
		return err
	}
	e.valuator.OnEvent(ev)
	if err := e.worker.onEvent(ev, e.connector); err != nil {
		return err
	}
	e.advanceProgress()
	return nil
}

// sample records the combined account state once per instant.
func (e *Engine) sample() {
	now := e.clock.Now()
	if len(e.snapshots) > 0 && now.Equal(e.lastSample) {
		return
	}
	e.lastSample = now
	e.snapshots = append(e.snapshots, combinedView(e.ledger.Views(), now))
}

// combinedView sums every account into one view.
func combinedView(views []types.AccountView, at time.Time) types.AccountView {
	total := types.AccountView{
		Name:      "total",
		Positions: make(map[string]types.PositionSnapshot),
		Time:      at,
	}
	for _, v := range views {
		total.Balance = total.Balance.Add(v.Balance)
		total.Credit = total.Credit.Add(v.Credit)
		total.Profit = total.Profit.Add(v.Profit)
		total.RealizedProfit = total.RealizedProfit.Add(v.RealizedProfit)
		total.Equity = total.Equity.Add(v.Equity)
		for sym, p := range v.Positions {
			total.Positions[v.Name+"/"+sym] = p
		}
	}
	return total
}

func (e *Engine) initProgressBar() *progressbar.ProgressBar {
	maxTicks := int64(-1)
	cfg := e.simulationConfig
	if !cfg.start.IsZero() && cfg.end.After(cfg.start) {
		maxTicks = int64(cfg.end.Sub(cfg.start).Hours())
	}
	return initProgressBar(maxTicks)
}

func (e *Engine) advanceProgress() {
	if e.progress == nil {
		return
	}
	start := e.simulationConfig.start
	if start.IsZero() {
		_ = e.progress.Add(1)
		return
	}
	_ = e.progress.Set64(int64(e.clock.Now().Sub(start).Hours()))
}

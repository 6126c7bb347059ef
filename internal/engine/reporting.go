package engine

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
	"tradesim/internal/account"
	"tradesim/types"

	"github.com/shopspring/decimal"
)

// BacktestReport is returned once per completed run.
type BacktestReport struct {
	// Run identity
	RunID          string
	Sequence       int64
	CompletedAt    time.Time
	ElapsedSeconds float64
	Events         int

	// Period info
	StartDate   time.Time
	EndDate     time.Time
	TotalPeriod time.Duration
	TotalTrades int
	Winning     int
	Losing      int

	// Absolute performance
	StartEquity          decimal.Decimal
	EndEquity            decimal.Decimal
	NetProfit            decimal.Decimal
	RealizedProfit       decimal.Decimal
	NetAvgProfitPerTrade decimal.Decimal
	CAGR                 decimal.Decimal

	// Trade-level distribution metrics
	AvgWin  decimal.Decimal
	AvgLoss decimal.Decimal

	// Drawdown & loss streak metrics
	MaxDrawdown          decimal.Decimal
	MaxDrawdownPercent   decimal.Decimal
	MaxDrawdownDays      time.Duration
	MaxConsecutiveLosses int

	// Risk-adjusted metrics
	SharpeRatio  decimal.Decimal
	SortinoRatio decimal.Decimal
	ProfitFactor decimal.Decimal

	// Costs
	TotalFees decimal.Decimal

	Account      types.AccountView
	Transactions []account.Transaction
	Executions   []types.ExecutionReport
}

// Print writes a human readable summary.
func (r *BacktestReport) Print(w io.Writer) {
	fmt.Fprintln(w, "===== Trading Report =====")
	fmt.Fprintf(w, "Run:                   %s (#%d)\n", r.RunID, r.Sequence)
	fmt.Fprintf(w, "Start Date:            %s\n", r.StartDate.Format("2006-01-02"))
	fmt.Fprintf(w, "End Date:              %s\n", r.EndDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Total Period:          %d days\n", r.TotalPeriod/(24*time.Hour))
	fmt.Fprintf(w, "Events:                %d\n", r.Events)
	fmt.Fprintf(w, "Total Trades:          %d (%d won, %d lost)\n", r.TotalTrades, r.Winning, r.Losing)

	fmt.Fprintln(w, "\n-- Absolute Performance --")
	fmt.Fprintf(w, "Start Equity:          %s\n", r.StartEquity.StringFixed(2))
	fmt.Fprintf(w, "End Equity:            %s\n", r.EndEquity.StringFixed(2))
	fmt.Fprintf(w, "Net Profit:            %s\n", r.NetProfit.StringFixed(2))
	fmt.Fprintf(w, "Realized Profit:       %s\n", r.RealizedProfit.StringFixed(2))
	fmt.Fprintf(w, "Avg Profit/Trade:      %s\n", r.NetAvgProfitPerTrade.StringFixed(2))
	fmt.Fprintf(w, "CAGR:                  %s\n", r.CAGR.StringFixed(4))

	fmt.Fprintln(w, "\n-- Trade-Level Metrics --")
	fmt.Fprintf(w, "Avg Win:               %s\n", r.AvgWin.StringFixed(2))
	fmt.Fprintf(w, "Avg Loss:              %s\n", r.AvgLoss.StringFixed(2))

	fmt.Fprintln(w, "\n-- Drawdown Metrics --")
	fmt.Fprintf(w, "Max Drawdown:          %s\n", r.MaxDrawdown.StringFixed(2))
	fmt.Fprintf(w, "Max Drawdown %%:        %s\n", r.MaxDrawdownPercent.StringFixed(4))
	fmt.Fprintf(w, "Max Drawdown Days:     %v\n", r.MaxDrawdownDays)
	fmt.Fprintf(w, "Max Consecutive Losses:%d\n", r.MaxConsecutiveLosses)

	fmt.Fprintln(w, "\n-- Risk-Adjusted Metrics --")
	fmt.Fprintf(w, "Sharpe Ratio:          %s\n", r.SharpeRatio.StringFixed(4))
	fmt.Fprintf(w, "Sortino Ratio:         %s\n", r.SortinoRatio.StringFixed(4))
	fmt.Fprintf(w, "Profit Factor:         %s\n", r.ProfitFactor.StringFixed(4))

	fmt.Fprintln(w, "\n-- Costs --")
	fmt.Fprintf(w, "Total Fees:            %s\n", r.TotalFees.StringFixed(2))

	fmt.Fprintf(w, "\nElapsed:               %.3fs\n", r.ElapsedSeconds)
	fmt.Fprintln(w, "==========================")
}

func (e *Engine) generateReport(started time.Time) *BacktestReport {
	trades := e.transactions()
	snapshots := e.snapshots
	end := e.clock.Now()

	report := &BacktestReport{
		RunID:        e.runID,
		Sequence:     runSequence.Add(1),
		Events:       e.events,
		StartDate:    e.simulationConfig.start,
		EndDate:      end,
		TotalTrades:  len(trades),
		StartEquity:  e.portfolioConfig.initialCash.Add(e.portfolioConfig.credit),
		Account:      combinedView(e.ledger.Views(), end),
		Transactions: trades,
		Executions:   e.worker.executions,
	}
	if report.StartDate.IsZero() && len(snapshots) > 0 {
		report.StartDate = snapshots[0].Time
	}
	if !report.StartDate.IsZero() && end.After(report.StartDate) {
		report.TotalPeriod = end.Sub(report.StartDate).Truncate(time.Hour * 24)
	}
	report.EndEquity = report.Account.Equity
	report.NetProfit = report.EndEquity.Sub(report.StartEquity)
	for _, tr := range trades {
		switch {
		case tr.NetProfit().IsPositive():
			report.Winning++
		case tr.NetProfit().IsNegative():
			report.Losing++
		}
	}

	var wg sync.WaitGroup
	wg.Add(10)
	go func() {
		report.RealizedProfit = calcNetProfit(trades, &wg)
	}()
	go func() {
		report.NetAvgProfitPerTrade = calcNetAvgProfitPerTrade(trades, &wg)
	}()
	go func() {
		report.AvgWin, report.AvgLoss = calcAvgWinLossPerTrade(trades, &wg)
	}()
	go func() {
		report.CAGR = calcCAGR(snapshots, &wg)
	}()
	go func() {
		report.MaxDrawdown, report.MaxDrawdownPercent, report.MaxDrawdownDays = calcDrawdownMetrics(snapshots, &wg)
	}()
	go func() {
		report.MaxConsecutiveLosses = calcMaxConsecutiveLosses(trades, &wg)
	}()
	go func() {
		report.SharpeRatio = calcSharpeRatio(snapshots, e.reportingConfig.sharpeRiskFreeRate, &wg)
	}()
	go func() {
		report.SortinoRatio = calcSortinoRatio(snapshots, e.reportingConfig.sharpeRiskFreeRate, &wg)
	}()
	go func() {
		report.ProfitFactor = calcProfitFactor(trades, &wg)
	}()
	go func() {
		report.TotalFees = calcTotalFees(report.Executions, &wg)
	}()
	wg.Wait()

	report.CompletedAt = time.Now()
	report.ElapsedSeconds = report.CompletedAt.Sub(started).Seconds()
	return report
}

// transactions gathers the closed trades of every account ordered by exit.
func (e *Engine) transactions() []account.Transaction {
	var out []account.Transaction
	for _, a := range e.ledger.Accounts() {
		out = append(out, a.Transactions()...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExitTime.Equal(out[j].ExitTime) {
			return out[i].ExitTime.Before(out[j].ExitTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func calcNetProfit(trades []account.Transaction, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()

	net := decimal.Zero
	for _, tr := range trades {
		net = net.Add(tr.NetProfit())
	}
	return net
}

func calcNetAvgProfitPerTrade(trades []account.Transaction, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()

	if len(trades) == 0 {
		return decimal.Zero
	}
	net := decimal.Zero
	for _, tr := range trades {
		net = net.Add(tr.NetProfit())
	}
	return net.Div(decimal.NewFromInt(int64(len(trades))))
}

func calcCAGR(snapshots []types.AccountView, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()
	if len(snapshots) < 2 {
		return decimal.Zero
	}

	startSnap := snapshots[0]
	endSnap := snapshots[len(snapshots)-1]

	// CAGR is not defined for a non-positive start
	if !startSnap.Equity.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}

	duration := endSnap.Time.Sub(startSnap.Time)
	if duration <= 0 {
		return decimal.Zero
	}
	years := duration.Hours() / (24.0 * 365.25)

	ratio := endSnap.Equity.Div(startSnap.Equity)
	if !ratio.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}

	cagrFloat := math.Pow(ratio.InexactFloat64(), 1.0/years) - 1.0
	return decimal.NewFromFloat(cagrFloat)
}

func calcAvgWinLossPerTrade(trades []account.Transaction, wg *sync.WaitGroup) (decimal.Decimal, decimal.Decimal) {
	defer wg.Done()

	sumWins := decimal.Zero
	sumLosses := decimal.Zero // absolute
	winCount := 0
	lossCount := 0

	for _, tr := range trades {
		net := tr.NetProfit()
		switch {
		case net.GreaterThan(decimal.Zero):
			sumWins = sumWins.Add(net)
			winCount++
		case net.LessThan(decimal.Zero):
			sumLosses = sumLosses.Add(net.Abs())
			lossCount++
		}
	}

	avgWin := decimal.Zero
	avgLoss := decimal.Zero
	if winCount > 0 {
		avgWin = sumWins.Div(decimal.NewFromInt(int64(winCount)))
	}
	if lossCount > 0 {
		avgLoss = sumLosses.Div(decimal.NewFromInt(int64(lossCount)))
	}
	return avgWin, avgLoss
}

// calcDrawdownMetrics expects snapshots in chronological order.
func calcDrawdownMetrics(
	snapshots []types.AccountView,
	wg *sync.WaitGroup,
) (decimal.Decimal, decimal.Decimal, time.Duration) {
	defer wg.Done()

	if len(snapshots) == 0 {
		return decimal.Zero, decimal.Zero, 0
	}

	peak := decimal.Zero
	var peakTime time.Time

	maxDD := decimal.Zero
	maxDDPct := decimal.Zero
	var maxDDDuration time.Duration

	for i, snap := range snapshots {
		equity := snap.Equity

		if i == 0 || equity.GreaterThan(peak) || peak.IsZero() {
			peak = equity
			peakTime = snap.Time
		}

		if peak.GreaterThan(decimal.Zero) {
			dd := peak.Sub(equity)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
				maxDDPct = dd.Div(peak)
				maxDDDuration = snap.Time.Sub(peakTime)
			}
		}
	}

	return maxDD, maxDDPct, maxDDDuration
}

// calcMaxConsecutiveLosses expects trades ordered by exit time.
func calcMaxConsecutiveLosses(trades []account.Transaction, wg *sync.WaitGroup) int {
	defer wg.Done()

	maxLossStreak := 0
	currentStreak := 0
	for _, tr := range trades {
		if tr.NetProfit().LessThan(decimal.Zero) {
			currentStreak++
			if currentStreak > maxLossStreak {
				maxLossStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxLossStreak
}

func calcProfitFactor(trades []account.Transaction, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()

	gains := decimal.Zero
	losses := decimal.Zero
	for _, tr := range trades {
		net := tr.NetProfit()
		if net.IsPositive() {
			gains = gains.Add(net)
		} else {
			losses = losses.Add(net.Abs())
		}
	}
	if losses.IsZero() {
		return decimal.Zero
	}
	return gains.Div(losses)
}

func calcTotalFees(executions []types.ExecutionReport, wg *sync.WaitGroup) decimal.Decimal {
	defer wg.Done()

	fees := decimal.Zero
	for _, exec := range executions {
		fees = fees.Add(exec.Fee)
	}
	return fees
}

// monthlyExcessReturns converts month-end returns into excess returns over the
// monthly equivalent of the annual risk-free rate.
func monthlyExcessReturns(snapshots []types.AccountView, annualRiskFree decimal.Decimal) []float64 {
	monthlyReturns := getMonthlyReturns(snapshots)
	if len(monthlyReturns) < 2 {
		return nil
	}

	// rf_monthly = (1 + rf_annual)^(1/12) - 1
	rfMonthly := math.Pow(1.0+annualRiskFree.InexactFloat64(), 1.0/12.0) - 1.0

	excess := make([]float64, 0, len(monthlyReturns))
	for _, r := range monthlyReturns {
		excess = append(excess, r.InexactFloat64()-rfMonthly)
	}
	return excess
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func calcSharpeRatio(
	snapshots []types.AccountView,
	annualRiskFree decimal.Decimal,
	wg *sync.WaitGroup,
) decimal.Decimal {
	defer wg.Done()
	excess := monthlyExcessReturns(snapshots, annualRiskFree)
	if len(excess) < 2 {
		return decimal.Zero
	}

	meanMonthlyExcess := mean(excess)

	// Sample standard deviation
	var varianceSum float64
	for _, x := range excess {
		diff := x - meanMonthlyExcess
		varianceSum += diff * diff
	}
	stdMonthly := math.Sqrt(varianceSum / float64(len(excess)-1))
	if stdMonthly < 1e-12 {
		return decimal.Zero
	}

	sharpeAnnual := meanMonthlyExcess / stdMonthly * math.Sqrt(12.0)
	return decimal.NewFromFloat(sharpeAnnual)
}

// calcSortinoRatio is the Sharpe ratio with only downside months in the
// deviation. Zero when no month fell below the risk-free rate.
func calcSortinoRatio(
	snapshots []types.AccountView,
	annualRiskFree decimal.Decimal,
	wg *sync.WaitGroup,
) decimal.Decimal {
	defer wg.Done()
	excess := monthlyExcessReturns(snapshots, annualRiskFree)
	if len(excess) < 2 {
		return decimal.Zero
	}

	var downsideSum float64
	for _, x := range excess {
		if x < 0 {
			downsideSum += x * x
		}
	}
	downside := math.Sqrt(downsideSum / float64(len(excess)))
	if downside < 1e-12 {
		return decimal.Zero
	}

	sortinoAnnual := mean(excess) / downside * math.Sqrt(12.0)
	return decimal.NewFromFloat(sortinoAnnual)
}

// getMonthlyReturns returns the returns between consecutive month-end equity
// values. The input is not reordered.
func getMonthlyReturns(snapshots []types.AccountView) []decimal.Decimal {
	if len(snapshots) == 0 {
		return nil
	}

	sorted := append([]types.AccountView(nil), snapshots...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	type monthKey struct {
		year  int
		month time.Month
	}

	// Last snapshot of every calendar month
	var keys []monthKey
	last := make(map[monthKey]types.AccountView)
	for _, snap := range sorted {
		y, m, _ := snap.Time.Date()
		key := monthKey{year: y, month: m}
		if _, ok := last[key]; !ok {
			keys = append(keys, key)
		}
		last[key] = snap
	}

	if len(keys) < 2 {
		return nil
	}

	returns := make([]decimal.Decimal, 0, len(keys)-1)
	prev := last[keys[0]].Equity
	for _, k := range keys[1:] {
		curr := last[k].Equity
		if !prev.GreaterThan(decimal.Zero) {
			prev = curr
			continue
		}
		returns = append(returns, curr.Div(prev).Sub(decimal.NewFromInt(1)))
		prev = curr
	}
	return returns
}

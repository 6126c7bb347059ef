package engine

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
	"tradesim/internal/account"
	"tradesim/types"

	"github.com/shopspring/decimal"
)

func TestCalcNetProfit(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		trades []account.Transaction
		want   decimal.Decimal
	}{
		{
			name:   "no trades -> zero",
			trades: nil,
			want:   decimal.RequireFromString("0"),
		},
		{
			name: "single long winner with fees",
			// (110 - 100) * 1 - 1
			trades: []account.Transaction{
				newTx(base, "100", "110", "1", "1"),
			},
			want: decimal.RequireFromString("9"),
		},
		{
			name: "winner and loser net out",
			trades: []account.Transaction{
				newTx(base, "100", "110", "1", "0"),
				newTx(base.AddDate(0, 0, 1), "100", "90", "1", "0.5"),
			},
			want: decimal.RequireFromString("-0.5"),
		},
		{
			name: "short winner",
			trades: []account.Transaction{
				newShortTx(base, "50", "40", "2", "0.2"),
			},
			want: decimal.RequireFromString("19.8"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			got := calcNetProfit(tt.trades, &wg)
			if !got.Equal(tt.want) {
				t.Fatalf("got=%s, want=%s", got, tt.want)
			}
		})
	}
}

func TestCalcNetAvgProfitPerTrade(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		trades []account.Transaction
		want   decimal.Decimal
	}{
		{
			name:   "no trades => 0",
			trades: nil,
			want:   decimal.RequireFromString("0"),
		},
		{
			name: "two trades averaged",
			// (10 - 1 + -10 - 1) / 2
			trades: []account.Transaction{
				newTx(base, "100", "110", "1", "1"),
				newTx(base.AddDate(0, 0, 1), "100", "90", "1", "1"),
			},
			want: decimal.RequireFromString("-1"),
		},
		{
			name: "three winners",
			trades: []account.Transaction{
				newTx(base, "10", "12", "3", "0"),
				newTx(base.AddDate(0, 0, 1), "10", "12", "3", "0"),
				newTx(base.AddDate(0, 0, 2), "10", "13", "3", "0"),
			},
			want: decimal.RequireFromString("7"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			got := calcNetAvgProfitPerTrade(tt.trades, &wg)
			if !got.Equal(tt.want) {
				t.Fatalf("got=%s, want=%s", got, tt.want)
			}
		})
	}
}

func TestCalcCAGRFromSnapshots(t *testing.T) {
	baseTime := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		snapshots []types.AccountView
		want      decimal.Decimal
	}{
		{
			name: "23.85% in 3 years",
			snapshots: []types.AccountView{
				newPv(baseTime, "10000"),
				newPv(baseTime.AddDate(3, 0, 0), "19000"),
			},
			want: decimal.RequireFromString("0.2385"),
		},
		{
			name: "8.44% in 5 years",
			snapshots: []types.AccountView{
				newPv(baseTime, "10000"),
				newPv(baseTime.AddDate(5, 0, 0), "15000"),
			},
			want: decimal.RequireFromString("0.0844"),
		},
		{
			name:      "no snapshots -> 0",
			snapshots: nil,
			want:      decimal.RequireFromString("0"),
		},
		{
			name: "single snapshot -> 0",
			snapshots: []types.AccountView{
				newPv(baseTime, "1000"),
			},
			want: decimal.RequireFromString("0"),
		},
		{
			name: "zero start equity -> 0",
			snapshots: []types.AccountView{
				newPv(baseTime, "0"),
				newPv(baseTime.AddDate(1, 0, 0), "1000"),
			},
			want: decimal.RequireFromString("0"),
		},
		{
			name: "flat equity over 1 year -> 0",
			snapshots: []types.AccountView{
				newPv(baseTime, "1000"),
				newPv(baseTime.AddDate(1, 0, 0), "1000"),
			},
			want: decimal.RequireFromString("0"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			got := calcCAGR(tt.snapshots, &wg)
			if !got.Truncate(4).Equal(tt.want) {
				t.Fatalf("got=%s, want=%s", got, tt.want)
			}
		})
	}
}

func TestCalcAvgWinLossPerTrade(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		trades      []account.Transaction
		wantAvgWin  decimal.Decimal
		wantAvgLoss decimal.Decimal
	}{
		{
			name:        "no trades -> zero win/loss",
			wantAvgWin:  decimal.Zero,
			wantAvgLoss: decimal.Zero,
		},
		{
			name: "wins and losses averaged separately",
			trades: []account.Transaction{
				newTx(base, "100", "110", "1", "0"),
				newTx(base.AddDate(0, 0, 1), "100", "130", "1", "0"),
				newTx(base.AddDate(0, 0, 2), "100", "95", "1", "1"),
			},
			wantAvgWin:  decimal.RequireFromString("20"),
			wantAvgLoss: decimal.RequireFromString("6"),
		},
		{
			name: "fees turn a small gain into a loss",
			trades: []account.Transaction{
				newTx(base, "100", "101", "1", "2"),
			},
			wantAvgWin:  decimal.Zero,
			wantAvgLoss: decimal.RequireFromString("1"),
		},
		{
			name: "breakeven counts as neither",
			trades: []account.Transaction{
				newTx(base, "100", "101", "1", "1"),
			},
			wantAvgWin:  decimal.Zero,
			wantAvgLoss: decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			gotWin, gotLoss := calcAvgWinLossPerTrade(tt.trades, &wg)
			if !gotWin.Equal(tt.wantAvgWin) {
				t.Fatalf("avg win = %s, want %s", gotWin, tt.wantAvgWin)
			}
			if !gotLoss.Equal(tt.wantAvgLoss) {
				t.Fatalf("avg loss = %s, want %s", gotLoss, tt.wantAvgLoss)
			}
		})
	}
}

func TestCalcMaxDrawdownMetrics(t *testing.T) {
	baseTime := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		snapshots    []types.AccountView
		wantMaxDD    decimal.Decimal
		wantMaxDDPct decimal.Decimal
		wantMaxDDDur time.Duration
	}{
		{
			name: "Simple drawdown 30%",
			snapshots: []types.AccountView{
				newPv(baseTime, "1000"),
				newPv(baseTime.AddDate(0, 0, 1), "10000"),
				newPv(baseTime.AddDate(0, 0, 2), "7000"),
			},
			wantMaxDD:    decimal.RequireFromString("3000"),
			wantMaxDDPct: decimal.RequireFromString("0.3"),
			wantMaxDDDur: time.Hour * 24 * 1,
		},
		{
			name:         "no snapshots -> zero drawdown and duration",
			snapshots:    nil,
			wantMaxDD:    decimal.RequireFromString("0"),
			wantMaxDDPct: decimal.RequireFromString("0"),
			wantMaxDDDur: 0,
		},
		{
			name: "monotonic up -> zero drawdown and duration",
			snapshots: []types.AccountView{
				newPv(baseTime, "1000"),
				newPv(baseTime.AddDate(0, 0, 1), "1200"),
				newPv(baseTime.AddDate(0, 0, 2), "1500"),
			},
			wantMaxDD:    decimal.RequireFromString("0"),
			wantMaxDDPct: decimal.RequireFromString("0"),
			wantMaxDDDur: 0,
		},
		{
			name: "single drawdown with full recovery",
			// equity: 1000 -> 1200 -> 900 -> 1300
			snapshots: []types.AccountView{
				newPv(baseTime, "1000"),
				newPv(baseTime.AddDate(0, 0, 1), "1200"), // peak
				newPv(baseTime.AddDate(0, 0, 2), "900"),  // trough
				newPv(baseTime.AddDate(0, 0, 3), "1300"),
			},
			wantMaxDD:    decimal.RequireFromString("300"),
			wantMaxDDPct: decimal.RequireFromString("0.25"),
			wantMaxDDDur: 24 * time.Hour,
		},
		{
			name: "multiple peaks with deeper later drawdown",
			// equity: 1000 -> 1500 -> 1300 -> 1600 -> 1200
			snapshots: []types.AccountView{
				newPv(baseTime, "1000"),
				newPv(baseTime.AddDate(0, 0, 1), "1500"),
				newPv(baseTime.AddDate(0, 0, 2), "1300"),
				newPv(baseTime.AddDate(0, 0, 3), "1600"), // new peak
				newPv(baseTime.AddDate(0, 0, 4), "1200"), // trough
			},
			wantMaxDD:    decimal.RequireFromString("400"),
			wantMaxDDPct: decimal.RequireFromString("0.25"),
			wantMaxDDDur: 24 * time.Hour,
		},
		{
			name: "flat then drop with no recovery",
			snapshots: []types.AccountView{
				newPv(baseTime, "1000"), // peak
				newPv(baseTime.AddDate(0, 0, 1), "1000"),
				newPv(baseTime.AddDate(0, 0, 2), "800"),
				newPv(baseTime.AddDate(0, 0, 3), "700"), // trough
			},
			wantMaxDD:    decimal.RequireFromString("300"),
			wantMaxDDPct: decimal.RequireFromString("0.3"),
			wantMaxDDDur: 72 * time.Hour,
		},
		{
			name: "start at zero equity -> no drawdown",
			snapshots: []types.AccountView{
				newPv(baseTime, "0"),
				newPv(baseTime.AddDate(0, 0, 1), "-100"),
			},
			wantMaxDD:    decimal.RequireFromString("0"),
			wantMaxDDPct: decimal.RequireFromString("0"),
			wantMaxDDDur: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)

			gotDD, gotDDPct, gotDur := calcDrawdownMetrics(tt.snapshots, &wg)

			if !gotDD.Equal(tt.wantMaxDD) {
				t.Fatalf("max drawdown = %s, want %s", gotDD, tt.wantMaxDD)
			}
			if !gotDDPct.Equal(tt.wantMaxDDPct) {
				t.Fatalf("max drawdown pct = %s, want %s", gotDDPct, tt.wantMaxDDPct)
			}
			if gotDur != tt.wantMaxDDDur {
				t.Fatalf("max drawdown duration = %s, want %s", gotDur, tt.wantMaxDDDur)
			}
		})
	}
}

func TestCalcMaxConsecutiveLosses(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	win := func(i int) account.Transaction { return newTx(base.AddDate(0, 0, i), "100", "110", "1", "0") }
	loss := func(i int) account.Transaction { return newTx(base.AddDate(0, 0, i), "100", "90", "1", "0") }

	tests := []struct {
		name   string
		trades []account.Transaction
		want   int
	}{
		{name: "no trades", want: 0},
		{name: "all wins", trades: []account.Transaction{win(0), win(1)}, want: 0},
		{name: "all losses", trades: []account.Transaction{loss(0), loss(1), loss(2)}, want: 3},
		{
			name:   "streak broken by a win",
			trades: []account.Transaction{loss(0), loss(1), win(2), loss(3), loss(4), loss(5), win(6)},
			want:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			if got := calcMaxConsecutiveLosses(tt.trades, &wg); got != tt.want {
				t.Fatalf("got=%d, want=%d", got, tt.want)
			}
		})
	}
}

func TestCalcProfitFactor(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		trades []account.Transaction
		want   decimal.Decimal
	}{
		{name: "no trades", want: decimal.Zero},
		{
			name:   "no losses -> 0",
			trades: []account.Transaction{newTx(base, "100", "110", "1", "0")},
			want:   decimal.Zero,
		},
		{
			name: "gains over losses",
			trades: []account.Transaction{
				newTx(base, "100", "130", "1", "0"),
				newTx(base.AddDate(0, 0, 1), "100", "90", "1", "0"),
			},
			want: decimal.RequireFromString("3"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			if got := calcProfitFactor(tt.trades, &wg); !got.Equal(tt.want) {
				t.Fatalf("got=%s, want=%s", got, tt.want)
			}
		})
	}
}

func TestMonthlyReturnsFromSnapshots(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		snapshots []types.AccountView
		want      []decimal.Decimal
	}{
		{
			name:      "no snapshots -> empty returns",
			snapshots: nil,
			want:      nil,
		},
		{
			name: "single month, simple +10% return",
			snapshots: []types.AccountView{
				newPv(base, "1000"),
				newPv(base.AddDate(0, 1, 0), "1100"),
			},
			want: []decimal.Decimal{
				decimal.RequireFromString("0.10"),
			},
		},
		{
			name: "three consecutive months, +10%, 0%, -10%",
			snapshots: []types.AccountView{
				newPv(base, "1000"),
				newPv(base.AddDate(0, 1, 0), "1100"),
				newPv(base.AddDate(0, 2, 0), "1100"),
				newPv(base.AddDate(0, 3, 0), "990"),
			},
			want: []decimal.Decimal{
				decimal.RequireFromString("0.10"),
				decimal.RequireFromString("0.00"),
				decimal.RequireFromString("-0.10"),
			},
		},
		{
			name: "month with zero month-end value is skipped as start for next return",
			snapshots: []types.AccountView{
				newPv(base, "0"),
				newPv(base.AddDate(0, 1, 0), "1000"),
				newPv(base.AddDate(0, 2, 0), "1100"),
			},
			want: []decimal.Decimal{
				decimal.RequireFromString("0.10"),
			},
		},
		{
			name: "snapshots out of order still pick correct month-end values",
			// Feb has 1100 (Feb 1) and 1050 (Feb 16); month-end is 1050.
			snapshots: []types.AccountView{
				newPv(base.AddDate(0, 1, 15), "1050"),
				newPv(base, "1000"),
				newPv(base.AddDate(0, 1, 0), "1100"),
			},
			want: []decimal.Decimal{
				decimal.RequireFromString("0.05"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getMonthlyReturns(tt.snapshots)
			if tt.want == nil {
				if len(got) != 0 {
					t.Fatalf("expected nil/empty, got=%v", got)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len(got)=%d, len(want)=%d, got=%v, want=%v", len(got), len(tt.want), got, tt.want)
			}
			for i := range got {
				if !got[i].Equal(tt.want[i]) {
					t.Fatalf("index %d: got=%s, want=%s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetMonthlyReturnsKeepsInputOrder(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshots := []types.AccountView{
		newPv(base.AddDate(0, 1, 0), "1100"),
		newPv(base, "1000"),
	}
	getMonthlyReturns(snapshots)
	if !snapshots[0].Time.Equal(base.AddDate(0, 1, 0)) {
		t.Fatalf("input reordered")
	}
}

var yearOfSnapshots = []string{
	"1000.00", "961.08", "940.76", "937.57", "951.06", "964.73", "995.75",
	"1045.45", "1116.20", "1092.60", "1088.90", "1123.90", "1180.00",
}

func monthly(base time.Time, values []string) []types.AccountView {
	out := make([]types.AccountView, 0, len(values))
	for i, v := range values {
		out = append(out, newPv(base.AddDate(0, i, 0), v))
	}
	return out
}

func TestCalcSharpeRatioFromSnapshots(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		snapshots  []types.AccountView
		riskFree   decimal.Decimal
		wantSharpe decimal.Decimal
	}{
		{
			name:       "monthly snapshots, Sharpe ≈ 1.25",
			snapshots:  monthly(base, yearOfSnapshots),
			riskFree:   decimal.RequireFromString("0.03"),
			wantSharpe: decimal.RequireFromString("1.25"),
		},
		{
			name:       "less than 2 months -> sharpe = 0",
			snapshots:  monthly(base, []string{"1000", "1010"}),
			riskFree:   decimal.RequireFromString("0.00"),
			wantSharpe: decimal.RequireFromString("0"),
		},
		{
			name:       "flat portfolio → 0 stdev → sharpe = 0",
			snapshots:  monthly(base, []string{"1000", "1000", "1000", "1000"}),
			riskFree:   decimal.RequireFromString("0.01"),
			wantSharpe: decimal.RequireFromString("0"),
		},
		{
			name: "18% return, 3% rf, 12% vol → sharpe ≈ 1.25",
			snapshots: monthly(base, []string{
				"133.33", "139.46", "137.06", "143.36", "140.89", "147.37", "144.83",
				"151.50", "148.88", "155.73", "153.05", "160.09", "157.33",
			}),
			riskFree:   decimal.RequireFromString("0.03"),
			wantSharpe: decimal.RequireFromString("1.2499"),
		},
		{
			name:       "constant % monthly growth → zero volatility → sharpe = 0",
			snapshots:  monthly(base, []string{"1000", "1050", "1102.5", "1157.625", "1215.50625", "1276.2815625"}),
			riskFree:   decimal.RequireFromString("0.02"),
			wantSharpe: decimal.RequireFromString("0"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			got := calcSharpeRatio(tt.snapshots, tt.riskFree, &wg)
			if !got.Round(4).Equal(tt.wantSharpe.Round(4)) {
				t.Fatalf("got=%s, want=%s", got.Round(4), tt.wantSharpe.Round(4))
			}
		})
	}
}

func TestCalcSortinoRatioFromSnapshots(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		snapshots []types.AccountView
		riskFree  decimal.Decimal
		want      decimal.Decimal
	}{
		{
			name:      "year with early losses",
			snapshots: monthly(base, yearOfSnapshots),
			riskFree:  decimal.RequireFromString("0.03"),
			want:      decimal.RequireFromString("2.6569"),
		},
		{
			name:      "no downside month -> 0",
			snapshots: monthly(base, []string{"1000", "1100", "1300", "1400"}),
			riskFree:  decimal.Zero,
			want:      decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			got := calcSortinoRatio(tt.snapshots, tt.riskFree, &wg)
			if !got.Round(4).Equal(tt.want) {
				t.Fatalf("got=%s, want=%s", got.Round(4), tt.want)
			}
		})
	}
}

func TestReportPrint(t *testing.T) {
	r := &BacktestReport{
		RunID:       "run-1",
		Sequence:    3,
		StartDate:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
		TotalPeriod: 31 * 24 * time.Hour,
		NetProfit:   decimal.RequireFromString("12.345"),
	}
	var buf bytes.Buffer
	r.Print(&buf)
	out := buf.String()
	for _, want := range []string{"run-1 (#3)", "Total Period:          31 days", "Net Profit:            12.35"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

// Helper functions
func newPv(t time.Time, equity string) types.AccountView {
	return types.AccountView{
		Time:      t,
		Equity:    decimal.RequireFromString(equity),
		Positions: map[string]types.PositionSnapshot{},
	}
}

func newTx(exit time.Time, entry, exitPrice, qty, fee string) account.Transaction {
	entryPrice := decimal.RequireFromString(entry)
	exitP := decimal.RequireFromString(exitPrice)
	q := decimal.RequireFromString(qty)
	return account.Transaction{
		Symbol:     "AAA",
		Direction:  types.DirectionLong,
		Quantity:   q,
		EntryPrice: entryPrice,
		ExitPrice:  exitP,
		EntryTime:  exit.Add(-time.Hour),
		ExitTime:   exit,
		Profit:     exitP.Sub(entryPrice).Mul(q),
		Commission: decimal.RequireFromString(fee),
	}
}

func newShortTx(exit time.Time, entry, exitPrice, qty, fee string) account.Transaction {
	tx := newTx(exit, entry, exitPrice, qty, fee)
	tx.Direction = types.DirectionShort
	tx.Profit = tx.Profit.Neg()
	return tx
}

package account

import (
	"fmt"
	"log/slog"
	"sort"
	"tradesim/internal/matching"
	"tradesim/internal/order"
	"tradesim/types"

	"github.com/shopspring/decimal"
)

// DefaultAccount always exists.
const DefaultAccount = "default"

const reasonOppositePosition = "Opposite position open"

var (
	_ matching.ReportHandler   = (*Ledger)(nil)
	_ matching.ExposureChecker = (*Ledger)(nil)
)

// Ledger owns every account of a run and books executions into them.
type Ledger struct {
	accounts map[string]*Account
	names    []string

	initialBalance decimal.Decimal
	initialCredit  decimal.Decimal
	resolver       SymbolResolver
	logger         *slog.Logger

	listeners []PositionListener
	txSeq     int64
	err       error
}

type LedgerOption func(*Ledger)

func WithCredit(credit decimal.Decimal) LedgerOption {
	return func(l *Ledger) { l.initialCredit = credit }
}

func WithResolver(r SymbolResolver) LedgerOption {
	return func(l *Ledger) { l.resolver = r }
}

func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// WithPositionListener registers listener on every account, present and future.
func WithPositionListener(listener PositionListener) LedgerOption {
	return func(l *Ledger) { l.listeners = append(l.listeners, listener) }
}

// NewLedger creates a ledger whose accounts start with initialBalance.
func NewLedger(initialBalance decimal.Decimal, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		accounts:       make(map[string]*Account),
		initialBalance: initialBalance,
		initialCredit:  decimal.Zero,
		resolver:       DefaultResolver,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default().With("component", "ledger")
	}
	l.Account(DefaultAccount)
	return l
}

func (l *Ledger) Default() *Account {
	return l.accounts[DefaultAccount]
}

// Account returns the named account, creating it on first use. An empty name
// is the default account.
func (l *Ledger) Account(name string) *Account {
	if name == "" {
		name = DefaultAccount
	}
	if a, ok := l.accounts[name]; ok {
		return a
	}
	a := newAccount(name, l.initialBalance, l.initialCredit, l.resolver, l.nextTxID)
	for _, listener := range l.listeners {
		a.AddListener(listener)
	}
	l.accounts[name] = a
	l.names = append(l.names, name)
	return a
}

// Accounts returns every account, default first, then by name.
func (l *Ledger) Accounts() []*Account {
	names := append([]string(nil), l.names[1:]...)
	sort.Strings(names)
	out := []*Account{l.Default()}
	for _, n := range names {
		out = append(out, l.accounts[n])
	}
	return out
}

func (l *Ledger) nextTxID() int64 {
	l.txSeq++
	return l.txSeq
}

// Err returns the first booking failure. Reports carry no error return, so the
// engine checks this after each event.
func (l *Ledger) Err() error {
	return l.err
}

func (l *Ledger) fail(err error) {
	if err != nil && l.err == nil {
		l.err = err
	}
}

func (l *Ledger) OnStatusChange(o order.View, _, to types.OrderState) {
	l.Account(o.Account()).trackOrder(o, !to.IsTerminal())
}

func (l *Ledger) OnRejection(o order.View, reason string) {
	l.logger.Debug("order rejected", "account", o.Account(), "order", o.ID(), "reason", reason)
}

// OnExecution turns entry executions into positions and exit executions into
// closed or reduced positions.
func (l *Ledger) OnExecution(o order.View, exec types.ExecutionReport) {
	a := l.Account(exec.Account)
	pos := a.Position(exec.Symbol)

	if exec.Side.IsEntry() {
		if pos != nil {
			l.fail(a.IncreasePosition(pos, exec))
			return
		}
		pos = NewPosition(exec.Symbol, exec.Side.Direction(), exec.Quantity, exec.Price, exec.Time)
		pos.Commission = exec.Fee
		pos.ProtectiveStop = o.ProtectiveStop()
		l.fail(a.EnterPosition(pos, exec.Price, exec.Time))
		return
	}

	if pos == nil || pos.Direction != exec.Side.Direction() {
		l.fail(fmt.Errorf("%s %s %s: %w", a.name, exec.Side, exec.Symbol, ErrNoPosition))
		return
	}
	var err error
	if exec.Quantity.Equal(pos.Quantity) {
		_, err = a.ExitPosition(pos, exec)
	} else {
		_, err = a.ReducePosition(pos, exec)
	}
	l.fail(err)
}

// Allow refuses exits larger than the open position and entries against an
// opposite position.
func (l *Ledger) Allow(o order.View) (bool, string) {
	a := l.Account(o.Account())
	pos := a.Position(o.Symbol())
	dir := o.Side().Direction()
	if o.Side().IsEntry() {
		if pos != nil && pos.Direction != dir {
			return false, reasonOppositePosition
		}
		return true, ""
	}
	if pos == nil || pos.Direction != dir || o.RemainingQuantity().GreaterThan(pos.Quantity) {
		return false, matching.ReasonInsufficientPosition
	}
	return true, ""
}

// Views snapshots every account.
func (l *Ledger) Views() []types.AccountView {
	accounts := l.Accounts()
	out := make([]types.AccountView, len(accounts))
	for i, a := range accounts {
		out[i] = a.View()
	}
	return out
}

// Package account keeps balances and positions. Equity is maintained
// incrementally: every fill and every valuation adjusts the running profit by
// the change of one position, never by a full recomputation.
package account

import (
	"errors"
	"fmt"
	"sort"
	"time"
	"tradesim/internal/order"
	"tradesim/types"

	"github.com/shopspring/decimal"
)

var (
	ErrPositionExists = errors.New("position already open")
	ErrNoPosition     = errors.New("no open position")
	ErrDirectionClash = errors.New("execution direction does not match position")
	ErrExitTooLarge   = errors.New("exit quantity exceeds position")
)

// PositionListener observes the positions of an account.
type PositionListener interface {
	OnPositionOpened(a *Account, p *Position)
	OnPositionClosed(a *Account, p *Position, tx Transaction)
	OnPositionValueChanged(a *Account, p *Position)
}

type positionListenerEntry struct {
	id int
	l  PositionListener
}

type Account struct {
	name           string
	balance        decimal.Decimal
	credit         decimal.Decimal
	profit         decimal.Decimal
	realizedProfit decimal.Decimal

	instruments map[string]*instrument
	cache       *instrumentCache
	resolver    SymbolResolver

	transactions []Transaction
	nextTxID     func() int64

	listeners  []positionListenerEntry
	listenerID int
	lastTime   time.Time
}

func newAccount(name string, balance, credit decimal.Decimal, resolver SymbolResolver, nextTxID func() int64) *Account {
	return &Account{
		name:        name,
		balance:     balance,
		credit:      credit,
		profit:      decimal.Zero,
		instruments: make(map[string]*instrument),
		cache:       newInstrumentCache(),
		resolver:    resolver,
		nextTxID:    nextTxID,
	}
}

func (a *Account) Name() string                    { return a.name }
func (a *Account) Balance() decimal.Decimal        { return a.balance }
func (a *Account) Credit() decimal.Decimal         { return a.credit }
func (a *Account) Profit() decimal.Decimal         { return a.profit }
func (a *Account) RealizedProfit() decimal.Decimal { return a.realizedProfit }

// Equity is balance + credit + unrealized profit.
func (a *Account) Equity() decimal.Decimal {
	return a.balance.Add(a.credit).Add(a.profit)
}

func (a *Account) Transactions() []Transaction {
	return append([]Transaction(nil), a.transactions...)
}

// lookup resolves symbol through the cache, creating the instrument when
// create is set.
func (a *Account) lookup(symbol string, create bool) *instrument {
	if in, ok := a.cache.get(symbol); ok {
		return in
	}
	key := a.resolver.Resolve(symbol)
	in, ok := a.instruments[key]
	if !ok {
		if !create {
			return nil
		}
		in = &instrument{symbol: key, pending: make(map[string]struct{})}
		a.instruments[key] = in
	}
	a.cache.put(symbol, in, len(a.instruments))
	return in
}

// Position returns the open position for symbol, or nil.
func (a *Account) Position(symbol string) *Position {
	in := a.lookup(symbol, false)
	if in == nil {
		return nil
	}
	return in.position
}

// Positions returns the open positions ordered by symbol.
func (a *Account) Positions() []*Position {
	var out []*Position
	for _, in := range a.instruments {
		if in.position != nil {
			out = append(out, in.position)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// PendingOrders returns the ids of live orders for symbol in id order.
func (a *Account) PendingOrders(symbol string) []string {
	in := a.lookup(symbol, false)
	if in == nil {
		return nil
	}
	ids := make([]string, 0, len(in.pending))
	for id := range in.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (a *Account) trackOrder(o order.View, live bool) {
	in := a.lookup(o.Symbol(), live)
	if in == nil {
		return
	}
	if live {
		in.pending[o.ID()] = struct{}{}
	} else {
		delete(in.pending, o.ID())
	}
}

// EnterPosition registers pos under the canonical form of its symbol and folds
// its profit at price into the running profit. pos keeps the caller's symbol.
func (a *Account) EnterPosition(pos *Position, price decimal.Decimal, at time.Time) error {
	in := a.lookup(pos.Symbol, true)
	if in.position != nil {
		return fmt.Errorf("%s %s: %w", a.name, pos.Symbol, ErrPositionExists)
	}
	pos.LastPrice = price
	pos.Profit = pos.profitAt(price, pos.Quantity)
	in.position = pos
	a.profit = a.profit.Add(pos.Profit)
	a.touch(at)

	for _, e := range a.snapshotListeners() {
		e.l.OnPositionOpened(a, pos)
	}
	return nil
}

// IncreasePosition adds an entry execution to an open position in the same
// direction.
func (a *Account) IncreasePosition(pos *Position, exec types.ExecutionReport) error {
	if exec.Side.Direction() != pos.Direction {
		return fmt.Errorf("%s %s: %w", a.name, pos.Symbol, ErrDirectionClash)
	}
	a.profit = a.profit.Sub(pos.Profit)
	pos.EntryPrice = weightedAvg(pos.EntryPrice, pos.Quantity, exec.Price, exec.Quantity)
	pos.Quantity = pos.Quantity.Add(exec.Quantity)
	pos.Commission = pos.Commission.Add(exec.Fee)
	pos.LastPrice = exec.Price
	pos.Profit = pos.profitAt(exec.Price, pos.Quantity)
	a.profit = a.profit.Add(pos.Profit)
	a.touch(exec.Time)
	a.notifyValueChanged(pos)
	return nil
}

// ExitPosition closes pos at the execution price and credits
// balance += profit - commission - extraCommission.
func (a *Account) ExitPosition(pos *Position, exec types.ExecutionReport) (Transaction, error) {
	in := a.lookup(pos.Symbol, false)
	if in == nil || in.position != pos {
		return Transaction{}, fmt.Errorf("%s %s: %w", a.name, pos.Symbol, ErrNoPosition)
	}
	pos.ExtraCommission = pos.ExtraCommission.Add(exec.Fee)
	finalProfit := pos.profitAt(exec.Price, pos.Quantity)

	a.profit = a.profit.Sub(pos.Profit)
	pos.Profit = finalProfit
	pos.LastPrice = exec.Price
	commission := pos.Commission.Add(pos.ExtraCommission)
	a.balance = a.balance.Add(finalProfit).Sub(commission)
	a.realizedProfit = a.realizedProfit.Add(finalProfit).Sub(commission)
	in.position = nil
	a.touch(exec.Time)

	tx := a.record(pos, exec, pos.Quantity, finalProfit, commission, false)
	for _, e := range a.snapshotListeners() {
		e.l.OnPositionClosed(a, pos, tx)
	}
	return tx, nil
}

// ReducePosition realizes the proportional share of an exit smaller than the
// position.
func (a *Account) ReducePosition(pos *Position, exec types.ExecutionReport) (Transaction, error) {
	if !exec.Quantity.LessThan(pos.Quantity) {
		return Transaction{}, fmt.Errorf("%s %s: reduce by %s of %s: %w", a.name, pos.Symbol, exec.Quantity, pos.Quantity, ErrExitTooLarge)
	}
	share := exec.Quantity.Div(pos.Quantity)
	entryCommission := pos.Commission.Mul(share)
	realized := pos.profitAt(exec.Price, exec.Quantity)
	commission := entryCommission.Add(exec.Fee)

	a.profit = a.profit.Sub(pos.Profit)
	pos.Quantity = pos.Quantity.Sub(exec.Quantity)
	pos.Commission = pos.Commission.Sub(entryCommission)
	pos.LastPrice = exec.Price
	pos.Profit = pos.profitAt(exec.Price, pos.Quantity)
	a.profit = a.profit.Add(pos.Profit)

	a.balance = a.balance.Add(realized).Sub(commission)
	a.realizedProfit = a.realizedProfit.Add(realized).Sub(commission)
	a.touch(exec.Time)

	tx := a.record(pos, exec, exec.Quantity, realized, commission, true)
	a.notifyValueChanged(pos)
	return tx, nil
}

func (a *Account) record(pos *Position, exec types.ExecutionReport, qty, profit, commission decimal.Decimal, partial bool) Transaction {
	tx := Transaction{
		ID:         a.nextTxID(),
		Account:    a.name,
		Symbol:     pos.Symbol,
		Direction:  pos.Direction,
		Quantity:   qty,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exec.Price,
		EntryTime:  pos.EntryTime,
		ExitTime:   exec.Time,
		Profit:     profit,
		Commission: commission,
		Partial:    partial,
	}
	a.transactions = append(a.transactions, tx)
	return tx
}

// UpdateProfit marks the open position of symbol, if any, at the bar close.
func (a *Account) UpdateProfit(symbol string, c types.Candle) {
	in := a.lookup(symbol, false)
	if in == nil || in.position == nil {
		return
	}
	pos := in.position
	next := pos.profitAt(c.Close, pos.Quantity)
	a.profit = a.profit.Add(next.Sub(pos.Profit))
	pos.Profit = next
	pos.LastPrice = c.Close
	a.touch(c.Timestamp)
	a.notifyValueChanged(pos)
}

func (a *Account) notifyValueChanged(pos *Position) {
	if len(a.listeners) == 0 {
		return
	}
	for _, e := range a.snapshotListeners() {
		e.l.OnPositionValueChanged(a, pos)
	}
}

func (a *Account) touch(at time.Time) {
	if at.After(a.lastTime) {
		a.lastTime = at
	}
}

// AddListener registers l and returns a handle for RemoveListener.
func (a *Account) AddListener(l PositionListener) int {
	a.listenerID++
	a.listeners = append(a.listeners, positionListenerEntry{id: a.listenerID, l: l})
	return a.listenerID
}

func (a *Account) RemoveListener(id int) {
	for i, e := range a.listeners {
		if e.id == id {
			a.listeners = append(a.listeners[:i:i], a.listeners[i+1:]...)
			return
		}
	}
}

func (a *Account) snapshotListeners() []positionListenerEntry {
	return append([]positionListenerEntry(nil), a.listeners...)
}

// View copies the account at its last update time.
func (a *Account) View() types.AccountView {
	v := types.AccountView{
		Name:           a.name,
		Balance:        a.balance,
		Credit:         a.credit,
		Profit:         a.profit,
		RealizedProfit: a.realizedProfit,
		Equity:         a.Equity(),
		Positions:      make(map[string]types.PositionSnapshot),
		Time:           a.lastTime,
	}
	for _, p := range a.Positions() {
		v.Positions[p.Symbol] = p.Snapshot()
	}
	return v
}

func weightedAvg(existingAvgPrice, existingQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return newPrice
	}
	return existingAvgPrice.Mul(existingQty).
		Add(newPrice.Mul(newQty)).
		Div(existingQty.Add(newQty))
}

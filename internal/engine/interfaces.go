package engine

import (
	"time"
	"tradesim/internal/order"
	"tradesim/types"
)

// Algorithm is a trading strategy driven by the engine. All callbacks run on
// the engine goroutine, in event order.
type Algorithm interface {
	// OnInit receives the API before any data is read.
	OnInit(api API) error
	OnAfterInit() error
	OnMarketEvent(ev types.MarketEvent) error
	// ExitOrders and EntryOrders are asked, in that order, after every event.
	ExitOrders(ev types.MarketEvent) []order.Request
	EntryOrders(ev types.MarketEvent) []order.Request
	OnExecution(exec types.ExecutionReport)
	OnExit(report *BacktestReport)
}

// API is what an algorithm may call back into. Placements and cancels are
// queued and reach the simulator on the next event.
type API interface {
	Now() time.Time
	PlaceOrder(req order.Request) (order.View, error)
	CancelOrder(id string) error
	Account(name string) types.AccountView
	Shutdown()
}

// BaseAlgorithm implements every hook as a no-op so strategies only override
// what they use.
type BaseAlgorithm struct{}

func (BaseAlgorithm) OnInit(API) error                              { return nil }
func (BaseAlgorithm) OnAfterInit() error                            { return nil }
func (BaseAlgorithm) OnMarketEvent(types.MarketEvent) error         { return nil }
func (BaseAlgorithm) ExitOrders(types.MarketEvent) []order.Request  { return nil }
func (BaseAlgorithm) EntryOrders(types.MarketEvent) []order.Request { return nil }
func (BaseAlgorithm) OnExecution(types.ExecutionReport)             {}
func (BaseAlgorithm) OnExit(*BacktestReport)                        {}

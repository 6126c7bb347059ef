package engine

import (
	"fmt"
	"tradesim/internal/matching"
	"tradesim/internal/order"
	"tradesim/types"
)

// algorithmWorker collects executions as the simulator reports them and
// replays them to the algorithm before its market event callback.
type algorithmWorker struct {
	algo       Algorithm
	pending    []types.ExecutionReport
	executions []types.ExecutionReport
}

var _ matching.ReportHandler = (*algorithmWorker)(nil)

func newAlgorithmWorker(algo Algorithm) *algorithmWorker {
	return &algorithmWorker{algo: algo}
}

func (w *algorithmWorker) OnStatusChange(order.View, types.OrderState, types.OrderState) {}
func (w *algorithmWorker) OnRejection(order.View, string)                                {}

func (w *algorithmWorker) OnExecution(_ order.View, exec types.ExecutionReport) {
	w.pending = append(w.pending, exec)
	w.executions = append(w.executions, exec)
}

func (w *algorithmWorker) onEvent(ev types.MarketEvent, tc *tradeConnector) error {
	for len(w.pending) > 0 {
		exec := w.pending[0]
		w.pending = w.pending[1:]
		w.algo.OnExecution(exec)
	}
	if err := w.algo.OnMarketEvent(ev); err != nil {
		return fmt.Errorf("algorithm on %s: %w", ev.Kind(), err)
	}
	for _, req := range w.algo.ExitOrders(ev) {
		if _, err := tc.place(req); err != nil {
			return fmt.Errorf("exit order: %w", err)
		}
	}
	for _, req := range w.algo.EntryOrders(ev) {
		if _, err := tc.place(req); err != nil {
			return fmt.Errorf("entry order: %w", err)
		}
	}
	return nil
}

package matching

import (
	"tradesim/internal/order"
	"tradesim/types"
)

// ReportHandler receives order reports from the simulator, synchronously and
// exactly once per event.
type ReportHandler interface {
	OnStatusChange(o order.View, from, to types.OrderState)
	OnExecution(o order.View, r types.ExecutionReport)
	OnRejection(o order.View, reason string)
}

// ReportHandlers fans every report out to each handler in order.
type ReportHandlers []ReportHandler

var _ ReportHandler = ReportHandlers(nil)

func (hs ReportHandlers) OnStatusChange(o order.View, from, to types.OrderState) {
	for _, h := range hs {
		h.OnStatusChange(o, from, to)
	}
}

func (hs ReportHandlers) OnExecution(o order.View, r types.ExecutionReport) {
	for _, h := range hs {
		h.OnExecution(o, r)
	}
}

func (hs ReportHandlers) OnRejection(o order.View, reason string) {
	for _, h := range hs {
		h.OnRejection(o, reason)
	}
}

// NopReportHandler discards everything.
type NopReportHandler struct{}

func (NopReportHandler) OnStatusChange(order.View, types.OrderState, types.OrderState) {}
func (NopReportHandler) OnExecution(order.View, types.ExecutionReport)                 {}
func (NopReportHandler) OnRejection(order.View, string)                                {}

// ExposureChecker vets an order against the positions of its account before it
// may fill. A refusal carries the rejection reason.
type ExposureChecker interface {
	Allow(o order.View) (ok bool, reason string)
}

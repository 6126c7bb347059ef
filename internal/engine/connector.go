package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"tradesim/internal/account"
	"tradesim/internal/clock"
	"tradesim/internal/matching"
	"tradesim/internal/order"
	"tradesim/types"
)

var ErrShortSellingDisabled = errors.New("short selling not allowed")

type tradeOp struct {
	place    *order.Order
	cancelID string
}

// tradeConnector queues what the algorithm asks for and hands it to the
// simulator at the start of the next event.
type tradeConnector struct {
	simulator  *matching.Simulator
	clock      *clock.Playback
	allowShort bool
	logger     *slog.Logger

	queue  []tradeOp
	nextID int64
}

func newTradeConnector(sim *matching.Simulator, c *clock.Playback, allowShort bool, logger *slog.Logger) *tradeConnector {
	return &tradeConnector{simulator: sim, clock: c, allowShort: allowShort, logger: logger}
}

func (tc *tradeConnector) place(req order.Request) (*order.Order, error) {
	if req.Account == "" {
		req.Account = account.DefaultAccount
	}
	if req.Side == types.SideTypeShort && !tc.allowShort {
		return nil, fmt.Errorf("%s %s: %w", req.Side, req.Symbol, ErrShortSellingDisabled)
	}
	tc.nextID++
	o, err := order.New(strconv.FormatInt(tc.nextID, 10), req, tc.clock.Now())
	if err != nil {
		return nil, err
	}
	tc.queue = append(tc.queue, tradeOp{place: o})
	return o, nil
}

func (tc *tradeConnector) cancel(id string) {
	tc.queue = append(tc.queue, tradeOp{cancelID: id})
}

// work flushes the queue in request order.
func (tc *tradeConnector) work() error {
	if len(tc.queue) == 0 {
		return nil
	}
	ops := tc.queue
	tc.queue = nil
	for _, op := range ops {
		if op.place != nil {
			if err := tc.simulator.Submit(op.place, op.place.CreatedAt()); err != nil {
				return err
			}
			continue
		}
		err := tc.simulator.Cancel(op.cancelID)
		if errors.Is(err, matching.ErrUnknownOrder) {
			tc.logger.Debug("cancel ignored", "order", op.cancelID, "reason", err)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// engineAPI is the API handed to the algorithm.
type engineAPI struct {
	engine *Engine
}

var _ API = (*engineAPI)(nil)

func (a *engineAPI) Now() time.Time { return a.engine.clock.Now() }

func (a *engineAPI) PlaceOrder(req order.Request) (order.View, error) {
	o, err := a.engine.connector.place(req)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (a *engineAPI) CancelOrder(id string) error {
	if id == "" {
		return fmt.Errorf("empty order id: %w", matching.ErrUnknownOrder)
	}
	a.engine.connector.cancel(id)
	return nil
}

func (a *engineAPI) Account(name string) types.AccountView {
	return a.engine.ledger.Account(name).View()
}

func (a *engineAPI) Shutdown() { a.engine.shutdown = true }

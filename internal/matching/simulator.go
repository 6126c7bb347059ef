// Package matching simulates an exchange against replayed market data. Each
// instrument has an inbound list of undecided requests and a working list of
// resting orders; both are advanced only by market events for that
// instrument.
package matching

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
	"tradesim/internal/order"
	"tradesim/types"

	"github.com/shopspring/decimal"
)

var (
	ErrClosed        = errors.New("simulator closed")
	ErrUnknownOrder  = errors.New("unknown or finished order")
	ErrAlreadyQueued = errors.New("order already submitted")
)

const (
	ReasonNoMarketData         = "Cannot fill IOC order - no suitable market data event"
	ReasonInsufficientPosition = "Insufficient position"
)

type request struct {
	o        *order.Order
	at       time.Time
	cancel   bool
	listener int
}

type book struct {
	inbound []*request
	working []*request
}

type Simulator struct {
	books map[string]*book
	live  map[string]*request

	handler    ReportHandler
	matcher    TriggerMatcher
	commission CommissionModel
	exposure   ExposureChecker
	logger     *slog.Logger

	execPrefix string
	execSeq    int
	closed     bool
}

type Option func(*Simulator)

func WithTriggerMatcher(m TriggerMatcher) Option {
	return func(s *Simulator) { s.matcher = m }
}

func WithCommission(c CommissionModel) Option {
	return func(s *Simulator) { s.commission = c }
}

func WithExposureChecker(c ExposureChecker) Option {
	return func(s *Simulator) { s.exposure = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

// WithExecutionPrefix sets the prefix of generated execution ids.
func WithExecutionPrefix(p string) Option {
	return func(s *Simulator) { s.execPrefix = p }
}

func NewSimulator(handler ReportHandler, opts ...Option) *Simulator {
	s := &Simulator{
		books:      make(map[string]*book),
		live:       make(map[string]*request),
		handler:    handler,
		matcher:    NoTrigger{},
		commission: NoCommission{},
		execPrefix: "exec",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.handler == nil {
		s.handler = NopReportHandler{}
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "matching")
	}
	return s
}

// Submit queues a newly created order in the inbound list of its instrument.
// It is decided on the first event for that instrument at or after at.
func (s *Simulator) Submit(o *order.Order, at time.Time) error {
	if s.closed {
		return ErrClosed
	}
	if _, dup := s.live[o.ID()]; dup || o.State() != types.OrderNewlyCreated {
		return fmt.Errorf("order %s in state %s: %w", o.ID(), o.State(), ErrAlreadyQueued)
	}
	r := &request{o: o, at: at}
	r.listener = o.AddListener(order.StatusListenerFunc(s.handler.OnStatusChange))
	s.live[o.ID()] = r
	b := s.book(o.Symbol())
	b.inbound = append(b.inbound, r)
	return nil
}

// Cancel asks for an order to be cancelled. Inbound requests are cancelled
// when they are next processed; working orders move to CANCELLING now and to
// CANCELLED on the next event for their instrument.
func (s *Simulator) Cancel(id string) error {
	if s.closed {
		return ErrClosed
	}
	r, ok := s.live[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, ErrUnknownOrder)
	}
	switch r.o.State() {
	case types.OrderNewlyCreated:
		r.cancel = true
		return nil
	case types.OrderCancelling:
		return nil
	}
	return r.o.Transition(types.OrderCancelling)
}

func (s *Simulator) book(symbol string) *book {
	b, ok := s.books[symbol]
	if !ok {
		b = &book{}
		s.books[symbol] = b
	}
	return b
}

// OnEvent advances the inbound and then the working orders of the event's
// instrument. Errors are illegal transitions and abort the run.
func (s *Simulator) OnEvent(ev types.MarketEvent) error {
	if s.closed {
		return ErrClosed
	}
	b, ok := s.books[ev.Symbol()]
	if !ok {
		return nil
	}
	if err := s.processInbound(b, ev); err != nil {
		return err
	}
	return s.processWorking(b, ev)
}

func (s *Simulator) processInbound(b *book, ev types.MarketEvent) error {
	pending := b.inbound
	b.inbound = nil
	for i, r := range pending {
		done, err := s.decide(b, r, ev)
		if err != nil {
			b.inbound = append(b.inbound, pending[i:]...)
			return err
		}
		if !done {
			b.inbound = append(b.inbound, r)
		}
	}
	return nil
}

// decide processes one inbound request. It reports false when the request
// stays inbound.
func (s *Simulator) decide(b *book, r *request, ev types.MarketEvent) (bool, error) {
	now := ev.Time()
	o := r.o
	if r.at.After(now) {
		return false, nil
	}
	if r.cancel {
		if err := o.Transition(types.OrderSubmitted); err != nil {
			return true, err
		}
		return true, s.finish(r, types.OrderCancelled)
	}
	if o.IsExpired(now) {
		s.logger.Debug("order expired before submission", "order", o.ID(), "symbol", o.Symbol(), "expiration", o.ExpirationTime())
		return true, s.finish(r, types.OrderExpired)
	}
	if !o.IsImmediate() && !o.IsValidAt(now) {
		return false, nil
	}
	if err := o.Transition(types.OrderSubmitted); err != nil {
		return true, err
	}
	if ok, reason := s.allow(o); !ok {
		return true, s.reject(r, reason)
	}
	if o.IsImmediate() {
		pe, ok := ev.(types.PricedEvent)
		if !ok {
			return true, s.reject(r, ReasonNoMarketData)
		}
		price, ok := pe.ReferencePrice()
		if !ok {
			return true, s.reject(r, ReasonNoMarketData)
		}
		return true, s.fill(r, price, o.RemainingQuantity(), now)
	}
	b.working = append(b.working, r)
	return true, nil
}

func (s *Simulator) processWorking(b *book, ev types.MarketEvent) error {
	now := ev.Time()
	working := b.working
	b.working = nil
	for i, r := range working {
		keep, err := s.work(r, ev, now)
		if err != nil {
			b.working = append(b.working, working[i:]...)
			return err
		}
		if keep {
			b.working = append(b.working, r)
		}
	}
	return nil
}

func (s *Simulator) work(r *request, ev types.MarketEvent, now time.Time) (bool, error) {
	o := r.o
	switch {
	case o.State() == types.OrderCancelling:
		return false, s.finish(r, types.OrderCancelled)
	case o.IsExpired(now):
		s.logger.Debug("working order expired", "order", o.ID(), "symbol", o.Symbol())
		if o.State() == types.OrderPartiallyFilled {
			return false, s.finish(r, types.OrderCancelled)
		}
		return false, s.finish(r, types.OrderExpired)
	}
	if o.State() == types.OrderSubmitted {
		if err := o.Transition(types.OrderAccepted); err != nil {
			return false, err
		}
	}

	price, qty, ok := s.matcher.Match(o, ev)
	if !ok || !qty.IsPositive() {
		return true, nil
	}
	if allowed, reason := s.allow(o); !allowed {
		s.logger.Debug("working order held back", "order", o.ID(), "reason", reason)
		return true, nil
	}
	if qty.GreaterThan(o.RemainingQuantity()) {
		qty = o.RemainingQuantity()
	}
	if err := s.fill(r, price, qty, now); err != nil {
		return false, err
	}
	return !o.State().IsTerminal(), nil
}

func (s *Simulator) allow(o *order.Order) (bool, string) {
	if s.exposure == nil {
		return true, ""
	}
	return s.exposure.Allow(o)
}

func (s *Simulator) fill(r *request, price, qty decimal.Decimal, at time.Time) error {
	o := r.o
	report, err := o.ApplyFill(price, qty, at)
	if err != nil {
		return err
	}
	s.execSeq++
	report.ExecutionID = fmt.Sprintf("%s-%d", s.execPrefix, s.execSeq)
	report.Fee = s.commission.Fee(o.Symbol(), o.Side(), price, qty)
	s.handler.OnExecution(o, report)
	if o.State().IsTerminal() {
		s.release(r)
	}
	return nil
}

func (s *Simulator) reject(r *request, reason string) error {
	s.logger.Debug("order rejected", "order", r.o.ID(), "symbol", r.o.Symbol(), "reason", reason)
	if err := r.o.Reject(reason); err != nil {
		return err
	}
	s.handler.OnRejection(r.o, reason)
	s.release(r)
	return nil
}

func (s *Simulator) finish(r *request, to types.OrderState) error {
	if err := r.o.Transition(to); err != nil {
		return err
	}
	s.release(r)
	return nil
}

func (s *Simulator) release(r *request) {
	r.o.RemoveListener(r.listener)
	delete(s.live, r.o.ID())
}

// Working returns the resting orders of symbol.
func (s *Simulator) Working(symbol string) []order.View {
	b, ok := s.books[symbol]
	if !ok {
		return nil
	}
	return views(b.working)
}

// Inbound returns the undecided requests of symbol.
func (s *Simulator) Inbound(symbol string) []order.View {
	b, ok := s.books[symbol]
	if !ok {
		return nil
	}
	return views(b.inbound)
}

func views(rs []*request) []order.View {
	out := make([]order.View, len(rs))
	for i, r := range rs {
		out[i] = r.o
	}
	return out
}

// Close drops every book. Orders still live stay in their last state. It is
// safe to call more than once.
func (s *Simulator) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for _, r := range s.live {
		r.o.RemoveListener(r.listener)
	}
	s.books = nil
	s.live = nil
	return nil
}

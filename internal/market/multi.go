package market

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"time"
	"tradesim/types"
)

var _ Supplier = (*MultiSymbolSupplier)(nil)

// cursor is a source together with its next pending event.
type cursor struct {
	src   Source
	next  types.MarketEvent
	last  time.Time
	seq   int
	index int
}

// cursorQueue orders cursors by next event time, then source sequence, then
// symbol.
type cursorQueue []*cursor

func (q cursorQueue) Len() int { return len(q) }

func (q cursorQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	at, bt := a.next.Time(), b.next.Time()
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	if a.seq != b.seq {
		return a.seq < b.seq
	}
	return a.next.Symbol() < b.next.Symbol()
}

func (q cursorQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *cursorQueue) Push(x any) {
	c := x.(*cursor)
	c.index = len(*q)
	*q = append(*q, c)
}

func (q *cursorQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	c.index = -1
	*q = old[0 : n-1]
	return c
}

func (q cursorQueue) peek() *cursor {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// MultiSymbolSupplier merges several time-sorted sources into one globally
// time-sorted stream. A single Poll never returns events of two instants.
type MultiSymbolSupplier struct {
	sources []Source
	queue   cursorQueue
	opened  bool
	closed  bool
}

func NewMultiSymbolSupplier(sources ...Source) *MultiSymbolSupplier {
	return &MultiSymbolSupplier{sources: sources}
}

func (m *MultiSymbolSupplier) Open(ctx context.Context) error {
	if m.opened {
		return ErrAlreadyOpen
	}
	m.opened = true
	m.queue = make(cursorQueue, 0, len(m.sources))
	for i, src := range m.sources {
		if o, ok := src.(opener); ok {
			if err := o.Open(ctx); err != nil {
				// sources opened so far hold files
				return errors.Join(fmt.Errorf("open source %d: %w", i, err), m.Close())
			}
		}
		c := &cursor{src: src, seq: i}
		ok, err := m.advance(c)
		if err != nil {
			return errors.Join(err, m.Close())
		}
		if ok {
			heap.Push(&m.queue, c)
		}
	}
	return nil
}

// advance loads the next event of c. Exhausted sources are closed.
func (m *MultiSymbolSupplier) advance(c *cursor) (bool, error) {
	ev, ok, err := c.src.Next()
	if err != nil {
		return false, fmt.Errorf("source %d: %w", c.seq, err)
	}
	if !ok {
		if err := c.src.Close(); err != nil {
			return false, fmt.Errorf("close source %d: %w", c.seq, err)
		}
		return false, nil
	}
	if ev.Time().Before(c.last) {
		return false, fmt.Errorf("%s: %s after %s: %w",
			ev.Symbol(), ev.Time().Format(time.RFC3339Nano), c.last.Format(time.RFC3339Nano), ErrOutOfOrder)
	}
	c.next = ev
	c.last = ev.Time()
	return true, nil
}

func (m *MultiSymbolSupplier) Poll(handler Handler, limit int) (int, error) {
	if !m.opened || m.closed {
		return 0, ErrNotOpen
	}
	if limit <= 0 {
		limit = DefaultPollLimit
	}
	top := m.queue.peek()
	if top == nil {
		return 0, nil
	}
	instant := top.next.Time()

	n := 0
	for n < limit {
		top = m.queue.peek()
		if top == nil || !top.next.Time().Equal(instant) {
			break
		}
		ev := top.next
		ok, err := m.advance(top)
		if err != nil {
			return n, err
		}
		if ok {
			heap.Fix(&m.queue, top.index)
		} else {
			heap.Pop(&m.queue)
		}
		n++
		if err := handler(ev); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Close releases every source still in the queue. It is safe to call more
// than once.
func (m *MultiSymbolSupplier) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var errs []error
	for _, src := range m.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.queue = nil
	return errors.Join(errs...)
}

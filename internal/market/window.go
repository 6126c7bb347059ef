package market

import (
	"context"
	"time"
	"tradesim/types"
)

// WindowSource passes on the events of its source stamped within
// [start, end]. A zero bound leaves that side open. The source must be time
// sorted: the first event after end exhausts the window.
type WindowSource struct {
	src        Source
	start, end time.Time
	done       bool
}

func NewWindowSource(src Source, start, end time.Time) *WindowSource {
	return &WindowSource{src: src, start: start, end: end}
}

func (w *WindowSource) Open(ctx context.Context) error {
	if o, ok := w.src.(opener); ok {
		return o.Open(ctx)
	}
	return nil
}

func (w *WindowSource) Next() (types.MarketEvent, bool, error) {
	if w.done {
		return nil, false, nil
	}
	for {
		ev, ok, err := w.src.Next()
		if err != nil || !ok {
			return ev, ok, err
		}
		if !w.start.IsZero() && ev.Time().Before(w.start) {
			continue
		}
		if !w.end.IsZero() && ev.Time().After(w.end) {
			w.done = true
			return nil, false, nil
		}
		return ev, true, nil
	}
}

func (w *WindowSource) Close() error {
	w.done = true
	return w.src.Close()
}

package order

import "tradesim/types"

// StatusListener observes state changes of an order. It is invoked
// synchronously from the goroutine that mutates the order.
type StatusListener interface {
	OnStatusChange(o View, from, to types.OrderState)
}

type StatusListenerFunc func(o View, from, to types.OrderState)

func (f StatusListenerFunc) OnStatusChange(o View, from, to types.OrderState) { f(o, from, to) }

type listenerEntry struct {
	id int
	l  StatusListener
}

// AddListener registers l and returns a handle for RemoveListener.
func (o *Order) AddListener(l StatusListener) int {
	o.listenerID++
	o.listeners = append(o.listeners, listenerEntry{id: o.listenerID, l: l})
	return o.listenerID
}

// RemoveListener drops the listener registered under id. Unknown ids are ignored.
func (o *Order) RemoveListener(id int) {
	for i, e := range o.listeners {
		if e.id == id {
			o.listeners = append(o.listeners[:i:i], o.listeners[i+1:]...)
			return
		}
	}
}

// notify iterates a snapshot so listeners may add or remove listeners.
func (o *Order) notify(from, to types.OrderState) {
	if len(o.listeners) == 0 {
		return
	}
	snapshot := make([]listenerEntry, len(o.listeners))
	copy(snapshot, o.listeners)
	for _, e := range snapshot {
		e.l.OnStatusChange(o, from, to)
	}
}

package order

import (
	"errors"
	"fmt"
	"tradesim/types"
)

var (
	ErrIllegalTransition = errors.New("illegal order transition")
	ErrOverfill          = errors.New("invalid fill quantity")
	ErrInvalidRequest    = errors.New("invalid order request")
)

// transitions is the complete adjacency table. Terminal states have no entry.
var transitions = map[types.OrderState][]types.OrderState{
	types.OrderNewlyCreated: {
		types.OrderSubmitted,
		types.OrderExpired,
	},
	types.OrderSubmitted: {
		types.OrderAccepted,
		types.OrderPartiallyFilled,
		types.OrderFilled,
		types.OrderCancelling,
		types.OrderCancelled,
		types.OrderExpired,
		types.OrderRejected,
	},
	types.OrderAccepted: {
		types.OrderFilled,
		types.OrderPartiallyFilled,
		types.OrderCancelling,
		types.OrderCancelled,
		types.OrderExpired,
	},
	types.OrderPartiallyFilled: {
		types.OrderFilled,
		types.OrderPartiallyFilled,
		types.OrderCancelling,
		types.OrderCancelled,
	},
	types.OrderCancelling: {
		types.OrderCancelled,
	},
}

// CanTransition reports whether from -> to is in the adjacency table.
func CanTransition(from, to types.OrderState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Successors returns a copy of the states directly reachable from s.
func Successors(s types.OrderState) []types.OrderState {
	return append([]types.OrderState(nil), transitions[s]...)
}

func illegal(from, to types.OrderState) error {
	return fmt.Errorf("%s -> %s: %w", from, to, ErrIllegalTransition)
}

package order

import (
	"errors"
	"fmt"
	"time"
)

// Status represents the lifecycle state of an order
type Status string

const (
	StatusPending         Status = "pending"
	StatusOpen            Status = "open"
	StatusPartiallyFilled Status = "partially_filled"
	StatusFilled          Status = "filled"
	StatusCancelled       Status = "cancelled"
	StatusExpired         Status = "expired"
)

var ErrInvalidTransition = errors.New("invalid order state transition")

// transitions lists every legal edge. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusPending:         {StatusOpen, StatusCancelled},
	StatusOpen:            {StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusExpired},
	StatusPartiallyFilled: {StatusPartiallyFilled, StatusFilled},
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusExpired
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves o to the given status and stamps UpdatedAt.
// The order is left untouched when the edge is illegal.
func Transition(o *Order, to Status, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s (order %s)", ErrInvalidTransition, o.Status, to, o.ID)
	}
	o.Status = to
	o.UpdatedAt = at
	if to == StatusFilled {
		o.FilledAt = at
	}
	return nil
}

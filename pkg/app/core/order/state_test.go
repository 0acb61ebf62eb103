package order

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusOpen, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusFilled, false},
		{StatusOpen, StatusFilled, true},
		{StatusOpen, StatusPartiallyFilled, true},
		{StatusOpen, StatusCancelled, true},
		{StatusOpen, StatusExpired, true},
		{StatusPartiallyFilled, StatusPartiallyFilled, true},
		{StatusPartiallyFilled, StatusFilled, true},
		{StatusPartiallyFilled, StatusCancelled, false},
		{StatusPartiallyFilled, StatusExpired, false},
		{StatusFilled, StatusCancelled, false},
		{StatusCancelled, StatusCancelled, false},
		{StatusCancelled, StatusOpen, false},
		{StatusExpired, StatusOpen, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestTerminalStatesHaveNoExit(t *testing.T) {
	all := []Status{StatusPending, StatusOpen, StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusExpired}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("terminal %s must not transition to %s", from, to)
			}
		}
	}
}

func TestTransitionStampsAndRejects(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	o := &Order{ID: "o1", Status: StatusOpen}

	if err := Transition(o, StatusFilled, at); err != nil {
		t.Fatalf("open -> filled: %v", err)
	}
	if !o.FilledAt.Equal(at) || !o.UpdatedAt.Equal(at) {
		t.Errorf("timestamps not stamped: %+v", o)
	}

	err := Transition(o, StatusCancelled, at.Add(time.Second))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("filled -> cancelled: got %v", err)
	}
	if o.Status != StatusFilled {
		t.Errorf("status changed on rejected transition: %s", o.Status)
	}
	if !strings.Contains(err.Error(), "o1") {
		t.Errorf("error should name the order: %v", err)
	}
}

func TestOrderHelpers(t *testing.T) {
	o := &Order{
		Qty:       decimal.RequireFromString("1.5"),
		FilledQty: decimal.RequireFromString("0.5"),
		Status:    StatusPartiallyFilled,
		ExpiresAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if !o.Remaining().Equal(decimal.NewFromInt(1)) {
		t.Errorf("remaining: got %s", o.Remaining())
	}
	if !o.IsResting() || !o.IsActive() {
		t.Error("partially filled order should be resting and active")
	}
	if !o.Expired(o.ExpiresAt) {
		t.Error("expiry is inclusive")
	}
	if Buy.Opposite() != Sell || !Sell.Sign().Equal(decimal.NewFromInt(-1)) {
		t.Error("side helpers")
	}
	if !strings.HasPrefix(NewExchangeOrderID(), "paper_") || len(NewExchangeOrderID()) != 22 {
		t.Error("exchange order id format")
	}
}

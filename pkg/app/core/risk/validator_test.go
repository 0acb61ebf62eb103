package risk

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/order"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func limits() Limits {
	return Limits{
		MinQty:           d("0.001"),
		MaxPositionSize:  d("10"),
		MaxLeverage:      d("10"),
		MaxOpenPositions: 2,
		MaxDailyDrawdown: d("0.05"),
	}
}

func healthy() AccountState {
	return AccountState{
		Available:      d("10000"),
		Equity:         d("10000"),
		DayStartEquity: d("10000"),
	}
}

func proposal(qty, notional string) Proposal {
	return Proposal{Symbol: "BTC-USDT", Side: order.Buy, Qty: d(qty), Notional: d(notional), Leverage: d("10")}
}

func TestValidateReasons(t *testing.T) {
	tests := []struct {
		name   string
		state  func() AccountState
		prop   Proposal
		reason Reason
	}{
		{"accepted", healthy, proposal("0.1", "5002.5"), ""},
		{"below min qty", healthy, proposal("0.0001", "5"), ReasonQuantityOutOfRange},
		{"above max qty", healthy, proposal("11", "5"), ReasonQuantityOutOfRange},
		{"notional above buying power", healthy, proposal("3", "150000"), ReasonInsufficientMargin},
		{"margin above available at chosen leverage", healthy, Proposal{Qty: d("1"), Notional: d("50000"), Leverage: d("2")}, ReasonInsufficientMargin},
		{"too many positions", func() AccountState {
			s := healthy()
			s.OpenPositions = 2
			return s
		}, proposal("0.1", "100"), ReasonMaxOpenPositions},
		{"adding to held symbol keeps count", func() AccountState {
			s := healthy()
			s.OpenPositions = 2
			s.HasPosition = true
			return s
		}, proposal("0.1", "100"), ""},
		{"drawdown reached", func() AccountState {
			s := healthy()
			s.Equity = d("9500")
			return s
		}, proposal("0.1", "100"), ReasonDrawdownLimit},
		{"breaker latched despite recovery", func() AccountState {
			s := healthy()
			s.BreakerTripped = true
			return s
		}, proposal("0.1", "100"), ReasonDrawdownLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.state(), tt.prop, limits())
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("unexpected rejection: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrRejected) {
				t.Fatalf("want ErrRejected, got %v", err)
			}
			if got, _ := ReasonOf(err); got != tt.reason {
				t.Errorf("reason: got %s, want %s", got, tt.reason)
			}
		})
	}
}

func TestValidateShortCircuitsInOrder(t *testing.T) {
	// fails every check; the first one wins
	s := AccountState{Available: d("1"), Equity: d("1"), DayStartEquity: d("100"), OpenPositions: 5}
	err := Validate(s, proposal("100", "1000000"), limits())
	if r, _ := ReasonOf(err); r != ReasonQuantityOutOfRange {
		t.Fatalf("got %s, want %s", r, ReasonQuantityOutOfRange)
	}
	err = Validate(s, proposal("1", "1000000"), limits())
	if r, _ := ReasonOf(err); r != ReasonInsufficientMargin {
		t.Fatalf("got %s, want %s", r, ReasonInsufficientMargin)
	}
	err = Validate(s, proposal("1", "1"), limits())
	if r, _ := ReasonOf(err); r != ReasonMaxOpenPositions {
		t.Fatalf("got %s, want %s", r, ReasonMaxOpenPositions)
	}
}

func TestLatchedBreakerWinsOverOtherChecks(t *testing.T) {
	s := AccountState{Available: d("1"), Equity: d("10000"), DayStartEquity: d("10000"), OpenPositions: 5, BreakerTripped: true}
	for _, p := range []Proposal{
		proposal("100", "1"),     // quantity out of range
		proposal("1", "1000000"), // insufficient margin
		proposal("0.1", "0.5"),   // max open positions
	} {
		if r, _ := ReasonOf(Validate(s, p, limits())); r != ReasonDrawdownLimit {
			t.Errorf("qty %s: got %s, want %s", p.Qty, r, ReasonDrawdownLimit)
		}
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	s := healthy()
	before := s
	_ = Validate(s, proposal("0.1", "100"), limits())
	if !s.Available.Equal(before.Available) || s.OpenPositions != before.OpenPositions {
		t.Error("state mutated")
	}
}

func TestDrawdown(t *testing.T) {
	s := AccountState{Equity: d("9800"), DayStartEquity: d("10000")}
	if got := Drawdown(s); !got.Equal(d("0.02")) {
		t.Errorf("drawdown: got %s", got)
	}
	s.Equity = d("10500")
	if !Drawdown(s).IsZero() {
		t.Error("gains are not drawdown")
	}
	if DrawdownBreached(AccountState{Equity: d("1"), DayStartEquity: d("100")}, Limits{}) {
		t.Error("zero limit disables the breaker")
	}
}

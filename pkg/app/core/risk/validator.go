package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/order"
)

// Reason identifies which pre-trade check declined an order.
type Reason string

const (
	ReasonQuantityOutOfRange Reason = "quantity_out_of_range"
	ReasonInsufficientMargin Reason = "insufficient_margin"
	ReasonMaxOpenPositions   Reason = "max_open_positions"
	ReasonDrawdownLimit      Reason = "drawdown_limit"
)

// ErrRejected is matched by every RejectedError.
var ErrRejected = errors.New("risk rejected")

// RejectedError carries the reason code of a declined order.
type RejectedError struct {
	Reason Reason
	Detail string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("risk rejected (%s): %s", e.Reason, e.Detail)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

func reject(reason Reason, format string, args ...any) error {
	return &RejectedError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the reason code from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}

// Limits are the configured pre-trade bounds.
type Limits struct {
	MinQty           decimal.Decimal
	MaxPositionSize  decimal.Decimal
	MaxLeverage      decimal.Decimal
	MaxOpenPositions int
	MaxDailyDrawdown decimal.Decimal
}

// AccountState is the slice of the portfolio the checks read.
type AccountState struct {
	Available      decimal.Decimal
	Equity         decimal.Decimal
	DayStartEquity decimal.Decimal
	OpenPositions  int
	// HasPosition is true when the account already holds the proposal's symbol.
	HasPosition    bool
	BreakerTripped bool
}

// Proposal is an order under consideration.
type Proposal struct {
	Symbol string
	Side   order.Side
	Qty    decimal.Decimal
	// Notional is quantity times the reference price, already padded for
	// worst-case slippage on market-style orders.
	Notional decimal.Decimal
	Leverage decimal.Decimal
}

// Drawdown returns the day's loss as a fraction of day-start equity.
// Gains yield zero.
func Drawdown(s AccountState) decimal.Decimal {
	if !s.DayStartEquity.IsPositive() {
		return decimal.Zero
	}
	loss := s.DayStartEquity.Sub(s.Equity)
	if !loss.IsPositive() {
		return decimal.Zero
	}
	return loss.Div(s.DayStartEquity)
}

// DrawdownBreached reports whether the day's loss reached the limit.
func DrawdownBreached(s AccountState, l Limits) bool {
	if !l.MaxDailyDrawdown.IsPositive() {
		return false
	}
	return Drawdown(s).GreaterThanOrEqual(l.MaxDailyDrawdown)
}

// Validate runs the checks in order and returns the first failure as a
// *RejectedError. A latched breaker rejects before any per-order check, so
// every order placed after the trip reports drawdown_limit. It never mutates
// its inputs.
func Validate(s AccountState, p Proposal, l Limits) error {
	if s.BreakerTripped {
		return reject(ReasonDrawdownLimit, "circuit breaker latched at drawdown %s, limit %s", Drawdown(s).StringFixed(4), l.MaxDailyDrawdown)
	}

	if p.Qty.LessThan(l.MinQty) || p.Qty.GreaterThan(l.MaxPositionSize) {
		return reject(ReasonQuantityOutOfRange, "qty %s outside [%s, %s]", p.Qty, l.MinQty, l.MaxPositionSize)
	}

	buyingPower := s.Available.Mul(l.MaxLeverage)
	if p.Notional.GreaterThan(buyingPower) {
		return reject(ReasonInsufficientMargin, "notional %s exceeds buying power %s", p.Notional.StringFixed(2), buyingPower.StringFixed(2))
	}
	if p.Leverage.IsPositive() {
		if margin := p.Notional.Div(p.Leverage); margin.GreaterThan(s.Available) {
			return reject(ReasonInsufficientMargin, "initial margin %s exceeds available %s", margin.StringFixed(2), s.Available.StringFixed(2))
		}
	}

	postTrade := s.OpenPositions
	if !s.HasPosition {
		postTrade++
	}
	if postTrade > l.MaxOpenPositions {
		return reject(ReasonMaxOpenPositions, "%d open positions after trade, max %d", postTrade, l.MaxOpenPositions)
	}

	if DrawdownBreached(s, l) {
		return reject(ReasonDrawdownLimit, "daily drawdown %s reached limit %s", Drawdown(s).StringFixed(4), l.MaxDailyDrawdown)
	}
	return nil
}

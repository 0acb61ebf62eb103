package order

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Side is the direction of an order or fill.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() decimal.Decimal {
	if s == Buy {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// Type is the closed set of order variants the fill simulator understands.
type Type string

const (
	Market    Type = "market"
	Limit     Type = "limit"
	Stop      Type = "stop"
	StopLimit Type = "stop_limit"
)

func (t Type) Valid() bool {
	switch t {
	case Market, Limit, Stop, StopLimit:
		return true
	}
	return false
}

// NeedsLimitPrice reports whether the variant carries a limit price.
func (t Type) NeedsLimitPrice() bool { return t == Limit || t == StopLimit }

// NeedsStopPrice reports whether the variant carries a stop trigger.
func (t Type) NeedsStopPrice() bool { return t == Stop || t == StopLimit }

// Order is a simulated order owned by a single account.
// Prices and quantities are in quote and base units respectively.
type Order struct {
	ID              string         `json:"id"`
	ExchangeOrderID string         `json:"exchangeOrderId"`
	Account         common.Address `json:"account"`
	Symbol          string         `json:"symbol"`
	Side            Side           `json:"side"`
	Type            Type           `json:"type"`

	Qty        decimal.Decimal     `json:"qty"`
	LimitPrice decimal.NullDecimal `json:"limitPrice"`
	StopPrice  decimal.NullDecimal `json:"stopPrice"`
	Leverage   decimal.Decimal     `json:"leverage"`

	// Attached to the position this order opens.
	StopLoss   decimal.NullDecimal `json:"stopLoss"`
	TakeProfit decimal.NullDecimal `json:"takeProfit"`

	Status       Status          `json:"status"`
	FilledQty    decimal.Decimal `json:"filledQty"`
	AvgFillPrice decimal.Decimal `json:"avgFillPrice"`

	// Triggered is set once a stop or stop-limit crossed its stop price.
	Triggered bool `json:"triggered"`

	// ReservedMargin is collateral held for the unfilled remainder.
	ReservedMargin decimal.Decimal `json:"reservedMargin"`

	// Seq orders resting orders oldest first within an account.
	Seq uint64 `json:"seq"`

	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
	StrategyName string    `json:"strategyName,omitempty"`
	Notes        string    `json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	FilledAt  time.Time `json:"filledAt,omitempty"`
}

// Remaining returns unfilled quantity
func (o *Order) Remaining() decimal.Decimal {
	return o.Qty.Sub(o.FilledQty)
}

// IsResting reports whether the order is waiting on a qualifying tick.
func (o *Order) IsResting() bool {
	return o.Status == StatusOpen || o.Status == StatusPartiallyFilled
}

// IsActive reports whether the order still counts against the account.
func (o *Order) IsActive() bool {
	return o.Status == StatusPending || o.IsResting()
}

// Expired reports whether the order carries an expiry that has elapsed at now.
func (o *Order) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && !now.Before(o.ExpiresAt)
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}

// NewExchangeOrderID returns a synthetic exchange id in the form paper_<16 hex>.
func NewExchangeOrderID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "paper_0000000000000000"
	}
	return "paper_" + hex.EncodeToString(b[:])
}

// Request is the caller-supplied description of a new order.
type Request struct {
	Symbol       string              `json:"symbol"`
	Side         Side                `json:"side"`
	Type         Type                `json:"type"`
	Qty          decimal.Decimal     `json:"qty"`
	LimitPrice   decimal.NullDecimal `json:"limitPrice"`
	StopPrice    decimal.NullDecimal `json:"stopPrice"`
	Leverage     decimal.NullDecimal `json:"leverage"`
	StopLoss     decimal.NullDecimal `json:"stopLoss"`
	TakeProfit   decimal.NullDecimal `json:"takeProfit"`
	ExpiresAt    time.Time           `json:"expiresAt,omitempty"`
	StrategyName string              `json:"strategyName,omitempty"`
	Notes        string              `json:"notes,omitempty"`
}

package account

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/order"
)

type PositionSide string

const (
	Long  PositionSide = "long"
	Short PositionSide = "short"
)

// SideFor maps the side of an opening fill to the position it creates.
func SideFor(s order.Side) PositionSide {
	if s == order.Buy {
		return Long
	}
	return Short
}

// Sign returns +1 for long and -1 for short.
func (s PositionSide) Sign() decimal.Decimal {
	if s == Long {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// ClosingSide is the order side that reduces a position of this side.
func (s PositionSide) ClosingSide() order.Side {
	if s == Long {
		return order.Sell
	}
	return order.Buy
}

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// CloseReason records what removed a position.
type CloseReason string

const (
	CloseByFill        CloseReason = "fill"
	CloseByStopLoss    CloseReason = "stop_loss"
	CloseByTakeProfit  CloseReason = "take_profit"
	CloseByLiquidation CloseReason = "liquidation"
	CloseByManual      CloseReason = "manual"
)

// Position is the net exposure of one account in one symbol.
type Position struct {
	ID      string         `json:"id"`
	Account common.Address `json:"account"`
	Symbol  string         `json:"symbol"`
	Side    PositionSide   `json:"side"`

	// Qty is always positive while open; direction lives in Side.
	Qty              decimal.Decimal `json:"qty"`
	EntryPrice       decimal.Decimal `json:"entryPrice"` // quantity-weighted average
	MarkPrice        decimal.Decimal `json:"markPrice"`
	UnrealizedPnL    decimal.Decimal `json:"unrealizedPnl"`
	RealizedPnL      decimal.Decimal `json:"realizedPnl"`
	Leverage         decimal.Decimal `json:"leverage"`
	Margin           decimal.Decimal `json:"margin"`
	LiquidationPrice decimal.Decimal `json:"liquidationPrice"`

	StopLoss   decimal.NullDecimal `json:"stopLoss"`
	TakeProfit decimal.NullDecimal `json:"takeProfit"`

	Status       PositionStatus  `json:"status"`
	CloseReason  CloseReason     `json:"closeReason,omitempty"`
	ExitPrice    decimal.Decimal `json:"exitPrice"`
	StrategyName string          `json:"strategyName,omitempty"`

	OpenedAt  time.Time `json:"openedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ClosedAt  time.Time `json:"closedAt,omitempty"`
}

// IsOpen reports whether the position still holds quantity.
func (p *Position) IsOpen() bool { return p.Status == PositionOpen }

// PnLAt computes (price - entry) * qty * sign for the given quantity.
func (p *Position) PnLAt(price, qty decimal.Decimal) decimal.Decimal {
	return price.Sub(p.EntryPrice).Mul(qty).Mul(p.Side.Sign())
}

// Notional returns position notional value at its mark price
func (p *Position) Notional() decimal.Decimal {
	return p.Qty.Mul(p.MarkPrice)
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}

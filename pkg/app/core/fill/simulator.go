package fill

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/market"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
)

var bpsDenominator = decimal.NewFromInt(10000)

// Config controls the slippage and liquidity model.
type Config struct {
	SlippageBps    decimal.Decimal
	MaxSlippageBps decimal.Decimal
	// MaxFillRatio is the largest fraction of an order's quantity a resting
	// limit can fill on one tick. Values <= 0 or >= 1 mean no cap.
	MaxFillRatio decimal.Decimal
}

// Result describes what a tick does to one order.
// A zero Qty means nothing fills.
type Result struct {
	Triggered bool
	Qty       decimal.Decimal
	Price     decimal.Decimal
}

// Filled reports whether the result carries a fill.
func (r Result) Filled() bool { return r.Qty.IsPositive() }

// Simulator decides fill eligibility and price. It holds no state and is
// safe for concurrent use.
type Simulator struct {
	cfg Config
}

func NewSimulator(cfg Config) *Simulator {
	return &Simulator{cfg: cfg}
}

// EffectiveSlippageBps is the configured rate clamped to the maximum.
func (s *Simulator) EffectiveSlippageBps() decimal.Decimal {
	rate := s.cfg.SlippageBps
	if s.cfg.MaxSlippageBps.IsPositive() && rate.GreaterThan(s.cfg.MaxSlippageBps) {
		rate = s.cfg.MaxSlippageBps
	}
	if rate.IsNegative() {
		return decimal.Zero
	}
	return rate
}

// ApplySlippage moves price against the trader: buys higher, sells lower.
func (s *Simulator) ApplySlippage(price decimal.Decimal, side order.Side) decimal.Decimal {
	offset := price.Mul(s.EffectiveSlippageBps()).Div(bpsDenominator)
	if side == order.Buy {
		return price.Add(offset)
	}
	return price.Sub(offset)
}

// Evaluate decides what tick does to o. It never mutates o; the caller
// records Triggered and applies the fill.
func (s *Simulator) Evaluate(o *order.Order, tick market.Tick) Result {
	if !o.IsResting() || o.Symbol != tick.Symbol || !o.Remaining().IsPositive() {
		return Result{}
	}
	switch o.Type {
	case order.Market:
		return s.evalMarket(o, tick)
	case order.Limit:
		return s.evalLimit(o, tick)
	case order.Stop:
		return s.evalStop(o, tick)
	case order.StopLimit:
		return s.evalStopLimit(o, tick)
	}
	return Result{}
}

// Market orders never rest: the whole remainder fills at the slipped price.
func (s *Simulator) evalMarket(o *order.Order, tick market.Tick) Result {
	return Result{
		Qty:   o.Remaining(),
		Price: s.ApplySlippage(tick.Price, o.Side),
	}
}

// Limit orders fill at the limit price, never better.
func (s *Simulator) evalLimit(o *order.Order, tick market.Tick) Result {
	if !o.LimitPrice.Valid || !limitCrossed(o.Side, tick.Price, o.LimitPrice.Decimal) {
		return Result{}
	}
	return Result{
		Qty:   s.cappedQty(o),
		Price: o.LimitPrice.Decimal,
	}
}

// Once triggered, a stop behaves as a market order on the same tick.
func (s *Simulator) evalStop(o *order.Order, tick market.Tick) Result {
	triggered := o.Triggered
	if !triggered {
		if !o.StopPrice.Valid || !stopCrossed(o.Side, tick.Price, o.StopPrice.Decimal) {
			return Result{}
		}
		triggered = true
	}
	res := s.evalMarket(o, tick)
	res.Triggered = triggered
	return res
}

// Once triggered, a stop-limit rests as a limit; the limit is checked on the
// trigger tick too.
func (s *Simulator) evalStopLimit(o *order.Order, tick market.Tick) Result {
	triggered := o.Triggered
	if !triggered {
		if !o.StopPrice.Valid || !stopCrossed(o.Side, tick.Price, o.StopPrice.Decimal) {
			return Result{}
		}
		triggered = true
	}
	res := s.evalLimit(o, tick)
	res.Triggered = triggered
	return res
}

func (s *Simulator) cappedQty(o *order.Order) decimal.Decimal {
	remaining := o.Remaining()
	ratio := s.cfg.MaxFillRatio
	if !ratio.IsPositive() || ratio.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return remaining
	}
	limit := o.Qty.Mul(ratio)
	if limit.LessThan(remaining) {
		return limit
	}
	return remaining
}

// buy: tick <= limit, sell: tick >= limit
func limitCrossed(side order.Side, price, limit decimal.Decimal) bool {
	if side == order.Buy {
		return price.LessThanOrEqual(limit)
	}
	return price.GreaterThanOrEqual(limit)
}

// buy: tick >= stop, sell: tick <= stop
func stopCrossed(side order.Side, price, stop decimal.Decimal) bool {
	if side == order.Buy {
		return price.GreaterThanOrEqual(stop)
	}
	return price.LessThanOrEqual(stop)
}

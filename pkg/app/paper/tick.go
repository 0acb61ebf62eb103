package paper

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/account"
	"github.com/uhyunpark/papertrade/pkg/app/core/market"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
	"github.com/uhyunpark/papertrade/pkg/app/core/risk"
)

func (w *worker) onTick(ctx context.Context, t market.Tick) {
	if prev, ok := w.prices[t.Symbol]; ok && t.Timestamp.Before(prev.Timestamp) {
		return
	}
	w.prices[t.Symbol] = t

	if err := w.ensureHydrated(ctx); err != nil {
		w.log.Errorw("tick_skipped", "symbol", t.Symbol, "error", err)
		return
	}
	if !w.affectedBy(t) {
		return
	}

	if err := w.mutate(ctx, func() error { return w.applyTick(t) }); err != nil {
		w.log.Errorw("tick_failed", "symbol", t.Symbol, "price", t.Price.String(), "error", err)
	}
}

// affectedBy skips ticks that cannot change this account's state.
func (w *worker) affectedBy(t market.Tick) bool {
	if _, ok := w.ledger.Position(t.Symbol); ok {
		return true
	}
	if len(w.restingOn(t.Symbol)) > 0 {
		return true
	}
	return t.Timestamp.UTC().Format("2006-01-02") > w.ledger.Account().TradingDay
}

// applyTick runs one tick through the account: expiry, fills oldest first,
// then mark-to-market so PnL reflects the tick's own fills.
func (w *worker) applyTick(t market.Tick) error {
	w.ledger.RollDay(t.Timestamp)

	for _, o := range w.restingOn(t.Symbol) {
		if o.Status == order.StatusOpen && o.Expired(t.Timestamp) {
			if err := w.expire(o, t.Timestamp); err != nil {
				return err
			}
			continue
		}

		res := w.eng.sim.Evaluate(o, t)
		if res.Triggered && !o.Triggered {
			o.Triggered = true
			o.UpdatedAt = t.Timestamp
			w.touch(o)
			w.event(Event{Type: EventOrderTriggered, Order: o.Clone(), At: t.Timestamp})
		}
		if res.Filled() {
			if err := w.fillOrder(o, res.Qty, res.Price, t.Timestamp); err != nil {
				return err
			}
		}
	}

	if _, err := w.ledger.MarkToMarket(t.Symbol, t.Price, t.Timestamp); err != nil {
		return err
	}
	w.checkBreaker(t.Timestamp)
	return nil
}

// fillOrder applies qty at price to the ledger and advances the order.
// Reserved margin is released in proportion to the filled share.
func (w *worker) fillOrder(o *order.Order, qty, price decimal.Decimal, at time.Time) error {
	remaining := o.Remaining()
	release := o.ReservedMargin
	if qty.LessThan(remaining) {
		release = o.ReservedMargin.Mul(qty).Div(remaining)
	}

	if _, err := w.ledger.ApplyFill(account.Fill{
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Qty:        qty,
		Price:      price,
		Leverage:   o.Leverage,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
		Strategy:   o.StrategyName,
		At:         at,
	}); err != nil {
		return err
	}

	filled := o.FilledQty.Add(qty)
	o.AvgFillPrice = o.AvgFillPrice.Mul(o.FilledQty).Add(price.Mul(qty)).Div(filled)
	o.FilledQty = filled
	o.ReservedMargin = o.ReservedMargin.Sub(release)

	next := order.StatusPartiallyFilled
	if filled.GreaterThanOrEqual(o.Qty) {
		next = order.StatusFilled
		o.ReservedMargin = decimal.Zero
	}
	if err := order.Transition(o, next, at); err != nil {
		return err
	}
	w.touch(o)
	w.event(Event{Type: EventOrderFilled, Order: o.Clone(), At: at})
	w.log.Infow("order_filled", "order_id", o.ID, "symbol", o.Symbol, "side", o.Side,
		"qty", qty.String(), "price", price.String(), "status", o.Status)
	return nil
}

func (w *worker) expire(o *order.Order, at time.Time) error {
	if err := order.Transition(o, order.StatusExpired, at); err != nil {
		return err
	}
	o.ReservedMargin = decimal.Zero
	o.Notes = "expired"
	w.touch(o)
	w.event(Event{Type: EventOrderExpired, Order: o.Clone(), At: at})
	w.log.Infow("order_expired", "order_id", o.ID, "symbol", o.Symbol)
	return nil
}

// checkBreaker latches the daily drawdown breaker once the loss limit is hit.
func (w *worker) checkBreaker(at time.Time) {
	state := w.riskState("")
	if state.BreakerTripped || !risk.DrawdownBreached(state, w.eng.cfg.Risk) {
		return
	}
	if w.ledger.TripBreaker(at) {
		w.event(Event{Type: EventBreakerTripped, At: at})
		w.log.Warnw("drawdown_breaker_tripped", "drawdown", risk.Drawdown(state).StringFixed(4),
			"equity", state.Equity.String(), "day_start_equity", state.DayStartEquity.String())
	}
}

package paper

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/account"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
	"github.com/uhyunpark/papertrade/pkg/app/core/risk"
)

var bps = decimal.NewFromInt(10000)

func (w *worker) placeOrder(ctx context.Context, req order.Request, now time.Time) (*order.Order, error) {
	if err := w.ensureHydrated(ctx); err != nil {
		return nil, err
	}
	// Day rollover and breaker latching stand on their own, whatever happens
	// to the order.
	if err := w.mutate(ctx, func() error {
		w.ledger.RollDay(now)
		w.checkBreaker(now)
		return nil
	}); err != nil {
		return nil, err
	}

	cfg := w.eng.cfg
	ref, err := w.referencePrice(req)
	if err != nil {
		return nil, err
	}
	notional := req.Qty.Mul(ref)
	if req.Type == order.Market || req.Type == order.Stop {
		notional = notional.Mul(decimal.NewFromInt(1).Add(cfg.Fill.MaxSlippageBps.Div(bps)))
	}
	leverage := cfg.Risk.MaxLeverage
	if req.Leverage.Valid {
		leverage = req.Leverage.Decimal
	}

	proposal := risk.Proposal{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Qty:      req.Qty,
		Notional: notional,
		Leverage: leverage,
	}
	if err := risk.Validate(w.riskState(req.Symbol), proposal, cfg.Risk); err != nil {
		reason, _ := risk.ReasonOf(err)
		w.log.Infow("order_rejected", "symbol", req.Symbol, "side", req.Side, "type", req.Type,
			"qty", req.Qty.String(), "reason", reason)
		return nil, err
	}

	var placed *order.Order
	err = w.mutate(ctx, func() error {
		w.seq++
		o := &order.Order{
			ID:              w.eng.NewID(),
			ExchangeOrderID: order.NewExchangeOrderID(),
			Account:         w.id,
			Symbol:          req.Symbol,
			Side:            req.Side,
			Type:            req.Type,
			Qty:             req.Qty,
			LimitPrice:      req.LimitPrice,
			StopPrice:       req.StopPrice,
			Leverage:        leverage,
			StopLoss:        req.StopLoss,
			TakeProfit:      req.TakeProfit,
			Status:          order.StatusPending,
			FilledQty:       decimal.Zero,
			AvgFillPrice:    decimal.Zero,
			ReservedMargin:  notional.Div(leverage),
			Seq:             w.seq,
			ExpiresAt:       req.ExpiresAt,
			StrategyName:    req.StrategyName,
			Notes:           req.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := order.Transition(o, order.StatusOpen, now); err != nil {
			return err
		}
		w.orders[o.ID] = o
		w.touch(o)
		w.event(Event{Type: EventOrderAccepted, Order: o.Clone(), At: now})
		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.log.Infow("order_placed", "order_id", placed.ID, "symbol", placed.Symbol, "side", placed.Side,
		"type", placed.Type, "qty", placed.Qty.String(), "reserved_margin", placed.ReservedMargin.StringFixed(2))
	return placed.Clone(), nil
}

// referencePrice is the price used to size an order before it fills.
func (w *worker) referencePrice(req order.Request) (decimal.Decimal, error) {
	switch req.Type {
	case order.Market:
		t, ok := w.prices[req.Symbol]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: no tick observed for %s", ErrStalePriceData, req.Symbol)
		}
		return t.Price, nil
	case order.Stop:
		return req.StopPrice.Decimal, nil
	default:
		return req.LimitPrice.Decimal, nil
	}
}

func (w *worker) cancelOrder(ctx context.Context, orderID string, now time.Time) (*order.Order, error) {
	if err := w.ensureHydrated(ctx); err != nil {
		return nil, err
	}
	o, ok := w.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	err := w.mutate(ctx, func() error {
		if err := order.Transition(o, order.StatusCancelled, now); err != nil {
			return err
		}
		o.ReservedMargin = decimal.Zero
		if o.Notes == "" {
			o.Notes = "cancelled by user"
		}
		w.touch(o)
		w.event(Event{Type: EventOrderCancelled, Order: o.Clone(), At: now})
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.log.Infow("order_cancelled", "order_id", o.ID, "symbol", o.Symbol)
	return o.Clone(), nil
}

func (w *worker) closePosition(ctx context.Context, positionID string, now time.Time) (*account.Position, error) {
	if err := w.ensureHydrated(ctx); err != nil {
		return nil, err
	}
	pos, ok := w.ledger.PositionByID(positionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, positionID)
	}
	t, ok := w.prices[pos.Symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no tick observed for %s", ErrStalePriceData, pos.Symbol)
	}
	price := w.eng.sim.ApplySlippage(t.Price, pos.Side.ClosingSide())

	var closed *account.Position
	err := w.mutate(ctx, func() error {
		p, _, err := w.ledger.Close(positionID, price, account.CloseByManual, now)
		closed = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

func (w *worker) deposit(ctx context.Context, amount decimal.Decimal, now time.Time) (Snapshot, error) {
	if err := w.ensureHydrated(ctx); err != nil {
		return Snapshot{}, err
	}
	if err := w.mutate(ctx, func() error {
		w.ledger.Deposit(amount, now)
		return nil
	}); err != nil {
		return Snapshot{}, err
	}
	w.log.Infow("deposit", "amount", amount.String())
	return w.portfolio(), nil
}

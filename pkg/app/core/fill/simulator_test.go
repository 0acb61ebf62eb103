package fill

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/market"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

func tick(price string) market.Tick {
	return market.Tick{
		Symbol:    "BTC-USDT",
		Price:     d(price),
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newSim() *Simulator {
	return NewSimulator(Config{SlippageBps: d("5"), MaxSlippageBps: d("50"), MaxFillRatio: d("1")})
}

func restingOrder(typ order.Type, side order.Side, qty string) *order.Order {
	return &order.Order{
		ID:     "o",
		Symbol: "BTC-USDT",
		Side:   side,
		Type:   typ,
		Qty:    d(qty),
		Status: order.StatusOpen,
	}
}

func TestMarketOrderSlippage(t *testing.T) {
	sim := newSim()

	buy := restingOrder(order.Market, order.Buy, "0.1")
	res := sim.Evaluate(buy, tick("50000"))
	if !res.Qty.Equal(d("0.1")) || !res.Price.Equal(d("50025")) {
		t.Errorf("buy: got qty=%s price=%s, want 0.1 @ 50025", res.Qty, res.Price)
	}

	sell := restingOrder(order.Market, order.Sell, "0.1")
	res = sim.Evaluate(sell, tick("50000"))
	if !res.Price.Equal(d("49975")) {
		t.Errorf("sell: got price=%s, want 49975", res.Price)
	}
}

func TestSlippageCapped(t *testing.T) {
	sim := NewSimulator(Config{SlippageBps: d("500"), MaxSlippageBps: d("10")})
	if got := sim.ApplySlippage(d("1000"), order.Buy); !got.Equal(d("1001")) {
		t.Errorf("capped slippage: got %s, want 1001", got)
	}
}

func TestLimitOrder(t *testing.T) {
	sim := newSim()
	tests := []struct {
		name  string
		side  order.Side
		limit string
		price string
		fills bool
	}{
		{"buy above limit", order.Buy, "100", "101", false},
		{"buy at limit", order.Buy, "100", "100", true},
		{"buy below limit fills at limit", order.Buy, "100", "95", true},
		{"sell below limit", order.Sell, "100", "99", false},
		{"sell above limit fills at limit", order.Sell, "100", "105", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := restingOrder(order.Limit, tt.side, "1")
			o.LimitPrice = nd(tt.limit)
			res := sim.Evaluate(o, tick(tt.price))
			if res.Filled() != tt.fills {
				t.Fatalf("filled=%v, want %v", res.Filled(), tt.fills)
			}
			if tt.fills && !res.Price.Equal(d(tt.limit)) {
				t.Errorf("fill price %s, want limit %s", res.Price, tt.limit)
			}
		})
	}
}

func TestStopTriggersAsMarket(t *testing.T) {
	sim := newSim()
	o := restingOrder(order.Stop, order.Sell, "1")
	o.StopPrice = nd("49000")

	if res := sim.Evaluate(o, tick("49500")); res.Filled() || res.Triggered {
		t.Fatalf("stop should not trigger above threshold: %+v", res)
	}

	res := sim.Evaluate(o, tick("48000"))
	if !res.Triggered || !res.Filled() {
		t.Fatalf("stop should trigger and fill: %+v", res)
	}
	if !res.Price.Equal(d("47976")) {
		t.Errorf("stop fills as market with slippage: got %s, want 47976", res.Price)
	}
}

func TestStopLimitRestsAfterTrigger(t *testing.T) {
	sim := newSim()
	o := restingOrder(order.StopLimit, order.Buy, "1")
	o.StopPrice = nd("105")
	o.LimitPrice = nd("104")

	// crosses stop but not limit: trigger only
	res := sim.Evaluate(o, tick("106"))
	if !res.Triggered || res.Filled() {
		t.Fatalf("expected trigger without fill: %+v", res)
	}
	o.Triggered = true

	// stays resting as a limit even when the stop condition no longer holds
	res = sim.Evaluate(o, tick("103"))
	if !res.Filled() || !res.Price.Equal(d("104")) {
		t.Fatalf("triggered stop-limit should fill at limit: %+v", res)
	}
}

func TestStopLimitFillsOnTriggerTick(t *testing.T) {
	sim := newSim()
	o := restingOrder(order.StopLimit, order.Sell, "1")
	o.StopPrice = nd("100")
	o.LimitPrice = nd("99")

	res := sim.Evaluate(o, tick("99.5"))
	if !res.Triggered || !res.Filled() || !res.Price.Equal(d("99")) {
		t.Fatalf("trigger and limit on same tick: %+v", res)
	}
}

func TestPartialFillRatio(t *testing.T) {
	sim := NewSimulator(Config{MaxFillRatio: d("0.4")})
	o := restingOrder(order.Limit, order.Buy, "1")
	o.LimitPrice = nd("100")

	res := sim.Evaluate(o, tick("100"))
	if !res.Qty.Equal(d("0.4")) {
		t.Fatalf("first fill: got %s, want 0.4", res.Qty)
	}
	o.FilledQty = d("0.8")
	o.Status = order.StatusPartiallyFilled
	res = sim.Evaluate(o, tick("100"))
	if !res.Qty.Equal(d("0.2")) {
		t.Fatalf("last fill capped by remaining: got %s", res.Qty)
	}

	// market orders ignore the cap
	m := restingOrder(order.Market, order.Buy, "1")
	if res := sim.Evaluate(m, tick("100")); !res.Qty.Equal(d("1")) {
		t.Errorf("market order should fill fully: %s", res.Qty)
	}
}

func TestNonRestingOrdersIgnored(t *testing.T) {
	sim := newSim()
	o := restingOrder(order.Market, order.Buy, "1")
	o.Status = order.StatusCancelled
	if sim.Evaluate(o, tick("100")).Filled() {
		t.Error("cancelled order filled")
	}
	o.Status = order.StatusOpen
	o.Symbol = "ETH-USDT"
	if sim.Evaluate(o, tick("100")).Filled() {
		t.Error("order filled by another symbol's tick")
	}
}

func TestDeterministic(t *testing.T) {
	sim := newSim()
	o := restingOrder(order.Market, order.Buy, "0.3")
	a := sim.Evaluate(o, tick("12345.67"))
	b := sim.Evaluate(o, tick("12345.67"))
	if !a.Price.Equal(b.Price) || !a.Qty.Equal(b.Qty) {
		t.Error("same input must yield same fill")
	}
}

package account

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/order"
)

var (
	testAddr = common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0")
	t0       = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestLedger(t *testing.T, cfg LedgerConfig) *Ledger {
	t.Helper()
	acct := NewAccount(testAddr, d("10000"), t0)
	return NewLedger(cfg, acct, nil, seqIDs("id"))
}

func defaultCfg() LedgerConfig {
	return LedgerConfig{MaintenanceMarginRate: d("0.005")}
}

func buy(symbol, qty, price string) Fill {
	return Fill{Symbol: symbol, Side: order.Buy, Qty: d(qty), Price: d(price), Leverage: d("10"), At: t0}
}

func sell(symbol, qty, price string) Fill {
	return Fill{Symbol: symbol, Side: order.Sell, Qty: d(qty), Price: d(price), Leverage: d("10"), At: t0}
}

func mustApply(t *testing.T, l *Ledger, f Fill) []Execution {
	t.Helper()
	execs, err := l.ApplyFill(f)
	if err != nil {
		t.Fatalf("apply fill: %v", err)
	}
	return execs
}

func TestOpenAndMarkToMarket(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	mustApply(t, l, buy("BTC-USDT", "0.1", "50025"))

	pos, ok := l.Position("BTC-USDT")
	if !ok {
		t.Fatal("position not opened")
	}
	if pos.Side != Long || !pos.Qty.Equal(d("0.1")) || !pos.EntryPrice.Equal(d("50025")) {
		t.Fatalf("unexpected position: %+v", pos)
	}

	if _, err := l.MarkToMarket("BTC-USDT", d("51025"), t0.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if !pos.UnrealizedPnL.Equal(d("100")) {
		t.Errorf("unrealized: got %s, want 100", pos.UnrealizedPnL)
	}
}

func TestStopLossClosesAtThreshold(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	f := buy("BTC-USDT", "0.1", "50025")
	f.StopLoss = decimal.NewNullDecimal(d("49000"))
	mustApply(t, l, f)

	exec, err := l.MarkToMarket("BTC-USDT", d("48900"), t0.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if exec == nil || exec.Reason != CloseByStopLoss {
		t.Fatalf("expected stop-loss close, got %+v", exec)
	}
	if !exec.Price.Equal(d("49000")) {
		t.Errorf("close price: got %s, want 49000", exec.Price)
	}
	if !exec.RealizedPnL.Equal(d("-102.5")) {
		t.Errorf("realized: got %s, want -102.5", exec.RealizedPnL)
	}
	if _, ok := l.Position("BTC-USDT"); ok {
		t.Error("position should be removed")
	}
	if !l.Account().RealizedPnL.Equal(d("-102.5")) {
		t.Errorf("account realized: got %s", l.Account().RealizedPnL)
	}
	if closed := l.ClosedPositions(); len(closed) != 1 || closed[0].CloseReason != CloseByStopLoss {
		t.Errorf("closed history: %+v", closed)
	}
}

func TestTakeProfitShort(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	f := sell("ETH-USDT", "1", "100")
	f.TakeProfit = decimal.NewNullDecimal(d("90"))
	mustApply(t, l, f)

	exec, _ := l.MarkToMarket("ETH-USDT", d("85"), t0)
	if exec == nil || exec.Reason != CloseByTakeProfit || !exec.RealizedPnL.Equal(d("10")) {
		t.Fatalf("take profit: %+v", exec)
	}
	if exec.Side != order.Buy {
		t.Errorf("closing a short is a buy, got %s", exec.Side)
	}
}

func TestLiquidation(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	mustApply(t, l, buy("BTC-USDT", "1", "100"))

	pos, _ := l.Position("BTC-USDT")
	if !pos.LiquidationPrice.Equal(d("90.5")) {
		t.Fatalf("liquidation price: got %s, want 90.5", pos.LiquidationPrice)
	}
	if !pos.Margin.Equal(d("10")) {
		t.Errorf("margin: got %s, want 10", pos.Margin)
	}

	if exec, _ := l.MarkToMarket("BTC-USDT", d("91"), t0); exec != nil {
		t.Fatalf("closed above liquidation price: %+v", exec)
	}
	exec, _ := l.MarkToMarket("BTC-USDT", d("90"), t0)
	if exec == nil || exec.Reason != CloseByLiquidation || !exec.RealizedPnL.Equal(d("-9.5")) {
		t.Fatalf("liquidation close: %+v", exec)
	}
}

func TestStopLossCheckedBeforeLiquidation(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	f := buy("BTC-USDT", "1", "100")
	f.StopLoss = decimal.NewNullDecimal(d("95"))
	mustApply(t, l, f)

	exec, _ := l.MarkToMarket("BTC-USDT", d("80"), t0)
	if exec == nil || exec.Reason != CloseByStopLoss || !exec.Price.Equal(d("95")) {
		t.Fatalf("gap through both levels should stop out at the stop: %+v", exec)
	}
}

func TestAverageIn(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	mustApply(t, l, buy("BTC-USDT", "1", "100"))
	mustApply(t, l, buy("BTC-USDT", "1", "200"))

	pos, _ := l.Position("BTC-USDT")
	if !pos.Qty.Equal(d("2")) || !pos.EntryPrice.Equal(d("150")) {
		t.Fatalf("averaged position: qty=%s entry=%s", pos.Qty, pos.EntryPrice)
	}
	if l.OpenCount() != 1 {
		t.Errorf("same-side fill must not open a second position")
	}
}

func TestAverageInAtDifferentLeverage(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	mustApply(t, l, buy("BTC-USDT", "1", "100"))
	add := buy("BTC-USDT", "1", "100")
	add.Leverage = d("2.5")
	mustApply(t, l, add)

	pos, _ := l.Position("BTC-USDT")
	// 10 at 10x plus 40 at 2.5x on 200 notional.
	if !pos.Margin.Equal(d("50")) || !pos.Leverage.Equal(d("4")) {
		t.Fatalf("margin=%s leverage=%s, want 50 and 4", pos.Margin, pos.Leverage)
	}
	if !pos.LiquidationPrice.Equal(d("75.5")) {
		t.Errorf("liquidation = %s, want 75.5", pos.LiquidationPrice)
	}
	if !l.UsedMargin().Equal(d("50")) {
		t.Errorf("used margin = %s", l.UsedMargin())
	}
}

func TestLookupFindsOpenAndClosed(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	mustApply(t, l, buy("BTC-USDT", "1", "100"))
	first, _ := l.Position("BTC-USDT")
	if _, _, err := l.Close(first.ID, d("110"), CloseByManual, t0); err != nil {
		t.Fatal(err)
	}
	mustApply(t, l, buy("BTC-USDT", "1", "120"))
	second, _ := l.Position("BTC-USDT")

	if p, ok := l.Lookup(first.ID); !ok || p.IsOpen() || !p.ExitPrice.Equal(d("110")) {
		t.Fatalf("closed lookup: %+v, %v", p, ok)
	}
	if p, ok := l.Lookup(second.ID); !ok || !p.IsOpen() {
		t.Fatalf("open lookup: %+v, %v", p, ok)
	}
	if _, ok := l.Lookup("missing"); ok {
		t.Error("lookup of unknown id succeeded")
	}
}

func TestRecoveredHistoryInCloseOrder(t *testing.T) {
	late := &Position{ID: "a", Account: testAddr, Symbol: "BTC-USDT", Status: PositionClosed, ClosedAt: t0.Add(time.Hour)}
	early := &Position{ID: "b", Account: testAddr, Symbol: "ETH-USDT", Status: PositionClosed, ClosedAt: t0}
	open := &Position{ID: "c", Account: testAddr, Symbol: "BTC-USDT", Status: PositionOpen, Qty: d("1")}
	l := NewLedger(defaultCfg(), NewAccount(testAddr, d("10000"), t0), []*Position{late, open, early}, seqIDs("id"))

	closed := l.ClosedPositions()
	if len(closed) != 2 || closed[0].ID != "b" || closed[1].ID != "a" {
		t.Fatalf("closed history: %+v", closed)
	}
	if l.OpenCount() != 1 {
		t.Errorf("open count = %d", l.OpenCount())
	}
}

func TestPartialReduce(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	mustApply(t, l, buy("BTC-USDT", "2", "100"))
	execs := mustApply(t, l, sell("BTC-USDT", "0.5", "120"))

	pos, _ := l.Position("BTC-USDT")
	if !pos.Qty.Equal(d("1.5")) || !pos.EntryPrice.Equal(d("100")) {
		t.Fatalf("reduced position: %+v", pos)
	}
	if len(execs) != 1 || !execs[0].RealizedPnL.Equal(d("10")) {
		t.Fatalf("reduce execution: %+v", execs)
	}
	if !pos.RealizedPnL.Equal(d("10")) {
		t.Errorf("position realized: got %s", pos.RealizedPnL)
	}
}

func TestFlip(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	mustApply(t, l, buy("BTC-USDT", "1", "100"))
	l.TakeChanges()

	execs := mustApply(t, l, sell("BTC-USDT", "2", "110"))
	if len(execs) != 2 {
		t.Fatalf("flip should record close and open legs, got %d", len(execs))
	}
	if !execs[0].RealizedPnL.Equal(d("10")) {
		t.Errorf("realized on flip: got %s, want 10", execs[0].RealizedPnL)
	}

	pos, ok := l.Position("BTC-USDT")
	if !ok || pos.Side != Short || !pos.Qty.Equal(d("1")) || !pos.EntryPrice.Equal(d("110")) {
		t.Fatalf("flipped position: %+v", pos)
	}
	if l.OpenCount() != 1 {
		t.Errorf("flip left %d open positions", l.OpenCount())
	}

	changes := l.TakeChanges()
	if len(changes.Positions) != 2 || len(changes.PnL) != 1 || changes.Account == nil {
		t.Errorf("flip changes: positions=%d pnl=%d account=%v", len(changes.Positions), len(changes.PnL), changes.Account != nil)
	}
}

func TestDefaultStopLossAndTakeProfit(t *testing.T) {
	cfg := defaultCfg()
	cfg.DefaultStopLossPct = d("0.02")
	cfg.DefaultTakeProfitPct = d("0.04")
	l := newTestLedger(t, cfg)

	mustApply(t, l, sell("BTC-USDT", "1", "100"))
	pos, _ := l.Position("BTC-USDT")
	if !pos.StopLoss.Valid || !pos.StopLoss.Decimal.Equal(d("102")) {
		t.Errorf("short stop loss: %+v", pos.StopLoss)
	}
	if !pos.TakeProfit.Valid || !pos.TakeProfit.Decimal.Equal(d("96")) {
		t.Errorf("short take profit: %+v", pos.TakeProfit)
	}
}

func TestManualClose(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	mustApply(t, l, buy("BTC-USDT", "1", "100"))
	pos, _ := l.Position("BTC-USDT")

	if _, _, err := l.Close("missing", d("100"), CloseByManual, t0); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("missing position: got %v", err)
	}

	closed, exec, err := l.Close(pos.ID, d("105"), CloseByManual, t0)
	if err != nil {
		t.Fatal(err)
	}
	if closed.Status != PositionClosed || !exec.RealizedPnL.Equal(d("5")) {
		t.Errorf("manual close: %+v %+v", closed, exec)
	}
	if !l.Account().Balance().Equal(d("10005")) {
		t.Errorf("balance: got %s", l.Account().Balance())
	}
}

func TestRejectsBadFill(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	if _, err := l.ApplyFill(buy("BTC-USDT", "0", "100")); err == nil {
		t.Error("zero quantity accepted")
	}
	if _, err := l.ApplyFill(buy("BTC-USDT", "1", "-1")); err == nil {
		t.Error("negative price accepted")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	mustApply(t, l, buy("BTC-USDT", "1", "100"))
	l.TakeChanges()

	backup := l.Clone()
	mustApply(t, l, sell("BTC-USDT", "1", "150"))

	if _, ok := backup.Position("BTC-USDT"); !ok {
		t.Fatal("clone lost the position")
	}
	if !backup.Account().RealizedPnL.IsZero() {
		t.Errorf("clone saw realized pnl: %s", backup.Account().RealizedPnL)
	}
	if !backup.TakeChanges().Empty() {
		t.Error("clone should carry no pending changes")
	}
}

// Realized plus unrealized PnL must equal the cash flows of every execution
// plus the value of what is still held.
func TestPnLConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l := newTestLedger(t, defaultCfg())
	symbols := []string{"BTC-USDT", "ETH-USDT"}

	cash := decimal.Zero
	tolerance := d("0.000001")

	for i := 0; i < 500; i++ {
		sym := symbols[rng.Intn(len(symbols))]
		price := decimal.NewFromInt(int64(50 + rng.Intn(100)))
		qty := decimal.NewFromInt(int64(1 + rng.Intn(5))).Div(decimal.NewFromInt(4))
		side := order.Buy
		if rng.Intn(2) == 0 {
			side = order.Sell
		}
		f := Fill{Symbol: sym, Side: side, Qty: qty, Price: price, Leverage: d("1"), At: t0}
		if _, err := l.ApplyFill(f); err != nil {
			t.Fatal(err)
		}
		mark := decimal.NewFromInt(int64(50 + rng.Intn(100)))
		if _, err := l.MarkToMarket(sym, mark, t0); err != nil {
			t.Fatal(err)
		}

		for _, e := range l.TakeChanges().Executions {
			cash = cash.Sub(e.Side.Sign().Mul(e.Qty).Mul(e.Price))
		}

		held := decimal.Zero
		for _, p := range l.OpenPositions() {
			held = held.Add(p.Side.Sign().Mul(p.Qty).Mul(p.MarkPrice))
		}
		booked := l.Account().RealizedPnL.Add(l.UnrealizedPnL())
		if diff := booked.Sub(cash.Add(held)).Abs(); diff.GreaterThan(tolerance) {
			t.Fatalf("step %d: booked %s != cash flow %s (diff %s)", i, booked, cash.Add(held), diff)
		}
	}

	sum := decimal.Zero
	for _, p := range append(l.ClosedPositions(), l.OpenPositions()...) {
		sum = sum.Add(p.RealizedPnL)
	}
	if !sum.Equal(l.Account().RealizedPnL) {
		t.Errorf("per-position realized %s != account realized %s", sum, l.Account().RealizedPnL)
	}
}

func TestFingerprintReproducible(t *testing.T) {
	run := func(prefix string) common.Hash {
		l := NewLedger(defaultCfg(), NewAccount(testAddr, d("10000"), t0), nil, seqIDs(prefix))
		mustApply(t, l, buy("BTC-USDT", "1", "100"))
		mustApply(t, l, sell("BTC-USDT", "3", "120"))
		l.MarkToMarket("BTC-USDT", d("115"), t0)
		orders := []*order.Order{{ID: prefix, Seq: 1, Symbol: "BTC-USDT", Side: order.Buy, Type: order.Market, Qty: d("1"), Status: order.StatusFilled}}
		return Fingerprint(l, orders)
	}
	a, b := run("a"), run("b")
	if a != b {
		t.Errorf("fingerprint depends on ids: %s vs %s", a.Hex(), b.Hex())
	}

	l := newTestLedger(t, defaultCfg())
	if Fingerprint(l, nil) == a {
		t.Error("different state produced the same fingerprint")
	}
}

func TestRollDayResetsBreaker(t *testing.T) {
	l := newTestLedger(t, defaultCfg())
	l.TripBreaker(t0)
	if l.RollDay(t0.Add(time.Hour)) {
		t.Fatal("same UTC day should not roll")
	}
	if !l.RollDay(t0.Add(24 * time.Hour)) {
		t.Fatal("next day should roll")
	}
	if l.Account().BreakerTripped {
		t.Error("breaker should reset on rollover")
	}
	if l.RollDay(t0) {
		t.Error("day must never move backwards")
	}
}

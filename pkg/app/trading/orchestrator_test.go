package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/papertrade/params"
	"github.com/uhyunpark/papertrade/pkg/app/core/account"
	"github.com/uhyunpark/papertrade/pkg/app/core/market"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
	"github.com/uhyunpark/papertrade/pkg/app/paper"
	"github.com/uhyunpark/papertrade/pkg/storage"
	"github.com/uhyunpark/papertrade/pkg/util"
)

var trader = common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0")

func newEngine(t *testing.T) *paper.Engine {
	t.Helper()
	registry, err := market.NewRegistryFromSymbols([]string{"BTC-USDT"})
	if err != nil {
		t.Fatal(err)
	}
	clock := util.NewManualClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	eng := paper.NewEngine(paper.DefaultConfig(), storage.NewMemoryStore(), registry, clock, zap.NewNop().Sugar())
	t.Cleanup(func() { eng.Close() })
	return eng
}

type fakeExchange struct {
	DisabledExchange
	placed int
}

func (f *fakeExchange) PlaceOrder(_ context.Context, _ common.Address, req order.Request) (*order.Order, error) {
	f.placed++
	return &order.Order{ID: "live-1", Symbol: req.Symbol, Status: order.StatusOpen}, nil
}

func limitReq() order.Request {
	return order.Request{
		Symbol:     "BTC-USDT",
		Side:       order.Buy,
		Type:       order.Limit,
		Qty:        decimal.RequireFromString("0.1"),
		LimitPrice: decimal.NewNullDecimal(decimal.NewFromInt(45000)),
	}
}

func TestPaperModeRoutesToEngine(t *testing.T) {
	o, err := NewOrchestrator(params.ModePaper, newEngine(t), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	placed, err := o.PlaceOrder(ctx, trader, limitReq())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	snap, err := o.PortfolioSnapshot(ctx, trader)
	if err != nil {
		t.Fatal(err)
	}
	if snap.ActiveOrders != 1 {
		t.Fatalf("active orders = %d", snap.ActiveOrders)
	}
	if _, err := o.CancelOrder(ctx, trader, placed.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if _, err := o.ClosePosition(ctx, trader, "nope"); !errors.Is(err, account.ErrPositionNotFound) {
		t.Fatalf("err = %v", err)
	}
	if _, err := o.Paper(); err != nil {
		t.Fatalf("Paper: %v", err)
	}
}

func TestLiveModeWithoutClientIsDisabled(t *testing.T) {
	o, err := NewOrchestrator(params.ModeLive, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := o.PlaceOrder(ctx, trader, limitReq()); !errors.Is(err, ErrLiveTradingDisabled) {
		t.Fatalf("err = %v", err)
	}
	if _, err := o.PortfolioSnapshot(ctx, trader); !errors.Is(err, ErrLiveTradingDisabled) {
		t.Fatalf("err = %v", err)
	}
	if _, err := o.Paper(); !errors.Is(err, ErrPaperOnly) {
		t.Fatalf("err = %v", err)
	}
}

func TestLiveModeRoutesToExchange(t *testing.T) {
	live := &fakeExchange{}
	eng := newEngine(t)
	o, err := NewOrchestrator(params.ModeLive, eng, live, nil)
	if err != nil {
		t.Fatal(err)
	}
	placed, err := o.PlaceOrder(context.Background(), trader, limitReq())
	if err != nil || placed.ID != "live-1" || live.placed != 1 {
		t.Fatalf("placed=%+v err=%v calls=%d", placed, err, live.placed)
	}
	snap, err := eng.PortfolioSnapshot(context.Background(), trader)
	if err != nil {
		t.Fatal(err)
	}
	if snap.ActiveOrders != 0 {
		t.Fatal("live order reached the paper engine")
	}
}

func TestNewOrchestratorValidatesMode(t *testing.T) {
	if _, err := NewOrchestrator("backtest", nil, nil, nil); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("err = %v", err)
	}
	if _, err := NewOrchestrator(params.ModePaper, nil, nil, nil); err == nil {
		t.Fatal("paper mode without engine accepted")
	}
}

// Package trading routes account operations to the paper engine or to a live
// exchange depending on the configured mode.
package trading

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/papertrade/params"
	"github.com/uhyunpark/papertrade/pkg/app/core/account"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
	"github.com/uhyunpark/papertrade/pkg/app/paper"
)

var (
	ErrLiveTradingDisabled = errors.New("live trading is not enabled")
	ErrPaperOnly           = errors.New("operation only available in paper mode")
	ErrUnknownMode         = errors.New("unknown trading mode")
)

// Exchange is the account-level contract shared by the paper engine and live
// exchange clients.
type Exchange interface {
	PlaceOrder(ctx context.Context, id common.Address, req order.Request) (*order.Order, error)
	CancelOrder(ctx context.Context, id common.Address, orderID string) (*order.Order, error)
	ClosePosition(ctx context.Context, id common.Address, positionID string) (*account.Position, error)
	PortfolioSnapshot(ctx context.Context, id common.Address) (paper.Snapshot, error)
}

var _ Exchange = (*paper.Engine)(nil)

// DisabledExchange refuses every call. It stands in for a live client when
// none is configured.
type DisabledExchange struct{}

func (DisabledExchange) PlaceOrder(context.Context, common.Address, order.Request) (*order.Order, error) {
	return nil, ErrLiveTradingDisabled
}

func (DisabledExchange) CancelOrder(context.Context, common.Address, string) (*order.Order, error) {
	return nil, ErrLiveTradingDisabled
}

func (DisabledExchange) ClosePosition(context.Context, common.Address, string) (*account.Position, error) {
	return nil, ErrLiveTradingDisabled
}

func (DisabledExchange) PortfolioSnapshot(context.Context, common.Address) (paper.Snapshot, error) {
	return paper.Snapshot{}, ErrLiveTradingDisabled
}

type Orchestrator struct {
	mode  string
	paper *paper.Engine
	live  Exchange
	log   *zap.SugaredLogger
}

// NewOrchestrator validates mode. live may be nil, in which case live mode
// rejects every call.
func NewOrchestrator(mode string, engine *paper.Engine, live Exchange, log *zap.SugaredLogger) (*Orchestrator, error) {
	switch mode {
	case params.ModePaper:
		if engine == nil {
			return nil, fmt.Errorf("paper mode requires an engine")
		}
	case params.ModeLive:
		if live == nil {
			live = DisabledExchange{}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{mode: mode, paper: engine, live: live, log: log}, nil
}

func (o *Orchestrator) Mode() string { return o.mode }

func (o *Orchestrator) route() Exchange {
	if o.mode == params.ModeLive {
		return o.live
	}
	return o.paper
}

// Paper returns the paper engine for operations that have no live
// counterpart.
func (o *Orchestrator) Paper() (*paper.Engine, error) {
	if o.mode != params.ModePaper {
		return nil, ErrPaperOnly
	}
	return o.paper, nil
}

func (o *Orchestrator) PlaceOrder(ctx context.Context, id common.Address, req order.Request) (*order.Order, error) {
	placed, err := o.route().PlaceOrder(ctx, id, req)
	if err != nil {
		o.log.Debugw("place_order_failed", "mode", o.mode, "account", id.Hex(), "symbol", req.Symbol, "error", err)
		return nil, err
	}
	return placed, nil
}

func (o *Orchestrator) CancelOrder(ctx context.Context, id common.Address, orderID string) (*order.Order, error) {
	return o.route().CancelOrder(ctx, id, orderID)
}

func (o *Orchestrator) ClosePosition(ctx context.Context, id common.Address, positionID string) (*account.Position, error) {
	return o.route().ClosePosition(ctx, id, positionID)
}

func (o *Orchestrator) PortfolioSnapshot(ctx context.Context, id common.Address) (paper.Snapshot, error) {
	return o.route().PortfolioSnapshot(ctx, id)
}

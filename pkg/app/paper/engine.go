package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/papertrade/pkg/app/core/account"
	"github.com/uhyunpark/papertrade/pkg/app/core/fill"
	"github.com/uhyunpark/papertrade/pkg/app/core/market"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
	"github.com/uhyunpark/papertrade/pkg/util"
)

// Engine simulates order execution against a live price stream. Each account
// is owned by a single worker goroutine; the engine only routes ticks and
// commands to workers.
type Engine struct {
	cfg     Config
	store   Store
	markets *market.MarketRegistry
	prices  *market.PriceBook
	sim     *fill.Simulator
	clock   util.Clock
	log     *zap.SugaredLogger

	// NewID generates order, position and execution ids. Set before first use.
	NewID func() string
	// OnEvent receives persisted changes from worker goroutines. It must not
	// block and must not call back into the engine.
	OnEvent func(Event)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	workers map[common.Address]*worker
	closed  bool
}

func NewEngine(cfg Config, store Store, markets *market.MarketRegistry, clock util.Clock, log *zap.SugaredLogger) *Engine {
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:     cfg,
		store:   store,
		markets: markets,
		prices:  market.NewPriceBook(),
		sim:     fill.NewSimulator(cfg.Fill),
		clock:   clock,
		log:     log,
		NewID:   uuid.NewString,
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[common.Address]*worker),
	}
}

// workerFor returns the account's worker, starting it on first use.
// Caller must hold e.mu.
func (e *Engine) workerFor(id common.Address) *worker {
	if w, ok := e.workers[id]; ok {
		return w
	}
	w := newWorker(e, id, e.prices.Snapshot())
	e.workers[id] = w
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		w.loop(e.ctx)
	}()
	return w
}

// do runs fn on the account's worker and waits for it to finish.
func (e *Engine) do(ctx context.Context, id common.Address, fn func(w *worker)) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	w := e.workerFor(id)
	e.mu.Unlock()

	done := make(chan struct{})
	if err := w.enqueue(ctx, message{run: func(w *worker) {
		defer close(done)
		fn(w)
	}}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrEngineClosed
	}
}

// OnTick records the price and hands the tick to every account. Ticks older
// than the last one seen for the symbol are dropped.
func (e *Engine) OnTick(ctx context.Context, t market.Tick) error {
	if err := t.Validate(); err != nil {
		return validationErrorf("%v", err)
	}
	if !e.markets.Exists(t.Symbol) {
		return validationErrorf("unknown market %s", t.Symbol)
	}
	t.Timestamp = t.Timestamp.UTC()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if !e.prices.Update(t) {
		latest, _ := e.prices.Latest(t.Symbol)
		e.log.Warnw("tick_out_of_order", "symbol", t.Symbol, "timestamp", t.Timestamp,
			"latest", latest.Timestamp)
		return nil
	}

	// Enqueueing under mu keeps every worker's inbox in feed order.
	for _, w := range e.workers {
		tick := t
		if err := w.enqueue(ctx, message{tick: &tick}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) validateRequest(req order.Request) error {
	if err := e.markets.Tradable(req.Symbol); err != nil {
		return validationErrorf("%v", err)
	}
	if !req.Side.Valid() {
		return validationErrorf("invalid side %q", req.Side)
	}
	if !req.Type.Valid() {
		return validationErrorf("invalid order type %q", req.Type)
	}
	if !req.Qty.IsPositive() {
		return validationErrorf("quantity must be positive")
	}
	if req.Type.NeedsLimitPrice() && (!req.LimitPrice.Valid || !req.LimitPrice.Decimal.IsPositive()) {
		return validationErrorf("%s order requires a positive limit price", req.Type)
	}
	if req.Type.NeedsStopPrice() && (!req.StopPrice.Valid || !req.StopPrice.Decimal.IsPositive()) {
		return validationErrorf("%s order requires a positive stop price", req.Type)
	}
	if req.Leverage.Valid {
		lev := req.Leverage.Decimal
		if !lev.IsPositive() || lev.GreaterThan(e.cfg.Risk.MaxLeverage) {
			return validationErrorf("leverage must be in (0, %s]", e.cfg.Risk.MaxLeverage)
		}
	}
	if req.StopLoss.Valid && !req.StopLoss.Decimal.IsPositive() {
		return validationErrorf("stop loss must be positive")
	}
	if req.TakeProfit.Valid && !req.TakeProfit.Decimal.IsPositive() {
		return validationErrorf("take profit must be positive")
	}
	return nil
}

// PlaceOrder validates and risk-checks req, then accepts it as an open order.
// The order fills on a later tick.
func (e *Engine) PlaceOrder(ctx context.Context, id common.Address, req order.Request) (*order.Order, error) {
	if err := e.validateRequest(req); err != nil {
		return nil, err
	}
	var (
		o   *order.Order
		err error
	)
	if derr := e.do(ctx, id, func(w *worker) {
		o, err = w.placeOrder(ctx, req, e.clock.Now())
	}); derr != nil {
		return nil, derr
	}
	return o, err
}

func (e *Engine) CancelOrder(ctx context.Context, id common.Address, orderID string) (*order.Order, error) {
	var (
		o   *order.Order
		err error
	)
	if derr := e.do(ctx, id, func(w *worker) {
		o, err = w.cancelOrder(ctx, orderID, e.clock.Now())
	}); derr != nil {
		return nil, derr
	}
	return o, err
}

// ClosePosition closes the whole position at the latest price, with slippage.
func (e *Engine) ClosePosition(ctx context.Context, id common.Address, positionID string) (*account.Position, error) {
	var (
		p   *account.Position
		err error
	)
	if derr := e.do(ctx, id, func(w *worker) {
		p, err = w.closePosition(ctx, positionID, e.clock.Now())
	}); derr != nil {
		return nil, derr
	}
	return p, err
}

func (e *Engine) Deposit(ctx context.Context, id common.Address, amount decimal.Decimal) (Snapshot, error) {
	if !amount.IsPositive() {
		return Snapshot{}, validationErrorf("deposit amount must be positive")
	}
	var (
		s   Snapshot
		err error
	)
	if derr := e.do(ctx, id, func(w *worker) {
		s, err = w.deposit(ctx, amount, e.clock.Now())
	}); derr != nil {
		return Snapshot{}, derr
	}
	return s, err
}

func (e *Engine) PortfolioSnapshot(ctx context.Context, id common.Address) (Snapshot, error) {
	var (
		s   Snapshot
		err error
	)
	if derr := e.do(ctx, id, func(w *worker) {
		if err = w.ensureHydrated(ctx); err != nil {
			return
		}
		s = w.portfolio()
	}); derr != nil {
		return Snapshot{}, derr
	}
	return s, err
}

// Orders returns the account's order history, oldest first. With activeOnly
// set, terminal orders are left out.
func (e *Engine) Orders(ctx context.Context, id common.Address, activeOnly bool) ([]*order.Order, error) {
	var (
		out []*order.Order
		err error
	)
	if derr := e.do(ctx, id, func(w *worker) {
		if err = w.ensureHydrated(ctx); err != nil {
			return
		}
		for _, o := range w.orders {
			if activeOnly && !o.IsActive() {
				continue
			}
			out = append(out, o.Clone())
		}
	}); derr != nil {
		return nil, derr
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, err
}

func (e *Engine) Positions(ctx context.Context, id common.Address) ([]*account.Position, error) {
	var (
		out []*account.Position
		err error
	)
	if derr := e.do(ctx, id, func(w *worker) {
		if err = w.ensureHydrated(ctx); err != nil {
			return
		}
		out = w.ledger.OpenPositions()
	}); derr != nil {
		return nil, derr
	}
	return out, err
}

// ClosedPositions returns the account's closed positions in close order.
func (e *Engine) ClosedPositions(ctx context.Context, id common.Address) ([]*account.Position, error) {
	var (
		out []*account.Position
		err error
	)
	if derr := e.do(ctx, id, func(w *worker) {
		if err = w.ensureHydrated(ctx); err != nil {
			return
		}
		out = w.ledger.ClosedPositions()
	}); derr != nil {
		return nil, derr
	}
	return out, err
}

// Order returns one order, whatever its status.
func (e *Engine) Order(ctx context.Context, id common.Address, orderID string) (*order.Order, error) {
	var (
		out *order.Order
		err error
	)
	if derr := e.do(ctx, id, func(w *worker) {
		if err = w.ensureHydrated(ctx); err != nil {
			return
		}
		o, ok := w.orders[orderID]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
			return
		}
		out = o.Clone()
	}); derr != nil {
		return nil, derr
	}
	return out, err
}

// Position returns one open or closed position.
func (e *Engine) Position(ctx context.Context, id common.Address, positionID string) (*account.Position, error) {
	var (
		out *account.Position
		err error
	)
	if derr := e.do(ctx, id, func(w *worker) {
		if err = w.ensureHydrated(ctx); err != nil {
			return
		}
		p, ok := w.ledger.Lookup(positionID)
		if !ok {
			err = fmt.Errorf("%w: %s", ErrPositionNotFound, positionID)
			return
		}
		out = p
	}); derr != nil {
		return nil, derr
	}
	return out, err
}

// Fingerprint hashes the account's live state. Two engines fed the same
// commands and ticks produce the same fingerprint.
func (e *Engine) Fingerprint(ctx context.Context, id common.Address) (common.Hash, error) {
	var (
		h   common.Hash
		err error
	)
	if derr := e.do(ctx, id, func(w *worker) {
		if err = w.ensureHydrated(ctx); err != nil {
			return
		}
		orders := make([]*order.Order, 0, len(w.orders))
		for _, o := range w.orders {
			orders = append(orders, o)
		}
		h = account.Fingerprint(w.ledger, orders)
	}); derr != nil {
		return common.Hash{}, derr
	}
	return h, err
}

func (e *Engine) LatestPrice(symbol string) (market.Tick, error) {
	t, ok := e.prices.Latest(symbol)
	if !ok {
		return market.Tick{}, fmt.Errorf("%w: no tick observed for %s", ErrStalePriceData, symbol)
	}
	return t, nil
}

func (e *Engine) Markets() []market.Market {
	return e.markets.ListMarkets()
}

// Close stops all workers and waits for them to exit. Work already queued
// but not yet started is discarded.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	e.log.Infow("engine_stopped")
	return nil
}

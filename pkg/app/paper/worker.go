package paper

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/papertrade/pkg/app/core/account"
	"github.com/uhyunpark/papertrade/pkg/app/core/market"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
	"github.com/uhyunpark/papertrade/pkg/storage"
)

// message is either a tick or a command; both travel through the same
// inbox so commands serialize with price updates.
type message struct {
	tick *market.Tick
	run  func(w *worker)
}

// worker exclusively owns one account's orders, positions and balance.
// All fields below inbox are touched only by the worker goroutine.
type worker struct {
	id    common.Address
	eng   *Engine
	log   *zap.SugaredLogger
	inbox chan message
	done  chan struct{}

	hydrated bool
	ledger   *account.Ledger
	orders   map[string]*order.Order
	seq      uint64
	prices   map[string]market.Tick
	snapshot *Snapshot

	dirtyOrders map[string]*order.Order
	events      []Event
}

func newWorker(e *Engine, id common.Address, prices map[string]market.Tick) *worker {
	size := e.cfg.InboxSize
	if size < 1 {
		size = 1
	}
	return &worker{
		id:          id,
		eng:         e,
		log:         e.log.With("account", id.Hex()),
		inbox:       make(chan message, size),
		done:        make(chan struct{}),
		orders:      make(map[string]*order.Order),
		prices:      prices,
		dirtyOrders: make(map[string]*order.Order),
	}
}

func (w *worker) loop(ctx context.Context) {
	defer close(w.done)

	if err := w.hydrate(ctx); err != nil {
		w.log.Errorw("hydrate_failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.inbox:
			if msg.tick != nil {
				w.onTick(ctx, *msg.tick)
			} else {
				msg.run(w)
			}
		}
	}
}

// enqueue blocks until the worker accepts msg.
func (w *worker) enqueue(ctx context.Context, msg message) error {
	select {
	case w.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrEngineClosed
	}
}

// hydrate loads the account with its full order and position history,
// creating the account on first use. Terminal orders are kept so listings and
// the sequence counter survive a restart.
func (w *worker) hydrate(ctx context.Context) error {
	if w.hydrated {
		return nil
	}
	e := w.eng

	var acct *account.Account
	err := e.withRetry(ctx, "load_account", func(ctx context.Context) error {
		var err error
		acct, err = e.store.LoadAccount(ctx, w.id)
		return err
	})
	if err != nil {
		return err
	}
	if acct == nil {
		acct = account.NewAccount(w.id, e.cfg.InitialBalance, e.clock.Now())
		if err := e.withRetry(ctx, "save_account", func(ctx context.Context) error {
			return e.store.SaveAccount(ctx, acct)
		}); err != nil {
			return err
		}
		w.log.Infow("account_created", "initial_balance", acct.InitialBalance.String())
	}

	var orders []*order.Order
	if err := e.withRetry(ctx, "load_orders", func(ctx context.Context) error {
		var err error
		orders, err = e.store.LoadOrders(ctx, w.id)
		return err
	}); err != nil {
		return err
	}

	var positions []*account.Position
	if err := e.withRetry(ctx, "load_positions", func(ctx context.Context) error {
		var err error
		positions, err = e.store.LoadPositions(ctx, w.id)
		return err
	}); err != nil {
		return err
	}

	w.ledger = account.NewLedger(e.cfg.Ledger, acct, positions, e.NewID)
	active := 0
	for _, o := range orders {
		w.orders[o.ID] = o
		if o.Seq > w.seq {
			w.seq = o.Seq
		}
		if o.IsActive() {
			active++
		}
	}
	w.hydrated = true
	if len(orders) > 0 || len(positions) > 0 {
		w.log.Infow("account_recovered", "active_orders", active, "orders", len(orders),
			"open_positions", w.ledger.OpenCount(), "positions", len(positions), "next_seq", w.seq+1)
		w.checkJournal(ctx)
	}
	return nil
}

// checkJournal compares the account's realized PnL with the sum of its
// journal entries. A mismatch is logged; the account record wins.
func (w *worker) checkJournal(ctx context.Context) {
	var journal decimal.Decimal
	err := w.eng.withRetry(ctx, "load_realized_pnl", func(ctx context.Context) error {
		var err error
		journal, err = w.eng.store.RealizedPnL(ctx, w.id)
		return err
	})
	if err != nil {
		w.log.Warnw("pnl_journal_unreadable", "error", err)
		return
	}
	if realized := w.ledger.Account().RealizedPnL; !journal.Equal(realized) {
		w.log.Warnw("pnl_journal_mismatch", "account_realized", realized.String(), "journal_realized", journal.String())
	}
}

func (w *worker) ensureHydrated(ctx context.Context) error {
	if err := w.hydrate(ctx); err != nil {
		return fmt.Errorf("load account %s: %w", w.id.Hex(), err)
	}
	return nil
}

type checkpoint struct {
	ledger *account.Ledger
	orders map[string]*order.Order
	seq    uint64
}

// save captures working state. Terminal orders never change again, so only
// live orders are deep-copied.
func (w *worker) save() checkpoint {
	orders := make(map[string]*order.Order, len(w.orders))
	for id, o := range w.orders {
		if o.Status.IsTerminal() {
			orders[id] = o
		} else {
			orders[id] = o.Clone()
		}
	}
	return checkpoint{ledger: w.ledger.Clone(), orders: orders, seq: w.seq}
}

func (w *worker) restore(c checkpoint) {
	w.ledger = c.ledger
	w.orders = c.orders
	w.seq = c.seq
	w.dirtyOrders = make(map[string]*order.Order)
	w.events = nil
	w.snapshot = nil
}

// mutate applies fn to working state and writes the result through to the
// store. If fn fails or the writes cannot be made durable, working state is
// rolled back to what it was before fn ran.
func (w *worker) mutate(ctx context.Context, fn func() error) error {
	cp := w.save()
	if err := fn(); err != nil {
		w.restore(cp)
		return err
	}
	if err := w.flush(ctx); err != nil {
		w.restore(cp)
		w.log.Errorw("persist_failed_rolled_back", "error", err)
		return err
	}
	w.snapshot = nil
	w.emit()
	return nil
}

func (w *worker) touch(o *order.Order) {
	w.dirtyOrders[o.ID] = o
}

func (w *worker) event(ev Event) {
	ev.Account = w.id
	w.events = append(w.events, ev)
}

func (w *worker) flush(ctx context.Context) error {
	e := w.eng
	changes := w.ledger.TakeChanges()

	orders := make([]*order.Order, 0, len(w.dirtyOrders))
	for _, o := range w.dirtyOrders {
		orders = append(orders, o.Clone())
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })
	w.dirtyOrders = make(map[string]*order.Order)

	batch := storage.Batch{
		Owner:     w.id,
		Account:   changes.Account,
		Orders:    orders,
		Positions: changes.Positions,
		PnL:       changes.PnL,
	}
	if !batch.Empty() {
		if err := e.withRetry(ctx, "commit", func(ctx context.Context) error {
			return e.store.Commit(ctx, batch)
		}); err != nil {
			return err
		}
	}

	for i := range changes.Executions {
		ex := changes.Executions[i]
		w.event(Event{Type: EventExecution, Execution: &ex, At: ex.At})
	}
	for _, p := range changes.Positions {
		typ := EventPositionUpdated
		if !p.IsOpen() {
			typ = EventPositionClosed
			w.log.Infow("position_closed", "symbol", p.Symbol, "reason", p.CloseReason,
				"exit_price", p.ExitPrice.String(), "realized_pnl", p.RealizedPnL.String())
		}
		w.event(Event{Type: typ, Position: p, At: p.UpdatedAt})
	}
	return nil
}

func (w *worker) emit() {
	events := w.events
	w.events = nil
	if w.eng.OnEvent == nil {
		return
	}
	for _, ev := range events {
		w.eng.OnEvent(ev)
	}
}

// restingOn returns live orders on symbol, oldest first.
func (w *worker) restingOn(symbol string) []*order.Order {
	var out []*order.Order
	for _, o := range w.orders {
		if o.Symbol == symbol && o.IsResting() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

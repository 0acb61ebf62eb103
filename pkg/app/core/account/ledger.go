package account

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/order"
)

var ErrPositionNotFound = errors.New("position not found")

var one = decimal.NewFromInt(1)

// LedgerConfig holds the ledger's pricing parameters.
type LedgerConfig struct {
	MaintenanceMarginRate decimal.Decimal
	DefaultStopLossPct    decimal.Decimal // 0 disables
	DefaultTakeProfitPct  decimal.Decimal // 0 disables
}

// Fill is a quantity executed at a price, from an order or synthesized by a
// stop-loss, take-profit, liquidation or manual close.
type Fill struct {
	OrderID    string
	Symbol     string
	Side       order.Side
	Qty        decimal.Decimal
	Price      decimal.Decimal
	Leverage   decimal.Decimal
	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
	Strategy   string
	At         time.Time
}

// Execution is the record of a fill applied to the ledger.
type Execution struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId,omitempty"`
	PositionID  string          `json:"positionId"`
	Symbol      string          `json:"symbol"`
	Side        order.Side      `json:"side"`
	Qty         decimal.Decimal `json:"qty"`
	Price       decimal.Decimal `json:"price"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
	Reason      CloseReason     `json:"reason,omitempty"`
	At          time.Time       `json:"at"`
}

// PnLEntry is one realized PnL delta, keyed by ID for idempotent journaling.
type PnLEntry struct {
	ID         string          `json:"id"`
	PositionID string          `json:"positionId"`
	Symbol     string          `json:"symbol"`
	Delta      decimal.Decimal `json:"delta"`
	At         time.Time       `json:"at"`
}

// Changes is everything mutated since the last TakeChanges call.
type Changes struct {
	Account    *Account
	Positions  []*Position
	PnL        []PnLEntry
	Executions []Execution
}

func (c Changes) Empty() bool {
	return c.Account == nil && len(c.Positions) == 0 && len(c.PnL) == 0
}

// Ledger owns one account's positions and PnL bookkeeping.
// It is not safe for concurrent use; a single worker owns it.
type Ledger struct {
	cfg   LedgerConfig
	newID func() string

	acct   *Account
	open   map[string]*Position // symbol -> open position
	closed []*Position

	dirtyAccount bool
	dirty        map[string]*Position
	pnl          []PnLEntry
	execs        []Execution
}

// NewLedger builds a ledger around acct and any positions recovered from storage.
func NewLedger(cfg LedgerConfig, acct *Account, positions []*Position, newID func() string) *Ledger {
	l := &Ledger{
		cfg:   cfg,
		newID: newID,
		acct:  acct,
		open:  make(map[string]*Position),
		dirty: make(map[string]*Position),
	}
	for _, p := range positions {
		if p.IsOpen() {
			l.open[p.Symbol] = p
		} else {
			l.closed = append(l.closed, p)
		}
	}
	sort.SliceStable(l.closed, func(i, j int) bool { return l.closed[i].ClosedAt.Before(l.closed[j].ClosedAt) })
	return l
}

// Account returns the live account record.
func (l *Ledger) Account() *Account { return l.acct }

// Position returns the open position on symbol, if any.
func (l *Ledger) Position(symbol string) (*Position, bool) {
	p, ok := l.open[symbol]
	return p, ok
}

// PositionByID finds an open position by id.
func (l *Ledger) PositionByID(id string) (*Position, bool) {
	for _, p := range l.open {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Lookup returns a copy of the open or closed position with the given id.
func (l *Ledger) Lookup(id string) (*Position, bool) {
	if p, ok := l.PositionByID(id); ok {
		return p.Clone(), true
	}
	for _, p := range l.closed {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return nil, false
}

// OpenPositions returns copies of open positions sorted by symbol
func (l *Ledger) OpenPositions() []*Position {
	out := make([]*Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ClosedPositions returns copies of closed positions in close order.
func (l *Ledger) ClosedPositions() []*Position {
	out := make([]*Position, len(l.closed))
	for i, p := range l.closed {
		out[i] = p.Clone()
	}
	return out
}

func (l *Ledger) OpenCount() int { return len(l.open) }

// UsedMargin sums the margin of open positions.
func (l *Ledger) UsedMargin() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.open {
		total = total.Add(p.Margin)
	}
	return total
}

// UnrealizedPnL sums unrealized PnL over open positions.
func (l *Ledger) UnrealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.open {
		total = total.Add(p.UnrealizedPnL)
	}
	return total
}

// Equity returns balance plus unrealized PnL.
func (l *Ledger) Equity() decimal.Decimal {
	return l.acct.Balance().Add(l.UnrealizedPnL())
}

// Deposit records an external balance change. It does not touch realized
// PnL and shifts the day-start reference so it is not read as a gain.
func (l *Ledger) Deposit(amount decimal.Decimal, at time.Time) {
	l.acct.Deposits = l.acct.Deposits.Add(amount)
	l.acct.DayStartEquity = l.acct.DayStartEquity.Add(amount)
	l.acct.UpdatedAt = at
	l.dirtyAccount = true
}

// RollDay forwards to the account and records the change.
func (l *Ledger) RollDay(at time.Time) bool {
	if l.acct.RollDay(at, l.Equity()) {
		l.dirtyAccount = true
		return true
	}
	return false
}

// TripBreaker latches the account breaker and records the change.
func (l *Ledger) TripBreaker(at time.Time) bool {
	if l.acct.TripBreaker(at) {
		l.dirtyAccount = true
		return true
	}
	return false
}

// ApplyFill opens, grows, reduces, closes or flips the position on f.Symbol.
// A flip closes the old position and opens the remainder in the new
// direction within this one call.
func (l *Ledger) ApplyFill(f Fill) ([]Execution, error) {
	if !f.Qty.IsPositive() {
		return nil, fmt.Errorf("fill quantity must be positive: %s", f.Qty)
	}
	if !f.Price.IsPositive() {
		return nil, fmt.Errorf("fill price must be positive: %s", f.Price)
	}

	side := SideFor(f.Side)
	pos, ok := l.open[f.Symbol]
	if !ok {
		p := l.openPosition(f, f.Qty)
		return []Execution{l.record(f, p.ID, f.Qty, decimal.Zero, "")}, nil
	}

	if pos.Side == side {
		// Adding at a different leverage keeps both margins; the position's
		// leverage becomes notional over the summed margin.
		lev := fillLeverage(f)
		mixed := !lev.Equal(pos.Leverage)
		margin := pos.Margin.Add(f.Qty.Mul(f.Price).Div(lev))

		newQty := pos.Qty.Add(f.Qty)
		pos.EntryPrice = pos.EntryPrice.Mul(pos.Qty).Add(f.Price.Mul(f.Qty)).Div(newQty)
		pos.Qty = newQty
		if mixed {
			pos.Leverage = newQty.Mul(pos.EntryPrice).Div(margin)
		}
		if f.StopLoss.Valid {
			pos.StopLoss = f.StopLoss
		}
		if f.TakeProfit.Valid {
			pos.TakeProfit = f.TakeProfit
		}
		l.refresh(pos, f.At)
		if mixed {
			pos.Margin = margin
		}
		return []Execution{l.record(f, pos.ID, f.Qty, decimal.Zero, "")}, nil
	}

	closing := decimal.Min(f.Qty, pos.Qty)
	realized := l.realize(pos, f.Price, closing, f.At)
	execs := []Execution{l.record(f, pos.ID, closing, realized, CloseByFill)}

	pos.Qty = pos.Qty.Sub(closing)
	if pos.Qty.IsZero() {
		l.retire(pos, f.Price, CloseByFill, f.At)
	} else {
		l.refresh(pos, f.At)
	}

	if remainder := f.Qty.Sub(closing); remainder.IsPositive() {
		p := l.openPosition(f, remainder)
		execs = append(execs, l.record(f, p.ID, remainder, decimal.Zero, ""))
	}
	return execs, nil
}

// MarkToMarket revalues the open position on symbol and closes it at the
// threshold price when a stop-loss, take-profit or liquidation level is
// crossed. It returns the closing execution, if any.
func (l *Ledger) MarkToMarket(symbol string, price decimal.Decimal, at time.Time) (*Execution, error) {
	pos, ok := l.open[symbol]
	if !ok {
		return nil, nil
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("mark price must be positive: %s", price)
	}
	pos.MarkPrice = price
	pos.UnrealizedPnL = pos.PnLAt(price, pos.Qty)
	pos.UpdatedAt = at
	l.dirty[pos.ID] = pos

	exit, reason, hit := l.exitTrigger(pos, price)
	if !hit {
		return nil, nil
	}
	exec := l.closeAt(pos, exit, reason, at)
	return &exec, nil
}

// Close removes the position with the given id at price.
func (l *Ledger) Close(positionID string, price decimal.Decimal, reason CloseReason, at time.Time) (*Position, Execution, error) {
	pos, ok := l.PositionByID(positionID)
	if !ok {
		return nil, Execution{}, fmt.Errorf("%w: %s", ErrPositionNotFound, positionID)
	}
	if !price.IsPositive() {
		return nil, Execution{}, fmt.Errorf("close price must be positive: %s", price)
	}
	exec := l.closeAt(pos, price, reason, at)
	return pos.Clone(), exec, nil
}

// TakeChanges returns and clears the mutations since the previous call.
func (l *Ledger) TakeChanges() Changes {
	var c Changes
	if l.dirtyAccount {
		c.Account = l.acct.clone()
	}
	for _, p := range l.dirty {
		c.Positions = append(c.Positions, p.Clone())
	}
	sort.Slice(c.Positions, func(i, j int) bool { return c.Positions[i].ID < c.Positions[j].ID })
	c.PnL = l.pnl
	c.Executions = l.execs

	l.dirtyAccount = false
	l.dirty = make(map[string]*Position)
	l.pnl = nil
	l.execs = nil
	return c
}

// Clone returns an independent copy with no pending changes.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		cfg:    l.cfg,
		newID:  l.newID,
		acct:   l.acct.clone(),
		open:   make(map[string]*Position, len(l.open)),
		closed: append([]*Position(nil), l.closed...),
		dirty:  make(map[string]*Position),
	}
	for sym, p := range l.open {
		c.open[sym] = p.Clone()
	}
	return c
}

func fillLeverage(f Fill) decimal.Decimal {
	if f.Leverage.IsPositive() {
		return f.Leverage
	}
	return one
}

func (l *Ledger) openPosition(f Fill, qty decimal.Decimal) *Position {
	lev := fillLeverage(f)
	p := &Position{
		ID:           l.newID(),
		Account:      l.acct.ID,
		Symbol:       f.Symbol,
		Side:         SideFor(f.Side),
		Qty:          qty,
		EntryPrice:   f.Price,
		MarkPrice:    f.Price,
		RealizedPnL:  decimal.Zero,
		Leverage:     lev,
		StopLoss:     f.StopLoss,
		TakeProfit:   f.TakeProfit,
		Status:       PositionOpen,
		StrategyName: f.Strategy,
		OpenedAt:     f.At,
	}
	if !p.StopLoss.Valid && l.cfg.DefaultStopLossPct.IsPositive() {
		p.StopLoss = decimal.NewNullDecimal(offsetPrice(f.Price, l.cfg.DefaultStopLossPct, p.Side == Short))
	}
	if !p.TakeProfit.Valid && l.cfg.DefaultTakeProfitPct.IsPositive() {
		p.TakeProfit = decimal.NewNullDecimal(offsetPrice(f.Price, l.cfg.DefaultTakeProfitPct, p.Side == Long))
	}
	l.open[f.Symbol] = p
	l.refresh(p, f.At)
	return p
}

// refresh recomputes the derived fields after a quantity or entry change.
func (l *Ledger) refresh(p *Position, at time.Time) {
	p.Margin = p.Qty.Mul(p.EntryPrice).Div(p.Leverage)
	p.LiquidationPrice = liquidationPrice(p.Side, p.EntryPrice, p.Leverage, l.cfg.MaintenanceMarginRate)
	p.UnrealizedPnL = p.PnLAt(p.MarkPrice, p.Qty)
	p.UpdatedAt = at
	l.dirty[p.ID] = p
}

func (l *Ledger) realize(p *Position, price, qty decimal.Decimal, at time.Time) decimal.Decimal {
	delta := p.PnLAt(price, qty)
	p.RealizedPnL = p.RealizedPnL.Add(delta)
	l.acct.RealizedPnL = l.acct.RealizedPnL.Add(delta)
	l.acct.UpdatedAt = at
	l.dirtyAccount = true
	l.pnl = append(l.pnl, PnLEntry{
		ID:         l.newID(),
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Delta:      delta,
		At:         at,
	})
	return delta
}

func (l *Ledger) closeAt(p *Position, price decimal.Decimal, reason CloseReason, at time.Time) Execution {
	qty := p.Qty
	realized := l.realize(p, price, qty, at)
	exec := l.record(Fill{Symbol: p.Symbol, Side: p.Side.ClosingSide(), Price: price, At: at}, p.ID, qty, realized, reason)
	l.retire(p, price, reason, at)
	return exec
}

// retire moves a fully reduced position into the closed history.
func (l *Ledger) retire(p *Position, exit decimal.Decimal, reason CloseReason, at time.Time) {
	p.Qty = decimal.Zero
	p.MarkPrice = exit
	p.ExitPrice = exit
	p.UnrealizedPnL = decimal.Zero
	p.Margin = decimal.Zero
	p.Status = PositionClosed
	p.CloseReason = reason
	p.ClosedAt = at
	p.UpdatedAt = at
	delete(l.open, p.Symbol)
	l.closed = append(l.closed, p)
	l.dirty[p.ID] = p
}

func (l *Ledger) record(f Fill, positionID string, qty, realized decimal.Decimal, reason CloseReason) Execution {
	e := Execution{
		ID:          l.newID(),
		OrderID:     f.OrderID,
		PositionID:  positionID,
		Symbol:      f.Symbol,
		Side:        f.Side,
		Qty:         qty,
		Price:       f.Price,
		RealizedPnL: realized,
		Reason:      reason,
		At:          f.At,
	}
	l.execs = append(l.execs, e)
	return e
}

// exitTrigger checks stop-loss, then take-profit, then liquidation.
func (l *Ledger) exitTrigger(p *Position, price decimal.Decimal) (decimal.Decimal, CloseReason, bool) {
	long := p.Side == Long
	if p.StopLoss.Valid {
		sl := p.StopLoss.Decimal
		if (long && price.LessThanOrEqual(sl)) || (!long && price.GreaterThanOrEqual(sl)) {
			return sl, CloseByStopLoss, true
		}
	}
	if p.TakeProfit.Valid {
		tp := p.TakeProfit.Decimal
		if (long && price.GreaterThanOrEqual(tp)) || (!long && price.LessThanOrEqual(tp)) {
			return tp, CloseByTakeProfit, true
		}
	}
	if liq := p.LiquidationPrice; liq.IsPositive() {
		if (long && price.LessThanOrEqual(liq)) || (!long && price.GreaterThanOrEqual(liq)) {
			return liq, CloseByLiquidation, true
		}
	}
	return decimal.Zero, "", false
}

// liquidationPrice: long = entry*(1 - 1/lev + mmr), short = entry*(1 + 1/lev - mmr)
func liquidationPrice(side PositionSide, entry, leverage, mmr decimal.Decimal) decimal.Decimal {
	if !leverage.IsPositive() {
		return decimal.Zero
	}
	inv := one.Div(leverage)
	if side == Long {
		return entry.Mul(one.Sub(inv).Add(mmr))
	}
	return entry.Mul(one.Add(inv).Sub(mmr))
}

func offsetPrice(price, pct decimal.Decimal, up bool) decimal.Decimal {
	if up {
		return price.Mul(one.Add(pct))
	}
	return price.Mul(one.Sub(pct))
}

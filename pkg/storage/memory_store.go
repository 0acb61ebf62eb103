package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/account"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
)

// MemoryStore keeps records in maps. Records are copied on the way in and
// out so callers never share memory with the store.
type MemoryStore struct {
	mu        sync.Mutex
	accounts  map[common.Address]account.Account
	orders    map[common.Address]map[string]order.Order
	positions map[common.Address]map[string]account.Position
	pnl       map[common.Address]map[string]decimal.Decimal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[common.Address]account.Account),
		orders:    make(map[common.Address]map[string]order.Order),
		positions: make(map[common.Address]map[string]account.Position),
		pnl:       make(map[common.Address]map[string]decimal.Decimal),
	}
}

func (s *MemoryStore) LoadAccount(ctx context.Context, id common.Address) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return &acc, nil
}

func (s *MemoryStore) SaveAccount(ctx context.Context, acc *account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acc.ID] = *acc
	return nil
}

func (s *MemoryStore) UpsertOrder(ctx context.Context, o *order.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putOrder(o)
	return nil
}

func (s *MemoryStore) UpsertPosition(ctx context.Context, p *account.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putPosition(p)
	return nil
}

func (s *MemoryStore) AppendRealizedPnL(ctx context.Context, id common.Address, e account.PnLEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putPnL(id, e)
	return nil
}

// Commit applies every record in b under one lock hold.
func (s *MemoryStore) Commit(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range b.Orders {
		s.putOrder(o)
	}
	for _, p := range b.Positions {
		s.putPosition(p)
	}
	for _, e := range b.PnL {
		s.putPnL(b.Owner, e)
	}
	if b.Account != nil {
		s.accounts[b.Account.ID] = *b.Account
	}
	return nil
}

func (s *MemoryStore) putOrder(o *order.Order) {
	m, ok := s.orders[o.Account]
	if !ok {
		m = make(map[string]order.Order)
		s.orders[o.Account] = m
	}
	m[o.ID] = *o
}

func (s *MemoryStore) putPosition(p *account.Position) {
	m, ok := s.positions[p.Account]
	if !ok {
		m = make(map[string]account.Position)
		s.positions[p.Account] = m
	}
	m[p.ID] = *p
}

func (s *MemoryStore) putPnL(id common.Address, e account.PnLEntry) {
	m, ok := s.pnl[id]
	if !ok {
		m = make(map[string]decimal.Decimal)
		s.pnl[id] = m
	}
	m[e.ID] = e.Delta
}

func (s *MemoryStore) LoadOrders(ctx context.Context, id common.Address) ([]*order.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*order.Order, 0, len(s.orders[id]))
	for _, o := range s.orders[id] {
		c := o
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) LoadPositions(ctx context.Context, id common.Address) ([]*account.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*account.Position, 0, len(s.positions[id]))
	for _, p := range s.positions[id] {
		c := p
		out = append(out, &c)
	}
	sortPositions(out)
	return out, nil
}

// RealizedPnL sums the journal for an account.
func (s *MemoryStore) RealizedPnL(ctx context.Context, id common.Address) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, delta := range s.pnl[id] {
		total = total.Add(delta)
	}
	return total, nil
}

// Order returns a stored order by id.
func (s *MemoryStore) Order(id common.Address, orderID string) (order.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id][orderID]
	return o, ok
}

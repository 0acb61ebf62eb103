package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/account"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
)

// PebbleStore persists accounts, orders, positions and the realized PnL
// journal. Every write is an upsert by id, so retried writes are harmless
// and concurrent writers for different accounts never touch the same key.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens a Pebble database at the given path
func NewPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:             32 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		MaxOpenFiles:             500,
		BytesPerSync:             512 << 10,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the database
func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) set(ctx context.Context, key []byte, v any, what string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", what, err)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save %s: %w", what, err)
	}
	return nil
}

// LoadAccount returns nil, nil when the account was never saved
func (s *PebbleStore) LoadAccount(ctx context.Context, id common.Address) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, closer, err := s.db.Get(accountKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	defer closer.Close()

	var acc account.Account
	if err := decodeJSON(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &acc, nil
}

func (s *PebbleStore) SaveAccount(ctx context.Context, acc *account.Account) error {
	return s.set(ctx, accountKey(acc.ID), acc, "account")
}

func (s *PebbleStore) UpsertOrder(ctx context.Context, o *order.Order) error {
	return s.set(ctx, orderKey(o.Account, o.ID), o, "order")
}

func (s *PebbleStore) UpsertPosition(ctx context.Context, p *account.Position) error {
	return s.set(ctx, positionKey(p.Account, p.ID), p, "position")
}

// AppendRealizedPnL journals a delta under its entry id. Re-appending the
// same entry overwrites it with identical content.
func (s *PebbleStore) AppendRealizedPnL(ctx context.Context, id common.Address, e account.PnLEntry) error {
	rec := pnlRecord{EntryID: e.ID, Delta: e.Delta, At: e.At}
	return s.set(ctx, pnlKey(id, e.ID), rec, "pnl entry")
}

// Commit writes every record in b through one Pebble batch, so a failed
// commit leaves no partial state behind.
func (s *PebbleStore) Commit(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.Empty() {
		return nil
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	put := func(key []byte, v any, what string) error {
		data, err := encodeJSON(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", what, err)
		}
		return batch.Set(key, data, nil)
	}
	for _, o := range b.Orders {
		if err := put(orderKey(o.Account, o.ID), o, "order"); err != nil {
			return err
		}
	}
	for _, p := range b.Positions {
		if err := put(positionKey(p.Account, p.ID), p, "position"); err != nil {
			return err
		}
	}
	for _, e := range b.PnL {
		rec := pnlRecord{EntryID: e.ID, Delta: e.Delta, At: e.At}
		if err := put(pnlKey(b.Owner, e.ID), rec, "pnl entry"); err != nil {
			return err
		}
	}
	if b.Account != nil {
		if err := put(accountKey(b.Account.ID), b.Account, "account"); err != nil {
			return err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// LoadOrders loads every stored order for an account, oldest first
func (s *PebbleStore) LoadOrders(ctx context.Context, id common.Address) ([]*order.Order, error) {
	var orders []*order.Order
	err := s.scan(ctx, orderPrefix(id), func(v []byte) error {
		var o order.Order
		if err := decodeJSON(v, &o); err != nil {
			return fmt.Errorf("failed to unmarshal order: %w", err)
		}
		orders = append(orders, &o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })
	return orders, nil
}

// LoadPositions loads every open and closed position of an account,
// in the order they were opened
func (s *PebbleStore) LoadPositions(ctx context.Context, id common.Address) ([]*account.Position, error) {
	var positions []*account.Position
	err := s.scan(ctx, positionPrefix(id), func(v []byte) error {
		var p account.Position
		if err := decodeJSON(v, &p); err != nil {
			return fmt.Errorf("failed to unmarshal position: %w", err)
		}
		positions = append(positions, &p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortPositions(positions)
	return positions, nil
}

// RealizedPnL sums the journal for an account.
func (s *PebbleStore) RealizedPnL(ctx context.Context, id common.Address) (decimal.Decimal, error) {
	total := decimal.Zero
	err := s.scan(ctx, pnlPrefix(id), func(v []byte) error {
		var rec pnlRecord
		if err := decodeJSON(v, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal pnl entry: %w", err)
		}
		total = total.Add(rec.Delta)
		return nil
	})
	return total, err
}

func (s *PebbleStore) scan(ctx context.Context, prefix []byte, fn func(value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

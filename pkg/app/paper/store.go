package paper

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/account"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
	"github.com/uhyunpark/papertrade/pkg/storage"
)

// Store is the durable mirror of engine state. Every write is an upsert keyed
// by id and must be safe to repeat. Implementations must be safe for
// concurrent use by different accounts.
type Store interface {
	// LoadAccount returns nil, nil for an unknown account.
	LoadAccount(ctx context.Context, id common.Address) (*account.Account, error)
	SaveAccount(ctx context.Context, acc *account.Account) error
	UpsertOrder(ctx context.Context, o *order.Order) error
	UpsertPosition(ctx context.Context, p *account.Position) error
	AppendRealizedPnL(ctx context.Context, id common.Address, e account.PnLEntry) error

	// Commit applies the same upserts as the methods above, all or nothing.
	// The engine writes each operation through one Commit.
	Commit(ctx context.Context, b storage.Batch) error

	// LoadOrders and LoadPositions return terminal and closed records too.
	LoadOrders(ctx context.Context, id common.Address) ([]*order.Order, error)
	LoadPositions(ctx context.Context, id common.Address) ([]*account.Position, error)
	RealizedPnL(ctx context.Context, id common.Address) (decimal.Decimal, error)
}

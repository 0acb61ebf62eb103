package storage

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/papertrade/pkg/app/core/account"
	"github.com/uhyunpark/papertrade/pkg/app/core/order"
)

// Batch groups the records touched by one engine operation for a single
// account. Commit applies all of them or none.
type Batch struct {
	Owner     common.Address
	Account   *account.Account // nil when unchanged
	Orders    []*order.Order
	Positions []*account.Position
	PnL       []account.PnLEntry
}

func (b Batch) Empty() bool {
	return b.Account == nil && len(b.Orders) == 0 && len(b.Positions) == 0 && len(b.PnL) == 0
}

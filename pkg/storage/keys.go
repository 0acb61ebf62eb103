package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema for Pebble storage. Every record is scoped by account address
// so per-account recovery is a single prefix scan.
//
//   acc:<address>                → Account
//   pos:<address>:<positionID>   → Position (open and closed)
//   ord:<address>:<orderID>      → Order
//   pnl:<address>:<entryID>      → realized PnL journal entry

const (
	prefixAccount  = "acc:"
	prefixPosition = "pos:"
	prefixOrder    = "ord:"
	prefixPnL      = "pnl:"
)

// accountKey returns the key for an account
// Format: "acc:{address}"
func accountKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixAccount, addr.Hex()))
}

// positionKey returns the key for a position
// Format: "pos:{address}:{positionID}"
func positionKey(addr common.Address, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixPosition, addr.Hex(), id))
}

// positionPrefix returns the prefix for all positions of an account
func positionPrefix(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixPosition, addr.Hex()))
}

// orderKey returns the key for an order
// Format: "ord:{address}:{orderID}"
func orderKey(addr common.Address, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOrder, addr.Hex(), orderID))
}

func orderPrefix(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, addr.Hex()))
}

// pnlKey returns the key for a realized PnL journal entry
// Format: "pnl:{address}:{entryID}"
func pnlKey(addr common.Address, entryID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixPnL, addr.Hex(), entryID))
}

func pnlPrefix(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixPnL, addr.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
// Example: prefix "acc:0x123:" -> upper bound "acc:0x123;"
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

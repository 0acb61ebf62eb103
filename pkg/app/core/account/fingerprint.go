package account

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/papertrade/pkg/app/core/order"
)

// Fingerprint hashes the economic state of a ledger and its orders with
// Keccak-256. Generated ids and wall-clock timestamps are excluded, so two
// runs over the same tick sequence produce the same digest.
func Fingerprint(l *Ledger, orders []*order.Order) common.Hash {
	h := sha3.NewLegacyKeccak256()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}

	acct := l.Account()
	write("account", acct.Balance().String(), acct.RealizedPnL.String(), acct.Deposits.String())

	for _, p := range l.OpenPositions() {
		write("open", p.Symbol, string(p.Side), p.Qty.String(), p.EntryPrice.String(),
			p.MarkPrice.String(), p.UnrealizedPnL.String(), p.RealizedPnL.String())
	}
	for _, p := range l.ClosedPositions() {
		write("closed", p.Symbol, string(p.Side), p.ExitPrice.String(), p.RealizedPnL.String(), string(p.CloseReason))
	}

	sorted := append([]*order.Order(nil), orders...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })
	for _, o := range sorted {
		write("order", o.Symbol, string(o.Side), string(o.Type), o.Qty.String(),
			string(o.Status), o.FilledQty.String(), o.AvgFillPrice.String())
	}

	return common.BytesToHash(h.Sum(nil))
}

package storage

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/account"
)

// pnlRecord is the stored form of a realized PnL journal entry.
type pnlRecord struct {
	EntryID string          `json:"entryId"`
	Delta   decimal.Decimal `json:"delta"`
	At      time.Time       `json:"at"`
}

func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decodeJSON(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

// sortPositions orders positions by opening time, then id.
func sortPositions(ps []*account.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].OpenedAt.Equal(ps[j].OpenedAt) {
			return ps[i].OpenedAt.Before(ps[j].OpenedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus defines the trading status of a market
type MarketStatus int8

const (
	Active MarketStatus = iota // Trading enabled
	Paused                     // New orders refused, ticks still marked
)

func (ms MarketStatus) String() string {
	switch ms {
	case Active:
		return "Active"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Market describes a tradable symbol, e.g. BTC-USDT.
type Market struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Status     MarketStatus
}

// NewMarket builds an active market from a BASE-QUOTE symbol.
func NewMarket(symbol string) (*Market, error) {
	base, quote, ok := strings.Cut(symbol, "-")
	if !ok || base == "" || quote == "" {
		return nil, fmt.Errorf("invalid market symbol %q (want BASE-QUOTE)", symbol)
	}
	return &Market{
		Symbol:     symbol,
		BaseAsset:  base,
		QuoteAsset: quote,
		Status:     Active,
	}, nil
}

// Tick is a timestamped price observation for a symbol.
type Tick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"ts"`
}

func (t Tick) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("tick without symbol")
	}
	if !t.Price.IsPositive() {
		return fmt.Errorf("tick price must be positive: %s", t.Price)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("tick without timestamp")
	}
	return nil
}

package market

import (
	"fmt"
	"sort"
	"sync"
)

// MarketRegistry manages the tradable symbols in a thread-safe manner
type MarketRegistry struct {
	mu      sync.RWMutex
	markets map[string]*Market // symbol -> market
}

// NewMarketRegistry creates an empty market registry
func NewMarketRegistry() *MarketRegistry {
	return &MarketRegistry{
		markets: make(map[string]*Market),
	}
}

// NewRegistryFromSymbols registers an active market for every symbol.
func NewRegistryFromSymbols(symbols []string) (*MarketRegistry, error) {
	mr := NewMarketRegistry()
	for _, s := range symbols {
		m, err := NewMarket(s)
		if err != nil {
			return nil, err
		}
		if err := mr.RegisterMarket(m); err != nil {
			return nil, err
		}
	}
	return mr, nil
}

// RegisterMarket adds a new market to the registry
// Returns error if market with same symbol already exists
func (mr *MarketRegistry) RegisterMarket(m *Market) error {
	if m == nil {
		return fmt.Errorf("cannot register nil market")
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()

	if _, exists := mr.markets[m.Symbol]; exists {
		return fmt.Errorf("market %s already registered", m.Symbol)
	}

	mr.markets[m.Symbol] = m
	return nil
}

// GetMarket retrieves a copy of a market by symbol
func (mr *MarketRegistry) GetMarket(symbol string) (Market, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	m, exists := mr.markets[symbol]
	if !exists {
		return Market{}, fmt.Errorf("market %s not found", symbol)
	}
	return *m, nil
}

// ListMarkets returns copies of all registered markets sorted by symbol
func (mr *MarketRegistry) ListMarkets() []Market {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	markets := make([]Market, 0, len(mr.markets))
	for _, m := range mr.markets {
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].Symbol < markets[j].Symbol })
	return markets
}

// UpdateMarketStatus pauses or resumes a market
func (mr *MarketRegistry) UpdateMarketStatus(symbol string, status MarketStatus) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	m, exists := mr.markets[symbol]
	if !exists {
		return fmt.Errorf("market %s not found", symbol)
	}
	m.Status = status
	return nil
}

// Tradable reports whether new orders may be placed on symbol.
func (mr *MarketRegistry) Tradable(symbol string) error {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	m, exists := mr.markets[symbol]
	if !exists {
		return fmt.Errorf("unknown symbol %s", symbol)
	}
	if m.Status != Active {
		return fmt.Errorf("market %s is %s", symbol, m.Status)
	}
	return nil
}

// Exists checks if a market is registered
func (mr *MarketRegistry) Exists(symbol string) bool {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	_, exists := mr.markets[symbol]
	return exists
}

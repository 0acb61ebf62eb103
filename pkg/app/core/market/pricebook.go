package market

import "sync"

// PriceBook keeps the latest accepted tick per symbol.
// Ticks are expected to be non-decreasing in time per symbol.
type PriceBook struct {
	mu     sync.RWMutex
	latest map[string]Tick
}

func NewPriceBook() *PriceBook {
	return &PriceBook{latest: make(map[string]Tick)}
}

// Update records t unless it is older than the last tick for its symbol.
// Equal timestamps are accepted and applied in arrival order.
func (pb *PriceBook) Update(t Tick) bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if prev, ok := pb.latest[t.Symbol]; ok && t.Timestamp.Before(prev.Timestamp) {
		return false
	}
	pb.latest[t.Symbol] = t
	return true
}

// Latest returns the last accepted tick for symbol.
func (pb *PriceBook) Latest(symbol string) (Tick, bool) {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	t, ok := pb.latest[symbol]
	return t, ok
}

// Snapshot returns a copy of every latest tick.
func (pb *PriceBook) Snapshot() map[string]Tick {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	out := make(map[string]Tick, len(pb.latest))
	for k, v := range pb.latest {
		out[k] = v
	}
	return out
}

package feed

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/papertrade/pkg/app/core/market"
	"github.com/uhyunpark/papertrade/pkg/util"
)

// Starting prices for the random walk, by base asset.
var basePrices = map[string]int64{
	"BTC": 50000,
	"ETH": 3000,
	"SOL": 150,
}

// SimulatedConfig controls the random-walk generator.
type SimulatedConfig struct {
	Symbols  []string
	Interval time.Duration
	Seed     int64
	// MaxStepBps bounds each step's move, in basis points of the last price.
	MaxStepBps int
	// Limit stops the source after this many ticks. Zero runs until cancelled.
	Limit int
}

// SimulatedSource emits a seeded random walk per symbol. The same seed
// always yields the same price path.
type SimulatedSource struct {
	cfg    SimulatedConfig
	clock  util.Clock
	rng    *rand.Rand
	prices map[string]decimal.Decimal
}

func NewSimulatedSource(cfg SimulatedConfig, clock util.Clock) *SimulatedSource {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxStepBps <= 0 {
		cfg.MaxStepBps = 25
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	prices := make(map[string]decimal.Decimal, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		base, _, _ := strings.Cut(s, "-")
		start, ok := basePrices[base]
		if !ok {
			start = 100
		}
		prices[s] = decimal.NewFromInt(start)
	}
	return &SimulatedSource{
		cfg:    cfg,
		clock:  clock,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		prices: prices,
	}
}

// Next advances symbol one step and returns the new tick.
func (s *SimulatedSource) Next(symbol string) market.Tick {
	last := s.prices[symbol]
	step := s.rng.Intn(2*s.cfg.MaxStepBps+1) - s.cfg.MaxStepBps
	next := last.Add(last.Mul(decimal.New(int64(step), -4))).Round(2)
	if !next.IsPositive() {
		next = last
	}
	s.prices[symbol] = next
	return market.Tick{Symbol: symbol, Price: next, Timestamp: s.clock.Now()}
}

func (s *SimulatedSource) Run(ctx context.Context, out chan<- market.Tick) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	sent := 0
	for {
		for _, sym := range s.cfg.Symbols {
			select {
			case out <- s.Next(sym):
			case <-ctx.Done():
				return ctx.Err()
			}
			sent++
			if s.cfg.Limit > 0 && sent >= s.cfg.Limit {
				return nil
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Package feed delivers price ticks to the engine. A Source produces ticks;
// Pump forwards them, in arrival order, to a Sink.
package feed

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/uhyunpark/papertrade/pkg/app/core/market"
)

// Source produces ticks on out until ctx is cancelled or the source is
// exhausted. Run must not close out.
type Source interface {
	Run(ctx context.Context, out chan<- market.Tick) error
}

type Sink interface {
	OnTick(ctx context.Context, t market.Tick) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, t market.Tick) error

func (f SinkFunc) OnTick(ctx context.Context, t market.Tick) error { return f(ctx, t) }

// Pump runs src and delivers every tick to each sink in order. It returns
// when src returns; a cancelled context is not reported as an error.
func Pump(ctx context.Context, src Source, log *zap.SugaredLogger, sinks ...Sink) error {
	ticks := make(chan market.Tick, 64)
	errc := make(chan error, 1)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		errc <- src.Run(runCtx, ticks)
		close(ticks)
	}()

	delivered := 0
	for t := range ticks {
		for _, s := range sinks {
			if err := s.OnTick(ctx, t); err != nil {
				log.Warnw("tick_rejected", "symbol", t.Symbol, "price", t.Price.String(), "error", err)
			}
		}
		delivered++
	}

	err := <-errc
	log.Infow("feed_stopped", "ticks", delivered)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// SliceSource replays a fixed list of ticks.
type SliceSource struct {
	Ticks []market.Tick
}

func (s *SliceSource) Run(ctx context.Context, out chan<- market.Tick) error {
	for _, t := range s.Ticks {
		select {
		case out <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

package paper

import (
	"context"
	"fmt"

	"github.com/uhyunpark/papertrade/pkg/util"
)

// withRetry runs fn until it succeeds or the attempt budget is spent. Each
// attempt gets its own timeout and attempts are spaced by capped exponential
// backoff. Exhaustion is reported as ErrPersistenceFailure.
func (e *Engine) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	p := e.cfg.Persist
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := util.Backoff(p.BaseDelay, p.MaxDelay, attempt-1)
			e.log.Warnw("persist_retry", "op", op, "attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %s: %w", ErrPersistenceFailure, op, ctx.Err())
			case <-e.clock.After(delay):
			}
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		err = fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrPersistenceFailure, op, attempts, err)
}

package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy describes a bounded exponential backoff: BaseDelay before the
// second attempt, multiplied by Multiplier for each attempt after that.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultPolicy matches the upstream service's tolerances: three
// attempts with 1s, 2s, 4s spacing.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// delayFor returns the wait before attempt n+1 (0-based n).
func (p Policy) delayFor(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// Sleeper lets tests observe and skip real backoff delays.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op, retrying while retryable(err) holds and attempts remain.
// The last error is returned once attempts are exhausted or a
// non-retryable failure appears. Cancellation interrupts the backoff
// wait immediately.
func Do(ctx context.Context, p Policy, logger *slog.Logger, retryable func(error) bool, op func(ctx context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	return do(ctx, p, logger, retryable, sleep, op)
}

// DoWithSleeper is Do with an injectable sleeper, for tests.
func DoWithSleeper(ctx context.Context, p Policy, logger *slog.Logger, retryable func(error) bool, s Sleeper, op func(ctx context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	if s == nil {
		s = sleep
	}
	return do(ctx, p, logger, retryable, s, op)
}

func do(ctx context.Context, p Policy, logger *slog.Logger, retryable func(error) bool, s Sleeper, op func(ctx context.Context) error) error {
	p = p.normalized()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		wait := p.delayFor(attempt)
		logger.Warn("retry.backoff",
			"attempt", attempt+1,
			"max_attempts", p.MaxAttempts,
			"wait_ms", wait.Milliseconds(),
			"err", lastErr,
		)
		if err := s(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", p.MaxAttempts, lastErr)
}

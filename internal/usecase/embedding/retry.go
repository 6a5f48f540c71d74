package embedding

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/kailas-cloud/ragstore/internal/domain"
)

// Backoff defaults.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 30 * time.Second
)

// Backoff is exponential backoff with ±25% jitter, capped at Max.
// A zero MaxRetries means DefaultMaxRetries; a negative one disables retries.
type Backoff struct {
	MaxRetries int
	Base       time.Duration
	Max        time.Duration
}

func (b Backoff) withDefaults() Backoff {
	if b.MaxRetries == 0 {
		b.MaxRetries = DefaultMaxRetries
	}
	if b.Base <= 0 {
		b.Base = DefaultBaseDelay
	}
	if b.Max <= 0 {
		b.Max = DefaultMaxDelay
	}
	return b
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.withDefaults()
	delay := float64(b.Base) * math.Pow(2, float64(attempt-1))
	delay += delay * 0.25 * (rand.Float64()*2 - 1)
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	return time.Duration(delay)
}

// sleepFunc blocks for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs call until it succeeds, fails with a non-transient error, or
// MaxRetries retries are spent. onRetry is invoked before each wait.
// Exhaustion returns a *domain.TransientBackendError carrying the last cause.
func retry(
	ctx context.Context, b Backoff, sleep sleepFunc,
	onRetry func(attempt int, delay time.Duration, err error),
	call func(ctx context.Context) error,
) error {
	b = b.withDefaults()
	for attempt := 1; ; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}
		if !domain.IsRetryable(err) {
			return err
		}
		if attempt > max(b.MaxRetries, 0) {
			return &domain.TransientBackendError{Attempts: attempt, Cause: err}
		}
		delay := b.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return fmt.Errorf("retry after attempt %d: %w", attempt, serr)
		}
	}
}

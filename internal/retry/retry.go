// Package retry implements bounded exponential backoff with jitter for
// calls against rate-limited services. The embedding and generation
// clients share one policy; backoff timers run on the calling goroutine.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// TransientError marks an error as retryable: a rate-limit signal or a
// transient network/service failure. Anything not marked transient is
// treated as permanent and fails immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so the policy will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// Policy describes one retry discipline: delays start at BaseDelay,
// double each attempt up to MaxDelay, and gain up to Jitter fraction of
// random spread. MaxAttempts counts the first call.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Jitter      float64
	Retryable   func(error) bool

	// Sleep is swapped out in tests. Nil means a timer honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy matches the service limits we see in practice: 4
// attempts starting at 500ms, capped at 8s, 20% jitter.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		MaxAttempts: 4,
		Jitter:      0.2,
		Retryable:   IsTransient,
	}
}

// Do runs fn until it succeeds, fails permanently, the attempt budget is
// exhausted, or ctx is canceled. It returns the number of attempts made
// and the last error.
func (p Policy) Do(ctx context.Context, fn func() error) (int, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepFor
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if serr := sleep(ctx, p.delay(attempt-1)); serr != nil {
				return attempt, serr
			}
		}
		if err = fn(); err == nil {
			return attempt + 1, nil
		}
		if !retryable(err) {
			return attempt + 1, err
		}
		if ctx.Err() != nil {
			return attempt + 1, ctx.Err()
		}
	}
	return attempts, err
}

// delay computes the backoff before retry number n (0-based).
func (p Policy) delay(n int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	for i := 0; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d += time.Duration(rand.Float64() * spread)
	}
	return d
}

func sleepFor(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

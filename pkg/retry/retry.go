// Package retry implements the bounded exponential-backoff retry the host
// applies when a worker answers an RPC with a transient Busy or
// LeaseExpired error. It holds only what a single-shot RPC retry loop
// needs: no token bucket, no shared rate limiting across operation types,
// no jitter, just "retry this call a bounded
// number of times, waiting longer each time, unless the server told us
// exactly how long to wait."
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulrobinshaw/rch-xcode/pkg/logger"
)

var log = logger.New("rch:retry")

// ErrExhausted is returned when every retry attempt has been consumed and
// the last call still failed with a retryable error.
var ErrExhausted = errors.New("retry attempts exhausted")

// Config controls the backoff schedule for a Retrier.
type Config struct {
	// MaxAttempts is the total number of calls to fn, including the first.
	// A value of 1 means no retries.
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the computed delay between attempts.
	MaxBackoff time.Duration
	// Multiplier scales the backoff after each failed attempt.
	Multiplier float64
}

// DefaultConfig is the schedule the host uses for retrying Busy and
// LeaseExpired responses from a worker: five attempts, starting at
// 500ms and doubling up to 30s.
var DefaultConfig = Config{
	MaxAttempts:    5,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     30 * time.Second,
	Multiplier:     2.0,
}

// Retrier runs a fallible operation with bounded exponential backoff.
type Retrier struct {
	cfg Config
}

// New creates a Retrier from cfg. A zero-value field in cfg falls back to
// the matching DefaultConfig field.
func New(cfg Config) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = DefaultConfig.Multiplier
	}
	return &Retrier{cfg: cfg}
}

// RetryableError carries a server-suggested wait duration alongside the
// underlying error. A worker's Busy or LeaseExpired response maps to this
// at the protocol boundary, using retry_after_seconds when the worker
// supplied one.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Backoff returns the delay before the attempt numbered attempt (0-based,
// so attempt 0 is the delay before the second call). MaxBackoff caps the
// result.
func (r *Retrier) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return r.cfg.InitialBackoff
	}
	d := float64(r.cfg.InitialBackoff) * math.Pow(r.cfg.Multiplier, float64(attempt))
	if d > float64(r.cfg.MaxBackoff) {
		return r.cfg.MaxBackoff
	}
	return time.Duration(d)
}

// Do calls fn up to cfg.MaxAttempts times. fn signals a retryable failure
// by returning a *RetryableError; any other error is returned immediately
// without retrying. If RetryableError.RetryAfter is set, it is used as the
// wait instead of the computed backoff.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Printf("operation succeeded after %d retries", attempt)
			}
			return nil
		}

		var retryable *RetryableError
		if !errors.As(err, &retryable) {
			return err
		}
		lastErr = retryable.Err

		if attempt == r.cfg.MaxAttempts-1 {
			break
		}

		wait := r.Backoff(attempt)
		if retryable.RetryAfter > 0 {
			wait = retryable.RetryAfter
		}

		log.Printf("retryable error, backing off: attempt=%d wait=%v error=%v", attempt+1, wait, retryable.Err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrExhausted, r.cfg.MaxAttempts, lastErr)
}

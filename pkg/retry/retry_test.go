package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	r := New(Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesRetryableErrorThenSucceeds(t *testing.T) {
	r := New(Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &RetryableError{Err: errors.New("busy")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	r := New(Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &RetryableError{Err: errors.New("lease expired")}
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Do() error = %v, want ErrExhausted", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoNonRetryableErrorStopsImmediately(t *testing.T) {
	r := New(Config{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond})
	calls := 0
	sentinel := errors.New("classifier rejected")
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Do() error = %v, want sentinel", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoHonorsServerRetryAfter(t *testing.T) {
	r := New(Config{MaxAttempts: 2, InitialBackoff: time.Hour, MaxBackoff: time.Hour})
	start := time.Now()
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &RetryableError{Err: errors.New("busy"), RetryAfter: 5 * time.Millisecond}
		}
		return nil
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if elapsed >= time.Hour {
		t.Errorf("elapsed = %v, should have used RetryAfter (5ms) not InitialBackoff (1h)", elapsed)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	r := New(Config{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := r.Do(ctx, func(ctx context.Context) error {
		calls++
		return &RetryableError{Err: errors.New("busy")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	r := New(Config{MaxAttempts: 10, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2.0})

	if got := r.Backoff(0); got != 100*time.Millisecond {
		t.Errorf("Backoff(0) = %v, want 100ms", got)
	}
	if got := r.Backoff(1); got != 200*time.Millisecond {
		t.Errorf("Backoff(1) = %v, want 200ms", got)
	}
	if got := r.Backoff(10); got != time.Second {
		t.Errorf("Backoff(10) = %v, want capped at 1s", got)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	r := New(Config{})
	if r.cfg.MaxAttempts != DefaultConfig.MaxAttempts {
		t.Errorf("MaxAttempts = %d, want default %d", r.cfg.MaxAttempts, DefaultConfig.MaxAttempts)
	}
	if r.cfg.InitialBackoff != DefaultConfig.InitialBackoff {
		t.Errorf("InitialBackoff = %v, want default %v", r.cfg.InitialBackoff, DefaultConfig.InitialBackoff)
	}
	if r.cfg.MaxBackoff != DefaultConfig.MaxBackoff {
		t.Errorf("MaxBackoff = %v, want default %v", r.cfg.MaxBackoff, DefaultConfig.MaxBackoff)
	}
	if r.cfg.Multiplier != DefaultConfig.Multiplier {
		t.Errorf("Multiplier = %v, want default %v", r.cfg.Multiplier, DefaultConfig.Multiplier)
	}
}

package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fastPolicy keeps backoff sleeps negligible.
func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	var calls int
	got, attempts, err := Do(context.Background(), fastPolicy(3), "op", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("value = %q, want ok", got)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	cause := errors.New("down")
	var retried atomic.Int32
	p := fastPolicy(4)
	p.OnRetry = func(op string, attempt int, err error) {
		if op != "search" {
			t.Errorf("OnRetry op = %q, want search", op)
		}
		retried.Add(1)
	}

	_, attempts, err := Do(context.Background(), p, "search", func(context.Context) (int, error) {
		return 0, cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("Do() error = %v, want %v", err, cause)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
	if got := retried.Load(); got != 3 {
		t.Errorf("OnRetry calls = %d, want 3", got)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	t.Parallel()

	cause := errors.New("bad request")
	_, attempts, err := Do(context.Background(), fastPolicy(5), "op", func(context.Context) (int, error) {
		return 0, Permanent(cause)
	})
	if !errors.Is(err, cause) {
		t.Fatalf("Do() error = %v, want %v", err, cause)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDo_CallTimeoutAppliesPerAttempt(t *testing.T) {
	t.Parallel()

	p := fastPolicy(2)
	p.CallTimeout = 10 * time.Millisecond

	start := time.Now()
	_, attempts, err := Do(context.Background(), p, "generate", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do() error = %v, want DeadlineExceeded", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("elapsed = %v, per-call timeout not applied", elapsed)
	}
}

func TestDo_ParentCancellationStopsRetries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	_, attempts, err := Do(ctx, fastPolicy(10), "op", func(context.Context) (int, error) {
		cancel()
		return 0, errors.New("fail")
	})
	if err == nil {
		t.Fatal("Do() error = nil, want non-nil")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDo_ZeroPolicyRunsOnce(t *testing.T) {
	t.Parallel()

	_, attempts, err := Do(context.Background(), Policy{}, "op", func(context.Context) (int, error) {
		return 0, errors.New("fail")
	})
	if err == nil {
		t.Fatal("Do() error = nil, want non-nil")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

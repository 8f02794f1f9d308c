package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
)

// fastPolicy keeps retry waits negligible so tests run quickly.
func fastPolicy(maxTries uint) Policy {
	return Policy{
		InitialInterval:     time.Millisecond,
		MaxInterval:         2 * time.Millisecond,
		Multiplier:          2,
		RandomizationFactor: 0.1,
		MaxTries:            maxTries,
		MaxElapsedTime:      5 * time.Second,
	}
}

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	executor := NewExecutor(fastPolicy(5), nil)

	attempts := 0
	err := executor.Do(context.Background(), "list tasks", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return apperrors.New(apperrors.CodeTransient, "connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestDoFailsImmediatelyOnPermanentError(t *testing.T) {
	executor := NewExecutor(fastPolicy(5), nil)

	attempts := 0
	err := executor.Do(context.Background(), "get task", func(context.Context) error {
		attempts++
		return apperrors.New(apperrors.CodeNotFound, "task missing")
	})
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry on permanent error)", attempts)
	}
}

func TestDoSurfacesTypedErrorAfterExhaustion(t *testing.T) {
	executor := NewExecutor(fastPolicy(2), nil)

	cause := errors.New("gateway timeout")
	err := executor.Do(context.Background(), "update task", func(context.Context) error {
		return apperrors.Wrap(apperrors.CodeTransient, "planner 5xx", cause)
	})
	if !apperrors.IsCode(err, apperrors.CodeTransient) {
		t.Fatalf("expected TRANSIENT, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected original cause to be preserved")
	}
}

func TestDoHonoursRetryAfterAdvice(t *testing.T) {
	executor := NewExecutor(fastPolicy(3), nil)

	start := time.Now()
	attempts := 0
	err := executor.Do(context.Background(), "create task", func(context.Context) error {
		attempts++
		if attempts == 1 {
			return apperrors.WithMetadata(
				apperrors.CodeRateLimited,
				"throttled",
				map[string]string{RetryAfterKey: "1"},
			)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	// The second attempt must wait at least the advised second, well
	// beyond the millisecond backoff schedule.
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Fatalf("elapsed = %v, want >= 1s from retry-after advice", elapsed)
	}
}

func TestDoRateLimitExhaustionStaysTyped(t *testing.T) {
	executor := NewExecutor(fastPolicy(2), nil)

	err := executor.Do(context.Background(), "create task", func(context.Context) error {
		return apperrors.WithMetadata(
			apperrors.CodeRateLimited,
			"throttled",
			map[string]string{RetryAfterKey: "0"},
		)
	})
	if !apperrors.IsCode(err, apperrors.CodeRateLimited) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
}

func TestDoFailsFastWhenBreakerOpen(t *testing.T) {
	breaker, _ := newTestBreaker(1, time.Minute)
	breaker.RecordFailure()
	executor := NewExecutor(fastPolicy(3), breaker)

	attempts := 0
	err := executor.Do(context.Background(), "list plans", func(context.Context) error {
		attempts++
		return nil
	})
	if !apperrors.IsCode(err, apperrors.CodeTransient) {
		t.Fatalf("expected TRANSIENT fail-fast, got %v", err)
	}
	if attempts != 0 {
		t.Fatalf("attempts = %d, want 0 (remote call never issued)", attempts)
	}
}

func TestDoBreakerCountsOnlyTransientFailures(t *testing.T) {
	breaker, _ := newTestBreaker(1, time.Minute)
	executor := NewExecutor(fastPolicy(1), breaker)

	_ = executor.Do(context.Background(), "get task", func(context.Context) error {
		return apperrors.New(apperrors.CodeNotFound, "missing")
	})
	if got := breaker.State(); got != StateClosed {
		t.Fatalf("state = %q, want closed after non-transient failure", got)
	}

	_ = executor.Do(context.Background(), "get task", func(context.Context) error {
		return apperrors.New(apperrors.CodeTransient, "timeout")
	})
	if got := breaker.State(); got != StateOpen {
		t.Fatalf("state = %q, want open after transient failure", got)
	}
}

func TestDoHalfOpenRecoversAfterDefinitiveAnswer(t *testing.T) {
	breaker, clk := newTestBreaker(1, time.Minute)
	executor := NewExecutor(fastPolicy(1), breaker)

	_ = executor.Do(context.Background(), "get task", func(context.Context) error {
		return apperrors.New(apperrors.CodeTransient, "timeout")
	})
	if got := breaker.State(); got != StateOpen {
		t.Fatalf("state = %q, want open after transient failure", got)
	}

	// The first call after cooldown reaches the service and gets a
	// definitive NOT_FOUND. The service answered, so the breaker must
	// close rather than hold the probe slot.
	clk.Advance(time.Minute)
	err := executor.Do(context.Background(), "get task", func(context.Context) error {
		return apperrors.New(apperrors.CodeNotFound, "task missing")
	})
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if got := breaker.State(); got != StateClosed {
		t.Fatalf("state = %q, want closed after definitive answer", got)
	}

	attempts := 0
	for range 3 {
		if err := executor.Do(context.Background(), "list tasks", func(context.Context) error {
			attempts++
			return nil
		}); err != nil {
			t.Fatalf("do after recovery: %v", err)
		}
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3 calls to reach the healthy service", attempts)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	executor := NewExecutor(Policy{InitialInterval: time.Hour, MaxTries: 5}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- executor.Do(ctx, "list tasks", func(context.Context) error {
			return apperrors.New(apperrors.CodeTransient, "timeout")
		})
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("do did not return after cancellation")
	}
}

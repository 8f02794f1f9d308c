// Package resilience wraps remote calls with retry, rate-limit handling,
// and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
)

// RetryAfterKey is the error metadata key carrying a server-advised wait
// in whole seconds, as sent with HTTP 429 responses.
const RetryAfterKey = "retry_after"

// Policy holds the retry schedule. Zero values fall back to the defaults
// below.
type Policy struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxTries            uint
	MaxElapsedTime      time.Duration
}

// DefaultPolicy returns the retry schedule used when configuration
// provides nothing better.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         15 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
		MaxTries:            4,
		MaxElapsedTime:      2 * time.Minute,
	}
}

func (p Policy) withDefaults() Policy {
	defaults := DefaultPolicy()
	if p.InitialInterval <= 0 {
		p.InitialInterval = defaults.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = defaults.MaxInterval
	}
	if p.Multiplier <= 1 {
		p.Multiplier = defaults.Multiplier
	}
	if p.RandomizationFactor <= 0 {
		p.RandomizationFactor = defaults.RandomizationFactor
	}
	if p.MaxTries == 0 {
		p.MaxTries = defaults.MaxTries
	}
	if p.MaxElapsedTime <= 0 {
		p.MaxElapsedTime = defaults.MaxElapsedTime
	}
	return p
}

// Executor retries transient failures with exponential backoff and
// jitter, honouring server retry-after advice and the circuit breaker.
type Executor struct {
	policy  Policy
	breaker *Breaker
}

// NewExecutor creates an executor with the given schedule and an optional
// breaker. A nil breaker disables fail-fast behaviour.
func NewExecutor(policy Policy, breaker *Breaker) *Executor {
	return &Executor{policy: policy.withDefaults(), breaker: breaker}
}

// Do runs fn until it succeeds, fails permanently, or the retry budget is
// exhausted. Only errors carrying a retryable code (transient network and
// server failures, rate limiting) are retried; everything else fails
// immediately. A 429 with retry-after metadata waits at least the advised
// interval instead of the backoff schedule. The returned error is the
// typed error from the last attempt.
func (e *Executor) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = e.policy.InitialInterval
	schedule.MaxInterval = e.policy.MaxInterval
	schedule.Multiplier = e.policy.Multiplier
	schedule.RandomizationFactor = e.policy.RandomizationFactor

	var lastErr error
	attempt := func() (struct{}, error) {
		if e.breaker != nil && !e.breaker.Allow() {
			return struct{}{}, backoff.Permanent(apperrors.New(
				apperrors.CodeTransient,
				fmt.Sprintf("%s: circuit open, failing fast", op),
			))
		}

		err := fn(ctx)
		if err == nil {
			if e.breaker != nil {
				e.breaker.RecordSuccess()
			}
			return struct{}{}, nil
		}

		lastErr = err
		code := apperrors.GetCode(err)
		// Only genuine transient failures count against the breaker. Any
		// other answer, even an error like a 404 or 429, came from a
		// reachable service, so it also releases a half-open probe slot.
		if e.breaker != nil {
			if code == apperrors.CodeTransient {
				e.breaker.RecordFailure()
			} else {
				e.breaker.RecordSuccess()
			}
		}

		switch {
		case code == apperrors.CodeRateLimited:
			if wait := retryAfterOf(err); wait > 0 {
				return struct{}{}, &backoff.RetryAfterError{Duration: wait}
			}
			return struct{}{}, err
		case code.Retryable():
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(schedule),
		backoff.WithMaxTries(e.policy.MaxTries),
		backoff.WithMaxElapsedTime(e.policy.MaxElapsedTime),
	)
	if err != nil {
		// A retry-after marker can escape when the budget runs out on a
		// 429; surface the typed error from the last attempt instead.
		var retryAfter *backoff.RetryAfterError
		if errors.As(err, &retryAfter) && lastErr != nil {
			return lastErr
		}
	}
	return err
}

// retryAfterOf extracts the server-advised wait from error metadata.
func retryAfterOf(err error) time.Duration {
	metadata := apperrors.GetMetadata(err)
	if metadata == nil {
		return 0
	}
	seconds, convErr := strconv.Atoi(metadata[RetryAfterKey])
	if convErr != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

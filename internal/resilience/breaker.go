package resilience

import (
	"sync"
	"time"
)

// State is the circuit breaker state.
type State string

const (
	// StateClosed passes calls through while counting failures.
	StateClosed State = "closed"
	// StateOpen fails fast without attempting the remote call.
	StateOpen State = "open"
	// StateHalfOpen admits a single probe call after the cooldown.
	StateHalfOpen State = "half-open"
)

// BreakerConfig holds the circuit breaker thresholds. Both values come
// from configuration, not hard-coded call sites.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures
	// that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before admitting a probe.
	Cooldown time.Duration
}

// Breaker is a three-state circuit breaker protecting one remote
// dependency. It is safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	config    BreakerConfig
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	now       func() time.Time
}

// NewBreaker creates a closed breaker with the given thresholds. Zero or
// negative values fall back to a threshold of 5 failures and a 30-second
// cooldown.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	return &Breaker{config: config, state: StateClosed, now: time.Now}
}

// WithBreakerClock overrides the breaker's time source, for tests.
func (b *Breaker) WithBreakerClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	return b
}

// Allow reports whether a call may proceed. In the open state it starts
// admitting a single probe once the cooldown has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.probes = 1
		return true
	case StateHalfOpen:
		if b.probes > 0 {
			return false
		}
		b.probes = 1
		return true
	default:
		return true
	}
}

// RecordSuccess reports a successful call. A half-open probe success
// closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probes = 0
	b.state = StateClosed
}

// RecordFailure reports a failed call. Reaching the failure threshold, or
// failing the half-open probe, opens the circuit and restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
		b.probes = 0
	default:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.failures = 0
		}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

package mailbox

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit breaker states (spec §4.6).
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes a CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold consecutive failures trip Closed->Open.
	FailureThreshold int
	// OpenDuration is how long the breaker stays Open before probing
	// HalfOpen.
	OpenDuration time.Duration
	// HalfOpenSuccesses successful probes close the breaker again.
	HalfOpenSuccesses int
	// Enabled gates the breaker; when false, Allow always returns true and
	// RecordSuccess/RecordFailure are no-ops.
	Enabled bool
}

// DefaultBreakerConfig mirrors spec §6's suggested defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  5,
		OpenDuration:      30 * time.Second,
		HalfOpenSuccesses: 3,
		Enabled:           false,
	}
}

// CircuitBreaker tracks consecutive actor-turn failures and, once tripped,
// rejects turns for OpenDuration before allowing a limited number of
// HalfOpen probes through (spec §4.6).
type CircuitBreaker struct {
	cfg BreakerConfig

	mu              sync.Mutex
	state           BreakerState
	consecutiveFail int
	halfOpenOK      int
	openedAt        time.Time
	now             func() time.Time
}

// NewCircuitBreaker returns a Closed CircuitBreaker configured by cfg.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = DefaultBreakerConfig().OpenDuration
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = DefaultBreakerConfig().HalfOpenSuccesses
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a turn may proceed, transitioning Open->HalfOpen
// once OpenDuration has elapsed. Always true when the breaker is disabled.
func (b *CircuitBreaker) Allow() bool {
	if !b.cfg.Enabled {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) >= b.cfg.OpenDuration {
			b.state = HalfOpen
			b.halfOpenOK = 0
			return true
		}
		return false
	default: // HalfOpen
		return true
	}
}

// RecordSuccess reports a successful turn, closing the breaker if enough
// HalfOpen probes have succeeded.
func (b *CircuitBreaker) RecordSuccess() {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFail = 0
	if b.state == HalfOpen {
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.HalfOpenSuccesses {
			b.state = Closed
		}
	}
}

// RecordFailure reports a failed turn, tripping Closed->Open at the
// configured threshold, or immediately re-opening from HalfOpen.
func (b *CircuitBreaker) RecordFailure() {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.trip()
		return
	}
	b.consecutiveFail++
	if b.consecutiveFail >= b.cfg.FailureThreshold {
		b.trip()
	}
}

func (b *CircuitBreaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.consecutiveFail = 0
	b.halfOpenOK = 0
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

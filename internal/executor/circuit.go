package executor

import (
	"sync"
	"time"
)

// CircuitState is a per-tool health gate state (spec.md §3 CircuitBreaker).
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// CircuitConfig configures the open/half-open/closed transition thresholds
// and the exponential backoff schedule, grounded on the teacher pack's
// generic circuit breaker (haasonsaas-nexus/internal/infra/circuit.go) but
// specialized to spec.md §4.4's "base * 2^consecutive_opens, capped" cooldown
// growth instead of a fixed timeout.
type CircuitConfig struct {
	FailureThreshold int
	CooldownBase     time.Duration
	CooldownCap      time.Duration
}

// DefaultCircuitConfig mirrors spec.md §6's circuit_breaker{failures,
// cooldown_base, cooldown_cap} defaults.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{FailureThreshold: 3, CooldownBase: 2 * time.Second, CooldownCap: 2 * time.Minute}
}

// CircuitBreaker gates a single tool's executions after sustained failure,
// reopening for a single probe after a cooldown that grows monotonically
// with each successive open (spec.md §3/§8 P6).
type CircuitBreaker struct {
	mu                sync.Mutex
	cfg               CircuitConfig
	state             CircuitState
	failures          int
	successes         int
	consecutiveOpens  int
	nextProbeAt       time.Time
}

// NewCircuitBreaker creates a breaker in the Closed state.
func NewCircuitBreaker(cfg CircuitConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.CooldownBase <= 0 {
		cfg.CooldownBase = 2 * time.Second
	}
	if cfg.CooldownCap <= 0 {
		cfg.CooldownCap = 2 * time.Minute
	}
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed}
}

// Allow reports whether a call may proceed, transitioning Open -> HalfOpen
// once the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if !time.Now().Before(cb.nextProbeAt) {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// RecordSuccess resets failures in Closed, or closes the breaker on a
// HalfOpen probe success.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitClosed
		cb.failures = 0
		cb.successes = 0
		cb.consecutiveOpens = 0
	case CircuitClosed:
		cb.failures = 0
	}
}

// RecordFailure increments the failure count and opens the breaker once
// the threshold is reached (or immediately, on a failed HalfOpen probe),
// with a cooldown that doubles per consecutive open, capped.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.open()
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.open()
		}
	}
}

func (cb *CircuitBreaker) open() {
	cb.state = CircuitOpen
	cb.failures = 0
	cb.successes = 0
	cb.consecutiveOpens++

	cooldown := cb.cfg.CooldownBase << uint(cb.consecutiveOpens-1)
	if cooldown <= 0 || cooldown > cb.cfg.CooldownCap {
		cooldown = cb.cfg.CooldownCap
	}
	cb.nextProbeAt = time.Now().Add(cooldown)
}

// Registry owns one CircuitBreaker per tool name.
type Registry struct {
	mu       sync.Mutex
	cfg      CircuitConfig
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a breaker registry using cfg as the default for
// every tool.
func NewRegistry(cfg CircuitConfig) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns (creating if needed) the breaker for a tool name.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := NewCircuitBreaker(r.cfg)
	r.breakers[name] = cb
	return cb
}

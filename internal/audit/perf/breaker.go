/*
Copyright 2025 Hodei Audit Trail Contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package perf

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/auditerr"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker's trip and recovery
// conditions. Two independent trip conditions are evaluated: consecutive
// failures crossing FailureThreshold, and the rolling error rate over
// RollingWindow crossing ErrorRateThreshold once at least MinRequestThreshold
// requests have been observed in the window.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	SuccessThreshold    int
	Timeout             time.Duration
	ErrorRateThreshold  float64
	MinRequestThreshold int
	RollingWindow       time.Duration
	AutoRecovery        bool
}

type outcome struct {
	at      time.Time
	success bool
}

// CircuitBreaker is a hand-rolled three-state breaker: Closed admits every
// call, Open rejects every call until Timeout elapses, HalfOpen admits calls
// and trips back to Open on failure or closes on SuccessThreshold
// consecutive successes. The number of calls admitted while HalfOpen is not
// limited.
//
// The shape mirrors github.com/sony/gobreaker's state machine and counter
// reset semantics, but only gobreaker's Counts type is used; this
// implementation adds the dual trip condition (consecutive failures OR
// rolling error rate) that gobreaker's ReadyToTrip callback alone does not
// give a rolling-window view over.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	consecutiveSuccess  int
	openedAt            time.Time
	history             []outcome

	// counts reuses gobreaker's Counts shape for the per-generation
	// request/success/failure tally exposed via GetCounts, instead of
	// hand-rolling an equivalent struct; it is cleared on every state
	// transition the same way gobreaker.CircuitBreaker clears its own
	// generation counters.
	counts gobreaker.Counts
}

// NewCircuitBreaker constructs a CircuitBreaker in the Closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config, state: Closed}
}

// Allow reports whether a call may proceed given the breaker's current
// state, transitioning Open -> HalfOpen once Timeout has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return true
	case Open:
		if b.config.AutoRecovery && time.Since(b.openedAt) >= b.config.Timeout {
			b.state = HalfOpen
			b.consecutiveSuccess = 0
			b.counts = gobreaker.Counts{}
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful call's outcome.
func (b *CircuitBreaker) RecordSuccess(_ time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.pushHistoryLocked(outcome{at: now, success: true})
	b.consecutiveFailures = 0
	b.counts.Requests++
	b.counts.TotalSuccesses++
	b.counts.ConsecutiveSuccesses++
	b.counts.ConsecutiveFailures = 0

	switch b.state {
	case HalfOpen:
		b.consecutiveSuccess++
		if b.consecutiveSuccess >= b.config.SuccessThreshold {
			b.state = Closed
			b.consecutiveSuccess = 0
			b.counts = gobreaker.Counts{}
		}
	case Open:
		// A success reported while Open (e.g. a trial call that raced the
		// timeout transition) is recorded but does not itself close.
	}
}

// RecordFailure records a failed call's outcome and trips the breaker open
// if either trip condition now holds.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.pushHistoryLocked(outcome{at: now, success: false})
	b.consecutiveFailures++
	b.consecutiveSuccess = 0
	b.counts.Requests++
	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0

	if b.state == HalfOpen {
		b.tripLocked(now)
		return
	}
	if b.state == Closed && b.shouldTripLocked() {
		b.tripLocked(now)
	}
}

func (b *CircuitBreaker) tripLocked(now time.Time) {
	b.state = Open
	b.openedAt = now
	b.counts = gobreaker.Counts{}
}

func (b *CircuitBreaker) shouldTripLocked() bool {
	if b.config.FailureThreshold > 0 && b.consecutiveFailures >= b.config.FailureThreshold {
		return true
	}
	return b.rollingErrorRateTrippedLocked()
}

func (b *CircuitBreaker) rollingErrorRateTrippedLocked() bool {
	if b.config.ErrorRateThreshold <= 0 || b.config.MinRequestThreshold <= 0 {
		return false
	}
	total := len(b.history)
	if total < b.config.MinRequestThreshold {
		return false
	}
	failures := 0
	for _, o := range b.history {
		if !o.success {
			failures++
		}
	}
	return float64(failures)/float64(total) >= b.config.ErrorRateThreshold
}

func (b *CircuitBreaker) pushHistoryLocked(o outcome) {
	b.history = append(b.history, o)
	if b.config.RollingWindow <= 0 {
		return
	}
	cutoff := o.at.Add(-b.config.RollingWindow)
	i := 0
	for ; i < len(b.history); i++ {
		if b.history[i].at.After(cutoff) {
			break
		}
	}
	b.history = b.history[i:]
}

// CurrentState returns the breaker's current state.
func (b *CircuitBreaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetCounts returns a snapshot of the current generation's request tally.
// The generation resets on every state transition, same as gobreaker's own
// internal counters.
func (b *CircuitBreaker) GetCounts() gobreaker.Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// ErrOpen is returned by callers that wrap CircuitBreaker.Allow into a
// guarded-call helper, for the caller to recognize a fast-fail.
var ErrOpen = auditerr.New(auditerr.Unavailable, "circuit breaker is open")

// Call runs fn if the breaker allows it, recording the outcome. It returns
// ErrOpen without calling fn if the breaker is Open.
func (b *CircuitBreaker) Call(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	start := time.Now()
	err := fn()
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess(time.Since(start))
	return nil
}

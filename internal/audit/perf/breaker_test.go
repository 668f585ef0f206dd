package perf

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerTripsOnConsecutiveFailures(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Hour,
		AutoRecovery:     true,
	})
	for i := 0; i < 2; i++ {
		b.RecordFailure()
	}
	if b.CurrentState() != Closed {
		t.Fatal("expected breaker to stay Closed below threshold")
	}
	b.RecordFailure()
	if b.CurrentState() != Open {
		t.Fatal("expected breaker to trip Open at threshold")
	}
	if b.Allow() {
		t.Fatal("expected Allow to reject while Open and before timeout")
	}
}

func TestBreakerTripsOnRollingErrorRate(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:    1000, // disable consecutive-failure trip
		SuccessThreshold:    2,
		Timeout:             time.Hour,
		ErrorRateThreshold:  0.5,
		MinRequestThreshold: 4,
		RollingWindow:       time.Minute,
		AutoRecovery:        true,
	})
	b.RecordSuccess(time.Millisecond)
	b.RecordFailure()
	b.RecordSuccess(time.Millisecond)
	if b.CurrentState() != Closed {
		t.Fatal("expected breaker to stay Closed below min request threshold")
	}
	b.RecordFailure()
	if b.CurrentState() != Open {
		t.Fatal("expected breaker to trip on rolling error rate")
	}
}

func TestBreakerHalfOpenRecoversOnSuccesses(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
		AutoRecovery:     true,
	})
	b.RecordFailure()
	if b.CurrentState() != Open {
		t.Fatal("expected Open after single failure at threshold 1")
	}
	time.Sleep(15 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected Allow to admit a trial call after timeout")
	}
	if b.CurrentState() != HalfOpen {
		t.Fatal("expected HalfOpen after timeout elapses")
	}
	b.RecordSuccess(time.Millisecond)
	b.RecordSuccess(time.Millisecond)
	if b.CurrentState() != Closed {
		t.Fatal("expected Closed after SuccessThreshold consecutive successes")
	}
}

func TestBreakerHalfOpenReTripsOnFailure(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
		AutoRecovery:     true,
	})
	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	b.Allow()
	b.RecordFailure()
	if b.CurrentState() != Open {
		t.Fatal("expected re-trip to Open on HalfOpen failure")
	}
}

func TestBreakerWithoutAutoRecoveryStaysOpen(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          time.Millisecond,
		AutoRecovery:     false,
	})
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	if b.Allow() {
		t.Fatal("expected breaker without auto-recovery to stay Open")
	}
}

func TestGetCountsTracksGenerationAndResetsOnTransition(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
		AutoRecovery:     true,
	})
	b.RecordSuccess(time.Millisecond)
	b.RecordFailure()
	counts := b.GetCounts()
	if counts.Requests != 2 || counts.TotalSuccesses != 1 || counts.TotalFailures != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	b.RecordFailure()
	b.RecordFailure()
	if b.CurrentState() != Open {
		t.Fatal("expected Open at failure threshold")
	}
	if b.GetCounts().Requests != 0 {
		t.Fatalf("expected counts cleared on trip, got %+v", b.GetCounts())
	}
}

func TestCallWrapsOutcome(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour, AutoRecovery: true})
	boom := errors.New("boom")
	if err := b.Call(func() error { return boom }); err != boom {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := b.Call(func() error { return nil }); err != ErrOpen {
		t.Fatalf("expected ErrOpen after trip, got %v", err)
	}
}

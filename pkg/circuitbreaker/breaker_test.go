package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func trip(t *testing.T, cb *CircuitBreaker, failures int) {
	t.Helper()
	for i := 0; i < failures; i++ {
		_ = cb.Execute(context.Background(), func() error { return errBoom })
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{FailureThreshold: 3})

	trip(t, cb, 3)
	if cb.State() != StateOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	err := cb.Execute(context.Background(), func() error {
		t.Fatal("request must be rejected while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{FailureThreshold: 3})

	trip(t, cb, 2)
	if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	trip(t, cb, 2)

	if cb.State() != StateClosed {
		t.Fatalf("expected closed state after interleaved success, got %s", cb.State())
	}
}

func TestHalfOpenClosesAfterSuccesses(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		MaxRequests:      2,
		Timeout:          10 * time.Millisecond,
	})

	trip(t, cb, 1)
	if cb.State() != StateOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	time.Sleep(15 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open state after timeout, got %s", cb.State())
	}

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
			t.Fatalf("probe %d failed: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed state after probes, got %s", cb.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{
		FailureThreshold: 1,
		Timeout:          10 * time.Millisecond,
	})

	trip(t, cb, 1)
	time.Sleep(15 * time.Millisecond)

	_ = cb.Execute(context.Background(), func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Fatalf("expected reopened state, got %s", cb.State())
	}
}

func TestStateChangeCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker("test", Config{
		FailureThreshold: 1,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	trip(t, cb, 1)
	if len(transitions) != 1 || transitions[0] != "closed>open" {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
}

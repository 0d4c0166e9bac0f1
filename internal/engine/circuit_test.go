package engine

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	for range 2 {
		cb.Failure()
	}
	if err := cb.Allow(); err != nil {
		t.Errorf("Allow() below threshold = %v", err)
	}

	cb.Failure()
	if cb.State() != CircuitOpen {
		t.Errorf("state = %v, want open", cb.State())
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() while open = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	cb.Failure()
	cb.Failure()
	cb.Success()
	cb.Failure()
	cb.Failure()

	if cb.State() != CircuitClosed {
		t.Errorf("state = %v, want closed after interleaved success", cb.State())
	}
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})

	cb.Failure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() after timeout = %v", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}

	cb.Success()
	if cb.State() != CircuitHalfOpen {
		t.Errorf("state = %v, want half-open before success threshold", cb.State())
	}
	cb.Success()
	if cb.State() != CircuitClosed {
		t.Errorf("state = %v, want closed after recovery", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          10 * time.Millisecond,
	})

	cb.Failure()
	time.Sleep(20 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() after timeout = %v", err)
	}

	cb.Failure()
	if cb.State() != CircuitOpen {
		t.Errorf("state = %v, want open after probe failure", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	cb.Failure()
	cb.Reset()

	if cb.State() != CircuitClosed {
		t.Errorf("state = %v, want closed after reset", cb.State())
	}
	if err := cb.Allow(); err != nil {
		t.Errorf("Allow() after reset = %v", err)
	}
}

func TestCircuitState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

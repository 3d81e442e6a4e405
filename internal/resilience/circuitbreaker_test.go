package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackendDown = errors.New("embedding backend unreachable")

// fakeClock drives the breaker's reset timeout without sleeping.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time          { return c.current }
func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{current: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(cfg)
	cb.now = clock.Now
	return cb, clock
}

// trip drives the breaker into the open state.
func trip(t *testing.T, cb *CircuitBreaker, failures int) {
	t.Helper()
	for range failures {
		_ = cb.Execute(func() error { return errBackendDown })
	}
	if cb.State() != StateOpen {
		t.Fatalf("breaker did not open after %d failures, state = %v", failures, cb.State())
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "openai"})
	if cb.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", cb.maxFailures)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
	}
	if cb.halfOpenMax != 3 {
		t.Errorf("halfOpenMax = %d, want 3", cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("new breaker state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_ClosedForwardsCalls(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{Name: "openai"})

	calls := 0
	for range 10 {
		if err := cb.Execute(func() error { calls++; return nil }); err != nil {
			t.Fatalf("healthy call rejected: %v", err)
		}
	}
	if calls != 10 {
		t.Errorf("backend called %d times, want 10", calls)
	}
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{Name: "openai", MaxFailures: 3})

	for i := range 2 {
		if err := cb.Execute(func() error { return errBackendDown }); !errors.Is(err, errBackendDown) {
			t.Fatalf("failure %d: err = %v, want backend error", i+1, err)
		}
		if cb.State() != StateClosed {
			t.Fatalf("breaker opened after only %d failures", i+1)
		}
	}
	_ = cb.Execute(func() error { return errBackendDown })
	if cb.State() != StateOpen {
		t.Errorf("state = %v after 3 failures, want open", cb.State())
	}

	// An open breaker rejects without touching the backend.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open breaker returned %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("open breaker still called the backend")
	}
}

func TestCircuitBreaker_SuccessClearsFailureStreak(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{Name: "openai", MaxFailures: 3})

	_ = cb.Execute(func() error { return errBackendDown })
	_ = cb.Execute(func() error { return errBackendDown })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBackendDown })
	_ = cb.Execute(func() error { return errBackendDown })

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed; failures are not consecutive", cb.State())
	}
}

func TestCircuitBreaker_ResetTimeoutAdmitsTrials(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{
		Name: "openai", MaxFailures: 1, ResetTimeout: 30 * time.Second, HalfOpenMax: 1,
	})
	trip(t, cb, 1)

	clock.Advance(29 * time.Second)
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("call admitted before the reset timeout elapsed: %v", err)
	}

	clock.Advance(2 * time.Second)
	if cb.State() != StateHalfOpen {
		t.Errorf("state = %v after timeout, want half-open", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("trial call rejected: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v after successful trial, want closed", cb.State())
	}
}

func TestCircuitBreaker_TrialFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{
		Name: "openai", MaxFailures: 1, ResetTimeout: 10 * time.Second, HalfOpenMax: 3,
	})
	trip(t, cb, 1)

	clock.Advance(11 * time.Second)
	_ = cb.Execute(func() error { return errBackendDown })
	if cb.State() != StateOpen {
		t.Errorf("state = %v after failed trial, want open", cb.State())
	}

	// The re-opened breaker waits out a full timeout again.
	clock.Advance(9 * time.Second)
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("re-opened breaker admitted a call early: %v", err)
	}
}

func TestCircuitBreaker_TrialBudgetIsBounded(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{
		Name: "openai", MaxFailures: 1, ResetTimeout: 10 * time.Second, HalfOpenMax: 2,
	})
	trip(t, cb, 1)
	clock.Advance(10 * time.Second)

	// Hold trial calls open so the budget fills without settling.
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	for range 2 {
		go func() {
			_ = cb.Execute(func() error {
				started <- struct{}{}
				<-release
				return nil
			})
			done <- struct{}{}
		}()
	}
	<-started
	<-started

	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("call beyond the trial budget admitted: %v", err)
	}
	close(release)
	<-done
	<-done
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{Name: "openai", MaxFailures: 1})
	trip(t, cb, 1)

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("state = %v after Reset, want closed", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("call rejected after Reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

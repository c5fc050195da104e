package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      20 * time.Millisecond,
		HalfOpenMaxCalls: 2,
	}
}

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		cb.Execute(context.Background(), func() error {
			return errors.New("backend error")
		})
	}
}

func TestClosed_PassesCallsThrough(t *testing.T) {
	cb := New(testConfig())

	err := cb.Execute(context.Background(), func() error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %v", cb.State())
	}
}

func TestClosed_OpensAtFailureThreshold(t *testing.T) {
	cb := New(testConfig())

	failN(cb, 2)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed below threshold, got %v", cb.State())
	}

	failN(cb, 1)
	if cb.State() != StateOpen {
		t.Fatalf("expected open at threshold, got %v", cb.State())
	}
}

func TestOpen_RejectsWithoutCallingFn(t *testing.T) {
	cb := New(testConfig())
	failN(cb, 3)

	called := false
	err := cb.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Fatal("fn must not run while the breaker is open")
	}
}

func TestOpen_SuccessStreakClosesViaHalfOpen(t *testing.T) {
	cb := New(testConfig())
	failN(cb, 3)

	time.Sleep(25 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
			t.Fatalf("trial call %d: unexpected error: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after success streak, got %v", cb.State())
	}
}

func TestHalfOpen_SingleFailureReopens(t *testing.T) {
	cb := New(testConfig())
	failN(cb, 3)

	time.Sleep(25 * time.Millisecond)

	cb.Execute(context.Background(), func() error { return errors.New("still down") })
	if cb.State() != StateOpen {
		t.Fatalf("expected reopened, got %v", cb.State())
	}

	if err := cb.Execute(context.Background(), func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen right after reopening, got %v", err)
	}
}

func TestFailureCount_ResetsOnSuccess(t *testing.T) {
	cb := New(testConfig())

	failN(cb, 2)
	cb.Execute(context.Background(), func() error { return nil })
	failN(cb, 2)

	if cb.State() != StateClosed {
		t.Fatalf("expected closed, the streak was broken, got %v", cb.State())
	}
}

func TestExecute_ConcurrentCallers(t *testing.T) {
	cb := New(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cb.Execute(context.Background(), func() error {
				if n%2 == 0 {
					return errors.New("sporadic")
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	// Interleaved successes keep resetting the failure streak.
	if got := cb.State(); got != StateClosed && got != StateOpen {
		t.Fatalf("unexpected state %v", got)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(99):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

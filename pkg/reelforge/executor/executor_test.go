package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestDelayForStrategies(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	p.Strategy = RetryNone
	if d := delayFor(p, 1); d != 0 {
		t.Fatalf("none: want 0, got %v", d)
	}

	p.Strategy = RetryFixed
	if d := delayFor(p, 3); d != time.Second {
		t.Fatalf("fixed: want 1s, got %v", d)
	}

	p.Strategy = RetryLinear
	if d := delayFor(p, 3); d != 3*time.Second {
		t.Fatalf("linear: want 3s, got %v", d)
	}

	p.Strategy = RetryExponential
	if d := delayFor(p, 1); d != time.Second {
		t.Fatalf("exponential n=1: want 1s, got %v", d)
	}
	if d := delayFor(p, 4); d != 8*time.Second {
		t.Fatalf("exponential n=4: want 8s, got %v", d)
	}
	if d := delayFor(p, 10); d != 10*time.Second {
		t.Fatalf("exponential capped: want 10s (max), got %v", d)
	}
}

// S3 from spec.md: transient error on first attempt, succeeds on retry,
// attempt_count ends at 2.
func TestExecuteRetryThenSucceed(t *testing.T) {
	var calls int32
	op := Operation(func(ctx context.Context, progress ProgressFunc) (any, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return nil, context.DeadlineExceeded // classified transient
		}
		return "ok", nil
	})

	e := New(2, nil)
	res := e.Execute(context.Background(), "job1", op, Policy{
		MaxRetries: 3,
		Strategy:   RetryFixed,
		BaseDelay:  time.Millisecond,
	})

	if res.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %v (err=%v)", res.Outcome, res.Err)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
}

// Boundary: max_retries=0 means first failure is terminal.
func TestExecuteNoRetriesFirstFailureIsTerminal(t *testing.T) {
	op := Operation(func(ctx context.Context, progress ProgressFunc) (any, error) {
		return nil, errors.New("boom")
	})
	e := New(1, nil)
	res := e.Execute(context.Background(), "job1", op, Policy{MaxRetries: 0})
	if res.Outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %v", res.Outcome)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", res.Attempts)
	}
}

func TestExecuteTerminalErrorNotRetried(t *testing.T) {
	var calls int32
	op := Operation(func(ctx context.Context, progress ProgressFunc) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("invalid credentials")
	})
	e := New(1, nil)
	res := e.Execute(context.Background(), "job1", op, Policy{MaxRetries: 5, Strategy: RetryFixed, BaseDelay: time.Millisecond})
	if res.Outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %v", res.Outcome)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("terminal error should not be retried, got %d calls", calls)
	}
}

func TestExecuteCancelDuringOperation(t *testing.T) {
	started := make(chan struct{})
	op := Operation(func(ctx context.Context, progress ProgressFunc) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	e := New(1, nil)
	done := make(chan Result, 1)
	go func() {
		done <- e.Execute(context.Background(), "job-cancel", op, Policy{MaxRetries: 3})
	}()

	<-started
	if !e.Cancel("job-cancel") {
		t.Fatalf("expected Cancel to find the in-flight job")
	}

	select {
	case res := <-done:
		if res.Outcome != OutcomeCancelled {
			t.Fatalf("expected cancelled, got %v", res.Outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
}

func TestExecuteTimeoutCountsTowardRetryExhaustion(t *testing.T) {
	op := Operation(func(ctx context.Context, progress ProgressFunc) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := New(1, nil)
	res := e.Execute(context.Background(), "job-timeout", op, Policy{
		MaxRetries:        1,
		Strategy:          RetryFixed,
		BaseDelay:         time.Millisecond,
		TimeoutPerAttempt: 20 * time.Millisecond,
	})
	if res.Outcome != OutcomeTimedOut {
		t.Fatalf("expected timed_out, got %v", res.Outcome)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts (1 retry) before exhaustion, got %d", res.Attempts)
	}
}

func TestConcurrencyCapEnforced(t *testing.T) {
	const maxConc = 2
	e := New(maxConc, nil)

	var inFlight, maxInFlight int32
	release := make(chan struct{})
	op := Operation(func(ctx context.Context, progress ProgressFunc) (any, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	})

	results := make(chan Result, 5)
	for i := 0; i < 5; i++ {
		go func(i int) {
			results <- e.Execute(context.Background(), fmt.Sprintf("job-%d", i), op, Policy{})
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&maxInFlight); got > maxConc {
		t.Fatalf("active_count %d exceeded max_concurrent_jobs %d", got, maxConc)
	}
	close(release)
	for i := 0; i < 5; i++ {
		<-results
	}
}

// Package executor runs async operations with bounded concurrency,
// retries, timeouts, and cancellation — the JobExecutor of the
// scheduling core. Operations receive a ProgressFunc, but the executor
// passes a no-op one: progress reported through it is discarded, not
// forwarded.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// RetryStrategy selects the delay schedule between attempts.
type RetryStrategy string

const (
	RetryNone        RetryStrategy = "none"
	RetryFixed       RetryStrategy = "fixed"
	RetryLinear      RetryStrategy = "linear"
	RetryExponential RetryStrategy = "exponential"
)

// ErrTerminal, when wrapped around an operation's returned error, tells
// the executor not to retry regardless of remaining attempts — used by
// capabilities to signal invalid credentials, content policy rejection,
// or other unrecoverable causes (spec §7, Terminal errors).
var ErrTerminal = errors.New("executor: terminal failure")

// Outcome is the terminal disposition of an Execute call.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Result is what Execute returns.
type Result struct {
	Outcome  Outcome
	Value    any
	Err      error
	Attempts int
}

// ProgressFunc reports 0-100 progress for the in-flight attempt.
type ProgressFunc func(percent int)

// Operation is the async unit of work the executor runs. It must observe
// ctx.Done() at safe points to cooperate with cancellation and timeouts.
type Operation func(ctx context.Context, progress ProgressFunc) (any, error)

// Policy controls retry/timeout behaviour for one Execute call.
type Policy struct {
	MaxRetries        int
	Strategy          RetryStrategy
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	TimeoutPerAttempt time.Duration

	// Classifier reports whether err is retryable (transient). If nil,
	// the default classifier treats context.DeadlineExceeded as
	// transient and anything wrapping ErrTerminal as terminal;
	// everything else is treated as terminal too, per spec's default
	// classifier (timeouts and network errors transient, everything
	// else terminal unless the capability annotates otherwise).
	Classifier func(error) bool
}

func (p Policy) effective() Policy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Minute
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = time.Hour
	}
	if p.Classifier == nil {
		p.Classifier = defaultClassifier
	}
	return p
}

func defaultClassifier(err error) bool {
	if errors.Is(err, ErrTerminal) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// delayFor returns the wait before attempt n (1-indexed, n=1 is the
// first retry after the initial attempt), per spec §4.2.
func delayFor(p Policy, n int) time.Duration {
	switch p.Strategy {
	case RetryFixed:
		return p.BaseDelay
	case RetryLinear:
		return time.Duration(n) * p.BaseDelay
	case RetryExponential:
		d := p.BaseDelay * time.Duration(1<<uint(n-1))
		if d > p.MaxDelay || d <= 0 {
			return p.MaxDelay
		}
		return d
	default:
		return 0
	}
}

// cancelGrace is how long runAttempt waits, after a per-attempt timeout
// fires, for the operation to return before reporting the attempt as
// timed out anyway. External cancellation is reported at once, without
// this wait.
const cancelGrace = 30 * time.Second

// Executor runs operations under a global concurrency cap, fairly
// admitting queued submissions in arrival order via a weighted
// semaphore.
type Executor struct {
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs an Executor with the given concurrency cap
// (max_concurrent_jobs).
func New(maxConcurrent int64, logger *slog.Logger) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		sem:     semaphore.NewWeighted(maxConcurrent),
		logger:  logger.With("component", "executor"),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Acquire blocks until a concurrency slot is available (or ctx is
// cancelled) and returns a func to release it. Callers that need the
// slot held across more than a single Execute call — e.g. to keep a
// job's RUNNING status and its semaphore slot coincident — should
// Acquire here and run the operation via ExecuteLocked instead of
// Execute, which would otherwise acquire a second slot for the same
// job.
func (e *Executor) Acquire(ctx context.Context) (func(), error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	released := false
	return func() {
		if !released {
			released = true
			e.sem.Release(1)
		}
	}, nil
}

// Execute runs operation under policy, gated by the concurrency
// semaphore. It blocks until a slot is available, ctx is cancelled, or
// the operation (across retries) reaches a terminal disposition.
func (e *Executor) Execute(ctx context.Context, jobID string, op Operation, policy Policy) Result {
	release, err := e.Acquire(ctx)
	if err != nil {
		return Result{Outcome: OutcomeCancelled, Err: err}
	}
	defer release()

	return e.ExecuteLocked(ctx, jobID, op, policy)
}

// ExecuteLocked runs operation under policy assuming the caller already
// holds a concurrency slot acquired via Acquire. It must never be
// called without a matching prior Acquire, or the concurrency bound is
// violated.
func (e *Executor) ExecuteLocked(ctx context.Context, jobID string, op Operation, policy Policy) Result {
	policy = policy.effective()

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[jobID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, jobID)
		e.mu.Unlock()
		cancel()
	}()

	var lastErr error
	attempts := 0
	maxAttempts := policy.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			wait := delayFor(policy, attempt-1)
			if wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-runCtx.Done():
					timer.Stop()
					return e.cancelledResult(runCtx, attempts, lastErr)
				}
			}
		}

		attempts++
		value, err, timedOut := e.runAttempt(runCtx, op, policy.TimeoutPerAttempt)

		if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.Canceled) {
			// External cancellation always wins over a concurrent
			// timeout/failure, and never counts toward retry
			// exhaustion.
			return e.cancelledResult(runCtx, attempts, err)
		}

		if err == nil {
			return Result{Outcome: OutcomeCompleted, Value: value, Attempts: attempts}
		}

		lastErr = err
		if timedOut {
			// Executor-initiated timeouts DO count toward retry
			// exhaustion, per spec: "Cancellation and timeout never
			// count toward retry exhaustion when the cancel was
			// externally triggered (only executor-initiated timeouts
			// do)."
			if !policy.Classifier(context.DeadlineExceeded) || attempt == maxAttempts {
				return Result{Outcome: OutcomeTimedOut, Err: err, Attempts: attempts}
			}
			continue
		}

		if !policy.Classifier(err) {
			// Terminal: not retried regardless of remaining attempts.
			return Result{Outcome: OutcomeFailed, Err: err, Attempts: attempts}
		}
	}

	return Result{Outcome: OutcomeFailed, Err: lastErr, Attempts: attempts}
}

// runAttempt executes a single attempt of op under an optional timeout,
// reporting whether the attempt itself timed out (as opposed to failing
// outright or being cancelled externally).
func (e *Executor) runAttempt(ctx context.Context, op Operation, timeout time.Duration) (value any, err error, timedOut bool) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("operation panicked: %v", r)}
			}
		}()
		v, err := op(attemptCtx, func(int) {})
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err, false
	case <-ctx.Done():
		// External cancellation takes precedence even while a timeout's
		// grace window is open; it is reported to the caller as such so
		// Execute can classify it CANCELLED rather than TIMED_OUT.
		return nil, ctx.Err(), false
	case <-attemptCtx.Done():
		if timeout > 0 && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			// Let the goroutine keep running in the background (it may
			// eventually observe attemptCtx.Done() itself); the
			// executor does not wait past cancelGrace for it.
			select {
			case o := <-done:
				return o.value, o.err, true
			case <-ctx.Done():
				return nil, ctx.Err(), false
			case <-time.After(cancelGrace):
				e.logger.Warn("operation did not observe timeout within grace period", "grace", cancelGrace)
				return nil, attemptCtx.Err(), true
			}
		}
		return nil, ctx.Err(), false
	}
}

func (e *Executor) cancelledResult(_ context.Context, attempts int, lastErr error) Result {
	return Result{Outcome: OutcomeCancelled, Err: lastErr, Attempts: attempts}
}

// Limiter exposes the executor's concurrency semaphore so other
// components (the recurring scheduler's per-tick materialisation) can
// share the same bound rather than maintaining a second one, per spec's
// "bounded by the same executor semaphore used for dispatch".
func (e *Executor) Limiter() *semaphore.Weighted {
	return e.sem
}

// Cancel signals the cancel token associated with jobID, if an Execute
// call for it is in flight. Cooperative: the operation must observe
// ctx.Done() to actually stop.
func (e *Executor) Cancel(jobID string) bool {
	e.mu.Lock()
	cancel, ok := e.cancels[jobID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// BatchItem pairs a job id and operation for ExecuteBatch.
type BatchItem struct {
	JobID     string
	Operation Operation
	Policy    Policy
}

// ExecuteBatch runs items concurrently, respecting the same global
// concurrency cap as Execute. If failFast is true, the first failed
// (non-completed) result cancels all other in-flight items.
func (e *Executor) ExecuteBatch(ctx context.Context, items []BatchItem, failFast bool) []Result {
	results := make([]Result, len(items))
	batchCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item BatchItem) {
			defer wg.Done()
			res := e.Execute(batchCtx, item.JobID, item.Operation, item.Policy)
			results[i] = res
			if failFast && res.Outcome != OutcomeCompleted {
				cancelAll()
			}
		}(i, item)
	}
	wg.Wait()
	return results
}

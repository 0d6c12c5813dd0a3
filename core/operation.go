package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// RetryPolicy controls re-execution of a faulted operation. Delays grow
// exponentially from InitialDelay up to MaxDelay.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy retries three times starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialDelay
	bo.MaxInterval = p.MaxDelay
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	return backoff.WithMaxRetries(bo, uint64(p.MaxRetries))
}

// OperationOption configures an operation at construction.
type OperationOption func(*Operation)

// WithPriority sets the admission priority. Among several ready operations
// contending for one slot, higher priority starts first; equal priority falls back
// to submission order. There is no priority aging.
func WithPriority(priority int) OperationOption {
	return func(op *Operation) { op.item.priority = priority }
}

// WithName sets a display name used in execution records.
func WithName(name string) OperationOption {
	return func(op *Operation) { op.item.name = name }
}

// WithRetry re-enqueues the operation after a backoff delay when its action
// faults, until the policy's attempts are exhausted.
func WithRetry(policy RetryPolicy) OperationOption {
	return func(op *Operation) { op.retry = &policy }
}

// PropagateFailure opts the operation into failure propagation: if any dependency
// finishes with a fault, the operation completes with ErrDependencyFailed instead
// of running. Without this option a failed dependency still satisfies the ordering
// constraint.
func PropagateFailure() OperationOption {
	return func(op *Operation) { op.propagate = true }
}

// Operation is a WorkItem extended with dependencies, priority, and advisory
// cancellation. Operations are created on a Graph and become Ready only once every
// dependency has reached a terminal state.
type Operation struct {
	item  *WorkItem
	graph *Graph

	// ctx is done once Cancel is called; the executor merges it into the action's
	// run context so the action can observe cancellation at safe points.
	ctx       context.Context
	cancelCtx context.CancelFunc
	cancelled atomic.Bool

	mu        sync.Mutex
	remaining int
	depErr    error
	propagate bool
	submitted bool

	retry *RetryPolicy
	bo    backoff.BackOff
}

// ID returns the operation's identifier.
func (op *Operation) ID() uuid.UUID { return op.item.id }

// Handle returns the operation's completion handle.
func (op *Operation) Handle() *Handle { return &Handle{item: op.item} }

// State returns the operation's current lifecycle state.
func (op *Operation) State() State { return op.item.State() }

// Priority returns the admission priority.
func (op *Operation) Priority() int { return op.item.priority }

// IsCancelled reports whether Cancel has been called. Running actions may poll it
// at safe points; the run context is cancelled at the same moment.
func (op *Operation) IsCancelled() bool { return op.cancelled.Load() }

// Cancel requests cancellation. An operation that has not started running
// transitions directly to a terminal cancelled state without its action ever being
// invoked. A running operation only has its flag set and its context cancelled;
// the action is expected to notice and return early. Cancellation is never
// preemptive.
func (op *Operation) Cancel() {
	if !op.cancelled.CompareAndSwap(false, true) {
		return
	}
	op.cancelCtx()

	now := time.Now()
	if op.item.transition(StatePending, StateCancelled) ||
		op.item.transition(StateReady, StateCancelled) {
		op.item.complete(Result{Cancelled: true, FinishedAt: now})
		// A pending item held no admission slot; wake the queue so younger
		// items are not stuck behind the tombstone.
		op.mu.Lock()
		queue := op.item.queue
		submitted := op.submitted
		op.mu.Unlock()
		if submitted && queue != nil {
			queue.kick()
		}
	}
}

// ready reports whether every dependency has reached a terminal state.
func (op *Operation) ready() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.remaining == 0
}

// pendingFailure reports whether the operation should complete with a dependency
// failure instead of running.
func (op *Operation) pendingFailure() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.remaining == 0 && op.propagate && op.depErr != nil
}

func (op *Operation) failureError() error {
	op.mu.Lock()
	defer op.mu.Unlock()
	return fmt.Errorf("%w: %w", ErrDependencyFailed, op.depErr)
}

// markSubmitted binds the operation to its queue. Each operation may be submitted
// exactly once.
func (op *Operation) markSubmitted(q *Queue) error {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.submitted {
		return ErrOperationSubmitted
	}
	op.submitted = true
	op.item.queue = q
	if op.retry != nil {
		op.bo = op.retry.newBackOff()
	}
	return nil
}

// depSatisfied is called under the graph lock when one dependency finishes.
// It returns the queue to kick when the operation just became ready.
func (op *Operation) depSatisfied(res Result) (kick *Queue) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.remaining--
	if res.Err != nil && op.depErr == nil {
		op.depErr = res.Err
	}
	if op.remaining == 0 && op.submitted {
		return op.item.queue
	}
	return nil
}

// addPendingDep is called under the graph lock when a dependency edge commits and
// the dependency has not finished yet.
func (op *Operation) addPendingDep() {
	op.mu.Lock()
	op.remaining++
	op.mu.Unlock()
}

// noteFinishedDep is called under the graph lock when a dependency edge commits
// against an already finished dependency.
func (op *Operation) noteFinishedDep(res Result) {
	op.mu.Lock()
	if res.Err != nil && op.depErr == nil {
		op.depErr = res.Err
	}
	op.mu.Unlock()
}

// nextRetryDelay returns the backoff before the next attempt, or retry=false when
// the operation has no retry budget left.
func (op *Operation) nextRetryDelay() (delay time.Duration, retry bool) {
	if op.bo == nil {
		return 0, false
	}
	delay = op.bo.NextBackOff()
	if delay == backoff.Stop {
		return 0, false
	}
	return delay, true
}

// onFinished propagates the terminal result to dependents through the graph.
func (op *Operation) onFinished(res Result) {
	if op.graph != nil {
		op.graph.operationFinished(op, res)
	}
}

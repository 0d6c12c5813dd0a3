package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a WorkItem. Items only move forward:
// Pending -> Ready -> Running -> Finished, with Cancelled short-circuiting
// Pending/Ready straight to a terminal state without the action ever running.
type State int32

const (
	StatePending State = iota
	StateReady
	StateRunning
	StateCancelled
	StateFinished
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateCancelled:
		return "cancelled"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Result is the outcome of a WorkItem, written exactly once before the item's
// completion channel closes. Err is nil on success, an *ActionFault when the action
// panicked, ErrQueueClosed when the item was discarded by a non-drain shutdown, or
// a wrapped ErrDependencyFailed for operations that opted into failure propagation.
type Result struct {
	Err        error
	Cancelled  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// WorkItem is a single unit of schedulable work plus its lifecycle state. The queue
// owns the item until it is admitted; the executor owns it while it runs; the result
// is written back to the item record, never to shared external state.
type WorkItem struct {
	id        uuid.UUID
	name      string
	action    Action
	createdAt time.Time

	state     atomic.Int32
	completed atomic.Bool

	// readySeq is assigned by the executor on admission, for cross-queue FIFO
	// tie-breaking. Within a queue, pending slice position is the submission order.
	readySeq uint64
	priority int
	barrier  bool

	queue *Queue
	op    *Operation

	result     Result
	done       chan struct{}
	onComplete []func(Result)
}

func newWorkItem(name string, action Action) *WorkItem {
	return &WorkItem{
		id:        uuid.New(),
		name:      name,
		action:    action,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// ID returns the item's unique identifier.
func (w *WorkItem) ID() uuid.UUID { return w.id }

// State returns the item's current lifecycle state.
func (w *WorkItem) State() State { return State(w.state.Load()) }

func (w *WorkItem) transition(from, to State) bool {
	return w.state.CompareAndSwap(int32(from), int32(to))
}

// complete records the result and closes the done channel. It is idempotent: the
// first caller wins, later calls are no-ops. The result is written and the terminal
// state stored before the channel closes, so a waiter never observes a transient
// state between Running and Finished.
func (w *WorkItem) complete(res Result) bool {
	if !w.completed.CompareAndSwap(false, true) {
		return false
	}
	w.result = res
	if res.Cancelled && State(w.state.Load()) != StateRunning {
		w.state.Store(int32(StateCancelled))
	} else {
		w.state.Store(int32(StateFinished))
	}
	close(w.done)
	for _, fn := range w.onComplete {
		fn(res)
	}
	if w.op != nil {
		w.op.onFinished(res)
	}
	return true
}

// Handle is the awaitable completion signal returned by asynchronous submission.
type Handle struct {
	item *WorkItem
}

// ID returns the identifier of the underlying item.
func (h *Handle) ID() uuid.UUID { return h.item.id }

// State returns the current lifecycle state of the underlying item.
func (h *Handle) State() State { return h.item.State() }

// Done returns a channel that closes once the item reaches Finished or Cancelled.
func (h *Handle) Done() <-chan struct{} { return h.item.done }

// Result returns the item's result. ok is false until the item has completed.
func (h *Handle) Result() (res Result, ok bool) {
	select {
	case <-h.item.done:
		return h.item.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the item completes or ctx is done. The calling goroutine parks
// on the completion channel; it performs no other work in between.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.item.done:
		return h.item.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// QueueMode governs how many items a queue may have in flight at once.
type QueueMode int

const (
	// Serial admits at most one item at a time; completion order equals
	// submission order.
	Serial QueueMode = iota

	// Concurrent admits up to the executor's capacity without waiting for
	// prior completions; completion order is unconstrained.
	Concurrent
)

func (m QueueMode) String() string {
	switch m {
	case Serial:
		return "serial"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// Queue orders submitted items and applies the serial/concurrent admission policy.
// Queues never own worker goroutines; every queue borrows workers from the shared
// Executor. Each queue has its own mutex, so unrelated queues never serialize on a
// global critical section.
type Queue struct {
	label string
	mode  QueueMode
	exec  *Executor

	logger  Logger
	metrics Metrics

	mu              sync.Mutex
	pending         []*WorkItem
	inFlight        map[uuid.UUID]struct{}
	closed          bool
	barrierInFlight bool

	drained     chan struct{}
	drainedOnce sync.Once

	history executionHistory
}

func newQueue(label string, mode QueueMode, exec *Executor, logger Logger, metrics Metrics) *Queue {
	return &Queue{
		label:    label,
		mode:     mode,
		exec:     exec,
		logger:   logger,
		metrics:  metrics,
		inFlight: make(map[uuid.UUID]struct{}),
		drained:  make(chan struct{}),
		history:  newExecutionHistory(defaultHistoryCapacity),
	}
}

// Label returns the queue's identifier.
func (q *Queue) Label() string { return q.label }

// Mode returns the queue's admission mode.
func (q *Queue) Mode() QueueMode { return q.mode }

// PendingCount returns the number of items waiting for admission.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlightCount returns the number of items currently admitted to the executor.
func (q *Queue) InFlightCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// IsClosed reports whether the queue has been shut down.
func (q *Queue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) width() int {
	if q.mode == Serial {
		return 1
	}
	return q.exec.Capacity()
}

// enqueue appends the item in submission order and runs an admission pass.
func (q *Queue) enqueue(item *WorkItem) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.metrics.RecordItemRejected(q.label, "closed")
		return ErrQueueClosed
	}
	item.queue = q
	q.pending = append(q.pending, item)
	q.admitUnlock()
	return nil
}

// reenqueue puts a previously admitted item back at the tail of the queue, used by
// the retry path. The item keeps its identity and completion channel.
func (q *Queue) reenqueue(item *WorkItem) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		item.complete(Result{Err: ErrQueueClosed})
		return
	}
	item.state.Store(int32(StatePending))
	q.pending = append(q.pending, item)
	q.admitUnlock()
}

// kick re-runs admission; called when an operation in this queue becomes ready or
// is cancelled while still pending.
func (q *Queue) kick() {
	q.mu.Lock()
	q.admitUnlock()
}

// admitUnlock performs one admission pass and releases q.mu. Completions and
// executor handoffs happen after the unlock: completing an item can wake dependents
// that live on this same queue, and those callbacks take q.mu again.
func (q *Queue) admitUnlock() {
	admit, rejected := q.admitLocked()
	q.maybeDrainedLocked()
	q.mu.Unlock()

	for _, item := range rejected {
		item.complete(Result{Err: item.op.failureError()})
	}
	for _, item := range admit {
		q.exec.submit(item)
	}
}

// admitLocked moves admissible items out of pending, up to the queue's width.
// Returned admit items have been marked Ready and added to inFlight; rejected items
// are operations whose failed dependency propagates, to be completed by the caller.
func (q *Queue) admitLocked() (admit, rejected []*WorkItem) {
	for len(q.inFlight) < q.width() && !q.barrierInFlight {
		// Drop items that were completed while pending (cancelled operations) and
		// pull out operations whose dependency failure propagates.
		kept := q.pending[:0]
		for _, item := range q.pending {
			switch {
			case item.completed.Load():
				// Already terminal; nothing to schedule.
			case item.op != nil && item.op.pendingFailure():
				rejected = append(rejected, item)
			default:
				kept = append(kept, item)
			}
		}
		for i := len(kept); i < len(q.pending); i++ {
			q.pending[i] = nil
		}
		q.pending = kept

		idx := q.selectLocked()
		if idx < 0 {
			break
		}
		item := q.pending[idx]
		q.pending = append(q.pending[:idx], q.pending[idx+1:]...)

		if !item.transition(StatePending, StateReady) {
			// Lost a race with cancellation; the item is terminal.
			continue
		}
		q.inFlight[item.id] = struct{}{}
		if item.barrier {
			q.barrierInFlight = true
		}
		admit = append(admit, item)
	}
	q.metrics.RecordQueueDepth(q.label, len(q.pending))
	return admit, rejected
}

// selectLocked picks the next item to admit: the highest-priority ready item, FIFO
// within equal priority. Items never start ahead of an older barrier, and a barrier
// itself starts only once the queue has nothing in flight.
func (q *Queue) selectLocked() int {
	best := -1
	for i, item := range q.pending {
		if item.barrier {
			if best == -1 && i == 0 && len(q.inFlight) == 0 {
				return 0
			}
			break
		}
		if item.op != nil && !item.op.ready() {
			continue
		}
		if best == -1 || item.priority > q.pending[best].priority {
			best = i
		}
	}
	return best
}

// itemFinished releases the item's admission slot and admits successors. Called by
// the executor after the item completed, and by the retry path after the item gave
// up its slot.
func (q *Queue) itemFinished(item *WorkItem, record *ItemExecutionRecord) {
	q.mu.Lock()
	delete(q.inFlight, item.id)
	if item.barrier {
		q.barrierInFlight = false
	}
	if record != nil {
		q.history.Add(*record)
	}
	q.admitUnlock()
}

// Flush blocks until every item submitted before the call has reached a terminal
// state. It is implemented as a barrier item: the barrier is admitted only once the
// queue is otherwise empty, and nothing submitted after it starts before it runs.
func (q *Queue) Flush(ctx context.Context) error {
	item := newWorkItem("barrier", func(context.Context) {})
	item.barrier = true
	if err := q.enqueue(item); err != nil {
		return err
	}
	_, err := (&Handle{item: item}).Wait(ctx)
	return err
}

// Shutdown closes the queue. With drain it blocks until pending and in-flight items
// have emptied; without drain it discards pending items immediately, completing them
// with ErrQueueClosed so waiters unblock. Items already in flight always run to
// completion.
func (q *Queue) Shutdown(drain bool) {
	q.mu.Lock()
	alreadyClosed := q.closed
	q.closed = true
	var discarded []*WorkItem
	if !drain {
		discarded = q.pending
		q.pending = nil
	}
	q.maybeDrainedLocked()
	q.mu.Unlock()

	if !alreadyClosed {
		q.logger.Info("queue shutting down",
			F("queue", q.label), F("drain", drain), F("discarded", len(discarded)))
	}
	for _, item := range discarded {
		q.metrics.RecordItemRejected(q.label, "shutdown")
		item.complete(Result{Err: ErrQueueClosed})
	}
	if drain {
		<-q.drained
	}
}

func (q *Queue) maybeDrainedLocked() {
	if q.closed && len(q.pending) == 0 && len(q.inFlight) == 0 {
		q.drainedOnce.Do(func() { close(q.drained) })
	}
}

// Stats returns a point-in-time snapshot for pollers.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	stats := QueueStats{
		Label:    q.label,
		Mode:     q.mode,
		Pending:  len(q.pending),
		InFlight: len(q.inFlight),
		Closed:   q.closed,
	}
	q.mu.Unlock()
	if last, ok := q.history.Last(); ok {
		stats.LastItemName = last.Name
		stats.LastItemAt = last.FinishedAt
	}
	return stats
}

// RecentItems returns completed execution records, newest first.
func (q *Queue) RecentItems(limit int) []ItemExecutionRecord {
	return q.history.Recent(limit)
}

func (q *Queue) String() string {
	return fmt.Sprintf("queue(%s, %s)", q.label, q.mode)
}

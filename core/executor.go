package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Executor owns the bounded worker pool for the dispatcher's lifetime. Queues admit
// items into the executor's ready queue; any worker may pick up any queue's item.
// Queues reference the executor, they never own workers of their own.
type Executor struct {
	capacity int
	ready    *readyQueue
	signal   chan struct{}
	delay    *delayManager

	faults  FaultHandler
	metrics Metrics
	logger  Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	active    atomic.Int32
	running   bool
	runningMu sync.RWMutex
}

func newExecutor(capacity int, faults FaultHandler, metrics Metrics, logger Logger) *Executor {
	return &Executor{
		capacity: capacity,
		ready:    newReadyQueue(),
		signal:   make(chan struct{}, capacity*2),
		delay:    newDelayManager(),
		faults:   faults,
		metrics:  metrics,
		logger:   logger,
	}
}

// Capacity returns the size of the worker pool.
func (e *Executor) Capacity() int { return e.capacity }

// ActiveCount returns the number of items currently executing.
func (e *Executor) ActiveCount() int { return int(e.active.Load()) }

// ReadyCount returns the number of admitted items waiting for a worker.
func (e *Executor) ReadyCount() int { return e.ready.len() }

// DelayedCount returns the number of items waiting on a delay timer.
func (e *Executor) DelayedCount() int { return e.delay.count() }

// IsRunning reports whether the worker pool has been started and not yet stopped.
func (e *Executor) IsRunning() bool {
	e.runningMu.RLock()
	defer e.runningMu.RUnlock()
	return e.running
}

// Start launches the worker goroutines. Starting an already running executor is a
// no-op.
func (e *Executor) Start(ctx context.Context) {
	e.runningMu.Lock()
	defer e.runningMu.Unlock()
	if e.running {
		return
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.running = true

	for i := 0; i < e.capacity; i++ {
		e.wg.Add(1)
		go e.workerLoop(i)
	}
	e.logger.Info("executor started", F("workers", e.capacity))
}

// Stop cancels the workers and waits for them to exit. Items already executing run
// to completion (their context is cancelled, which is advisory); items still in the
// ready queue are dropped.
func (e *Executor) Stop() {
	e.runningMu.Lock()
	if !e.running {
		e.runningMu.Unlock()
		return
	}
	e.running = false
	e.runningMu.Unlock()

	e.delay.stop()
	e.cancel()
	e.wg.Wait()

	// Items admitted but never picked up would leave waiters parked forever;
	// complete them as closed and give their queues the slots back.
	for {
		item, ok := e.ready.pop()
		if !ok {
			break
		}
		item.complete(Result{Err: ErrQueueClosed})
		item.queue.itemFinished(item, nil)
	}
	e.logger.Info("executor stopped")
}

// submit hands an admitted item to the pool.
func (e *Executor) submit(item *WorkItem) {
	e.ready.push(item)
	select {
	case e.signal <- struct{}{}:
	default:
		// Signal channel full; a worker will find the item on its next pass.
	}
}

// getWork blocks until an item is ready or the pool is stopping.
func (e *Executor) getWork(stopCh <-chan struct{}) (*WorkItem, bool) {
	for {
		if item, ok := e.ready.pop(); ok {
			return item, true
		}
		select {
		case <-e.signal:
		case <-stopCh:
			return nil, false
		}
	}
}

func (e *Executor) workerLoop(id int) {
	defer e.wg.Done()
	stopCh := e.ctx.Done()

	for {
		item, ok := e.getWork(stopCh)
		if !ok {
			return
		}
		e.runItem(id, item)
	}
}

// runItem executes one admitted item: transition to Running, run the action under
// panic recovery, write the result back, and release the queue's admission slot.
// A fault is local to the item; it never crashes the worker or touches siblings.
func (e *Executor) runItem(workerID int, item *WorkItem) {
	queue := item.queue
	if !item.transition(StateReady, StateRunning) {
		// Cancelled between admission and pickup; the cancel path already
		// completed the item, only the slot needs releasing.
		queue.itemFinished(item, nil)
		return
	}

	e.active.Add(1)
	defer e.active.Add(-1)

	runCtx := context.WithValue(e.ctx, queueKey, queue)
	if item.op != nil {
		var cancelRun context.CancelFunc
		runCtx, cancelRun = context.WithCancel(runCtx)
		stop := context.AfterFunc(item.op.ctx, cancelRun)
		defer stop()
		defer cancelRun()
	}

	res := Result{StartedAt: time.Now()}
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				stack := debug.Stack()
				res.Err = &ActionFault{Panic: rec, Stack: stack}
				e.faults.HandleFault(runCtx, queue.label, workerID, rec, stack)
				e.metrics.RecordItemFault(queue.label)
			}
		}()
		item.action(runCtx)
	}()
	res.FinishedAt = time.Now()
	if item.op != nil && item.op.IsCancelled() {
		res.Cancelled = true
	}

	if res.Err != nil && !res.Cancelled && item.op != nil {
		if delay, retry := item.op.nextRetryDelay(); retry {
			e.logger.Debug("retrying faulted operation",
				F("queue", queue.label), F("item", item.id), F("delay", delay))
			queue.itemFinished(item, nil)
			e.delay.schedule(item, delay)
			return
		}
	}

	e.metrics.RecordItemDuration(queue.label, res.FinishedAt.Sub(res.StartedAt))
	item.complete(res)
	record := ItemExecutionRecord{
		ID:         item.id,
		Name:       item.name,
		Queue:      queue.label,
		Priority:   item.priority,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Duration:   res.FinishedAt.Sub(res.StartedAt),
		Faulted:    res.Err != nil,
		Cancelled:  res.Cancelled,
	}
	queue.itemFinished(item, &record)
}

// Stats returns a point-in-time snapshot of the pool.
func (e *Executor) Stats() PoolStats {
	return PoolStats{
		Workers: e.capacity,
		Ready:   e.ReadyCount(),
		Active:  e.ActiveCount(),
		Delayed: e.DelayedCount(),
		Running: e.IsRunning(),
	}
}

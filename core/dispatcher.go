package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher is the public entry point of the runtime. It owns the executor and
// the registered queues; queues borrow the executor's workers and never own
// threads of their own.
type Dispatcher struct {
	exec    *Executor
	logger  Logger
	metrics Metrics

	defaultMode QueueMode

	mu     sync.Mutex
	queues map[string]*Queue

	closed atomic.Bool
}

// NewDispatcher creates a dispatcher and starts its worker pool. A nil config gets
// all defaults (pool sized to the available hardware concurrency).
func NewDispatcher(cfg *Config) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		exec:        newExecutor(cfg.PoolSize, cfg.FaultHandler, cfg.Metrics, cfg.Logger),
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		defaultMode: cfg.DefaultQueueMode,
		queues:      make(map[string]*Queue),
	}
	d.exec.Start(context.Background())
	return d
}

// NewQueue creates and registers a queue. Labels are unique per dispatcher.
func (d *Dispatcher) NewQueue(label string, mode QueueMode) (*Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		return nil, ErrQueueClosed
	}
	if _, exists := d.queues[label]; exists {
		return nil, ErrQueueExists
	}
	q := newQueue(label, mode, d.exec, d.logger, d.metrics)
	d.queues[label] = q
	d.logger.Debug("queue registered", F("queue", label), F("mode", mode))
	return q, nil
}

// NewDefaultQueue creates a queue with the dispatcher's default mode.
func (d *Dispatcher) NewDefaultQueue(label string) (*Queue, error) {
	return d.NewQueue(label, d.defaultMode)
}

// Queue looks up a registered queue by label.
func (d *Dispatcher) Queue(label string) (*Queue, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[label]
	return q, ok
}

// SubmitAsync enqueues the action and returns immediately; the caller is never
// blocked. The optional onComplete callbacks run after the item reaches a terminal
// state, on the goroutine that completed it.
func (d *Dispatcher) SubmitAsync(q *Queue, action Action, onComplete ...func(Result)) (*Handle, error) {
	item := newWorkItem(resolveActionName(action, ""), action)
	item.onComplete = onComplete
	if err := q.enqueue(item); err != nil {
		return nil, err
	}
	return &Handle{item: item}, nil
}

// SubmitSync enqueues the action and blocks the calling goroutine until the item
// reaches Finished or Cancelled, then returns its result. The wait parks on the
// completion channel; there is no busy-waiting.
//
// A sync item submitted after async items on the same Serial queue observes queue
// ordering: it blocks until everything ahead of it has finished.
//
// Hazard (ErrDeadlockRisk): calling SubmitSync on a Serial queue from inside an
// action that same queue is currently executing will deadlock. The queue cannot
// admit the new item while the calling action holds its single slot. The runtime
// does not detect this; it is a documented caller responsibility.
func (d *Dispatcher) SubmitSync(q *Queue, action Action) (Result, error) {
	h, err := d.SubmitAsync(q, action)
	if err != nil {
		return Result{}, err
	}
	<-h.Done()
	res, _ := h.Result()
	return res, nil
}

// SubmitAfter enqueues the action once delay has elapsed. The returned handle
// completes when the item does. If the queue closes before the delay expires, the
// item completes with ErrQueueClosed.
func (d *Dispatcher) SubmitAfter(q *Queue, action Action, delay time.Duration) (*Handle, error) {
	if q.IsClosed() {
		return nil, ErrQueueClosed
	}
	item := newWorkItem(resolveActionName(action, ""), action)
	item.queue = q
	if delay <= 0 {
		if err := q.enqueue(item); err != nil {
			return nil, err
		}
		return &Handle{item: item}, nil
	}
	d.exec.delay.schedule(item, delay)
	return &Handle{item: item}, nil
}

// SubmitThen runs action on q and, if it finishes without fault or cancellation,
// submits reply on replyQueue. The returned handle tracks the first action.
func (d *Dispatcher) SubmitThen(q *Queue, action Action, replyQueue *Queue, reply Action) (*Handle, error) {
	return d.SubmitAsync(q, action, func(res Result) {
		if res.Err != nil || res.Cancelled {
			return
		}
		if _, err := d.SubmitAsync(replyQueue, reply); err != nil {
			d.logger.Warn("reply dropped", F("queue", replyQueue.Label()), F("error", err))
		}
	})
}

// SubmitOperation enqueues an operation built on a Graph. The operation is
// admitted only once all its dependencies have finished; each operation may be
// submitted exactly once.
func (d *Dispatcher) SubmitOperation(q *Queue, op *Operation) (*Handle, error) {
	if err := op.markSubmitted(q); err != nil {
		return nil, err
	}
	if err := q.enqueue(op.item); err != nil {
		return nil, err
	}
	return op.Handle(), nil
}

// SubmitGraph submits every operation of the graph to q in topological order and
// returns their handles in that order. It fails without submitting anything when
// the graph contains a cycle.
func (d *Dispatcher) SubmitGraph(q *Queue, g *Graph) ([]*Handle, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}
	handles := make([]*Handle, 0, len(order))
	for _, op := range order {
		h, err := d.SubmitOperation(q, op)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Stats returns a snapshot of the worker pool.
func (d *Dispatcher) Stats() PoolStats {
	return d.exec.Stats()
}

// QueueStats returns snapshots of all registered queues.
func (d *Dispatcher) QueueStats() []QueueStats {
	d.mu.Lock()
	queues := make([]*Queue, 0, len(d.queues))
	for _, q := range d.queues {
		queues = append(queues, q)
	}
	d.mu.Unlock()

	out := make([]QueueStats, 0, len(queues))
	for _, q := range queues {
		out = append(out, q.Stats())
	}
	return out
}

// Shutdown closes every queue and stops the worker pool. With drain it waits for
// all pending and in-flight items to finish first; without drain, pending items are
// discarded (completed with ErrQueueClosed) and only in-flight items run to
// completion. Submissions after Shutdown fail with ErrQueueClosed.
func (d *Dispatcher) Shutdown(drain bool) {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.logger.Info("dispatcher shutting down", F("drain", drain))

	d.mu.Lock()
	queues := make([]*Queue, 0, len(d.queues))
	for _, q := range d.queues {
		queues = append(queues, q)
	}
	d.mu.Unlock()

	var wg sync.WaitGroup
	for _, q := range queues {
		wg.Add(1)
		go func(q *Queue) {
			defer wg.Done()
			q.Shutdown(drain)
		}(q)
	}
	wg.Wait()

	d.exec.Stop()
}

// IsClosed reports whether Shutdown has been called.
func (d *Dispatcher) IsClosed() bool {
	return d.closed.Load()
}

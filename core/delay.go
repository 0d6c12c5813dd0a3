package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// delayedItem is a work item scheduled for a future enqueue, either a delayed
// submission or a faulted operation waiting out its retry backoff.
type delayedItem struct {
	runAt time.Time
	item  *WorkItem
	index int // heap bookkeeping
}

type delayedHeap []*delayedItem

func (h delayedHeap) Len() int           { return len(h) }
func (h delayedHeap) Less(i, j int) bool { return h[i].runAt.Before(h[j].runAt) }
func (h delayedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedHeap) Push(x any) {
	item := x.(*delayedItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // release the reference
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *delayedHeap) peek() *delayedItem {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// delayManager runs a single timer goroutine over a min-heap of run times. When an
// entry expires the item is re-enqueued on its queue, which applies the normal
// admission policy.
type delayManager struct {
	mu     sync.Mutex
	pq     delayedHeap
	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func newDelayManager() *delayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &delayManager{
		pq:     make(delayedHeap, 0),
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

// schedule enqueues the item on its queue once delay has elapsed. The item must
// already carry its target queue.
func (dm *delayManager) schedule(item *WorkItem, delay time.Duration) {
	dm.mu.Lock()
	if dm.ctx.Err() != nil {
		// The loop has exited; an entry pushed now would never fire and its
		// waiters would park forever.
		dm.mu.Unlock()
		item.complete(Result{Err: ErrQueueClosed})
		return
	}
	entry := &delayedItem{runAt: time.Now().Add(delay), item: item}
	heap.Push(&dm.pq, entry)
	front := entry.index == 0
	dm.mu.Unlock()

	if front {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

func (dm *delayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		next := dm.nextRun()
		if next == 0 {
			next = 1000 * time.Hour // empty heap, sleep until woken
		}
		timer.Reset(next)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.flushExpired()
		case <-dm.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// nextRun returns the wait until the earliest entry, or 0 when the heap is empty or
// the front entry has already expired.
func (dm *delayManager) nextRun() time.Duration {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	entry := dm.pq.peek()
	if entry == nil {
		return 0
	}
	now := time.Now()
	if entry.runAt.Before(now) {
		return time.Nanosecond
	}
	return entry.runAt.Sub(now)
}

func (dm *delayManager) flushExpired() {
	dm.mu.Lock()
	now := time.Now()
	var expired []*delayedItem
	for dm.pq.Len() > 0 {
		entry := dm.pq.peek()
		if entry.runAt.After(now) {
			break
		}
		heap.Pop(&dm.pq)
		expired = append(expired, entry)
	}
	dm.mu.Unlock()

	// Enqueue outside the lock; the queue takes its own mutex.
	for _, entry := range expired {
		entry.item.queue.reenqueue(entry.item)
	}
}

func (dm *delayManager) count() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}

// stop cancels the timer loop and completes every still-delayed item as closed so
// waiters unblock.
func (dm *delayManager) stop() {
	dm.cancel()

	dm.mu.Lock()
	pending := dm.pq
	dm.pq = make(delayedHeap, 0)
	heap.Init(&dm.pq)
	dm.mu.Unlock()

	for _, entry := range pending {
		entry.item.complete(Result{Err: ErrQueueClosed})
	}
}

package core

import (
	"container/heap"
	"sync"
)

const defaultReadyCap = 16

// readyHeap orders admitted items for the worker pool: highest priority first,
// lowest admission sequence first within a priority (stable FIFO).
type readyHeap []*WorkItem

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].readySeq < h[j].readySeq
}

func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) {
	*h = append(*h, x.(*WorkItem))
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // release the reference
	*h = old[0 : n-1]
	return item
}

// readyQueue is the executor's cross-queue ready set. Admission order across queues
// is not guaranteed; within one priority the heap preserves admission order.
type readyQueue struct {
	mu      sync.Mutex
	pq      readyHeap
	nextSeq uint64
}

func newReadyQueue() *readyQueue {
	return &readyQueue{pq: make(readyHeap, 0, defaultReadyCap)}
}

func (q *readyQueue) push(item *WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item.readySeq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.pq, item)
}

func (q *readyQueue) pop() (*WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pq) == 0 {
		return nil, false
	}
	return heap.Pop(&q.pq).(*WorkItem), true
}

func (q *readyQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pq)
}

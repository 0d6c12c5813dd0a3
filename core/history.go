package core

import (
	"reflect"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultHistoryCapacity = 100

// ItemExecutionRecord captures one completed item execution.
type ItemExecutionRecord struct {
	ID         uuid.UUID
	Name       string
	Queue      string
	Priority   int
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Faulted    bool
	Cancelled  bool
}

// executionHistory is a fixed-size ring of recent execution records.
type executionHistory struct {
	mu    sync.Mutex
	items []ItemExecutionRecord
	head  int
	count int
}

func newExecutionHistory(capacity int) executionHistory {
	if capacity < 1 {
		capacity = defaultHistoryCapacity
	}
	return executionHistory{items: make([]ItemExecutionRecord, capacity)}
}

func (h *executionHistory) Add(record ItemExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.items) == 0 {
		return
	}
	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Recent returns up to limit records, newest first.
func (h *executionHistory) Recent(limit int) []ItemExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}
	if limit <= 0 || limit > h.count {
		limit = h.count
	}
	out := make([]ItemExecutionRecord, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *executionHistory) Last() (ItemExecutionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return ItemExecutionRecord{}, false
	}
	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}

// resolveActionName derives a display name for an action from its function symbol
// when the caller did not supply one.
func resolveActionName(action Action, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if action == nil {
		return "anonymous"
	}
	v := reflect.ValueOf(action)
	if v.Kind() != reflect.Func {
		return "anonymous"
	}
	pc := v.Pointer()
	if pc == 0 {
		return "anonymous"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil || fn.Name() == "" {
		return "anonymous"
	}
	return fn.Name()
}

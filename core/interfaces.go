package core

import (
	"context"
	"runtime"
	"time"
)

// FaultHandler is called when an action panics during execution. Implementations
// must be safe for concurrent use; workers call them in parallel.
type FaultHandler interface {
	// HandleFault receives the recovered panic value and the stack trace captured
	// at the point of the panic. queueLabel names the queue the item belonged to;
	// workerID identifies the pool worker that ran it.
	HandleFault(ctx context.Context, queueLabel string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultFaultHandler logs faults through the configured Logger.
type DefaultFaultHandler struct {
	Logger Logger
}

func (h *DefaultFaultHandler) HandleFault(ctx context.Context, queueLabel string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("action fault",
		F("queue", queueLabel),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)))
}

// Metrics collects dispatch runtime measurements. Implementations can forward to
// monitoring systems; methods must be fast and non-blocking.
type Metrics interface {
	// RecordItemDuration records how long an item's action ran.
	RecordItemDuration(queueLabel string, duration time.Duration)

	// RecordItemFault records that an action panicked.
	RecordItemFault(queueLabel string)

	// RecordQueueDepth records the current number of pending items on a queue.
	RecordQueueDepth(queueLabel string, depth int)

	// RecordItemRejected records an enqueue refused by a closed queue or an item
	// discarded by a non-drain shutdown.
	RecordItemRejected(queueLabel string, reason string)
}

// NilMetrics is the no-op default.
type NilMetrics struct{}

func (NilMetrics) RecordItemDuration(string, time.Duration) {}
func (NilMetrics) RecordItemFault(string)                   {}
func (NilMetrics) RecordQueueDepth(string, int)             {}
func (NilMetrics) RecordItemRejected(string, string)        {}

// Config holds dispatcher construction options. All fields are optional; zero
// values fall back to defaults.
type Config struct {
	// PoolSize is the worker pool capacity. Defaults to runtime.NumCPU().
	PoolSize int

	// DefaultQueueMode is used by queue constructors that do not name a mode.
	DefaultQueueMode QueueMode

	// FaultHandler receives recovered action panics. Defaults to
	// DefaultFaultHandler backed by Logger.
	FaultHandler FaultHandler

	// Metrics receives runtime measurements. Defaults to NilMetrics.
	Metrics Metrics

	// Logger receives dispatcher lifecycle events. Defaults to DefaultLogger.
	Logger Logger
}

// DefaultConfig returns a config with all defaults applied.
func DefaultConfig() *Config {
	logger := NewDefaultLogger()
	return &Config{
		PoolSize:         runtime.NumCPU(),
		DefaultQueueMode: Serial,
		FaultHandler:     &DefaultFaultHandler{Logger: logger},
		Metrics:          NilMetrics{},
		Logger:           logger,
	}
}

func (c *Config) withDefaults() *Config {
	out := &Config{}
	if c != nil {
		*out = *c
	}
	if out.PoolSize < 1 {
		out.PoolSize = runtime.NumCPU()
	}
	if out.Logger == nil {
		out.Logger = NewDefaultLogger()
	}
	if out.FaultHandler == nil {
		out.FaultHandler = &DefaultFaultHandler{Logger: out.Logger}
	}
	if out.Metrics == nil {
		out.Metrics = NilMetrics{}
	}
	return out
}

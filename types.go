package dispatch

import "github.com/taskwell/go-dispatch/core"

// Re-export the core types so most users only import the dispatch package.

// Action is the unit of executable work.
type Action = core.Action

// Result is the recorded outcome of a completed item.
type Result = core.Result

// Handle is the awaitable completion signal for an asynchronous submission.
type Handle = core.Handle

// State is the lifecycle state of a work item.
type State = core.State

// Queue orders submissions and applies the serial/concurrent admission policy.
type Queue = core.Queue

// QueueMode selects the admission policy of a queue.
type QueueMode = core.QueueMode

// Dispatcher owns the queues and the shared worker pool.
type Dispatcher = core.Dispatcher

// Config holds dispatcher construction options.
type Config = core.Config

// Operation is a work item with dependencies, priority, and cancellation.
type Operation = core.Operation

// OperationOption configures an operation at construction.
type OperationOption = core.OperationOption

// Graph is the arena of operations and their acyclic dependency edges.
type Graph = core.Graph

// RetryPolicy controls re-execution of faulted operations.
type RetryPolicy = core.RetryPolicy

// ActionFault carries a panic recovered from a submitted action.
type ActionFault = core.ActionFault

// Observability types.
type (
	QueueStats          = core.QueueStats
	PoolStats           = core.PoolStats
	ItemExecutionRecord = core.ItemExecutionRecord
	Metrics             = core.Metrics
	FaultHandler        = core.FaultHandler
	Logger              = core.Logger
	Field               = core.Field
)

// Queue modes.
const (
	Serial     QueueMode = core.Serial
	Concurrent QueueMode = core.Concurrent
)

// Item lifecycle states.
const (
	StatePending   State = core.StatePending
	StateReady     State = core.StateReady
	StateRunning   State = core.StateRunning
	StateCancelled State = core.StateCancelled
	StateFinished  State = core.StateFinished
)

// Errors.
var (
	ErrQueueClosed        = core.ErrQueueClosed
	ErrQueueExists        = core.ErrQueueExists
	ErrCycleDetected      = core.ErrCycleDetected
	ErrUnknownOperation   = core.ErrUnknownOperation
	ErrOperationSubmitted = core.ErrOperationSubmitted
	ErrDependencyFailed   = core.ErrDependencyFailed
	ErrActionFault        = core.ErrActionFault
	ErrDeadlockRisk       = core.ErrDeadlockRisk
)

// Constructors and helpers re-exported from core.
var (
	DefaultConfig      = core.DefaultConfig
	NewGraph           = core.NewGraph
	DefaultRetryPolicy = core.DefaultRetryPolicy
	WithPriority       = core.WithPriority
	WithName           = core.WithName
	WithRetry          = core.WithRetry
	PropagateFailure   = core.PropagateFailure
	CurrentQueue       = core.CurrentQueue
	F                  = core.F
	NewNoOpLogger      = core.NewNoOpLogger
	NewDefaultLogger   = core.NewDefaultLogger
)

// New creates a dispatcher and starts its worker pool. Passing nil uses
// DefaultConfig.
func New(cfg *Config) *Dispatcher {
	return core.NewDispatcher(cfg)
}

package core

import (
	"errors"
	"fmt"
)

var (
	// Queue lifecycle errors.
	ErrQueueClosed = errors.New("dispatch: queue closed")
	ErrQueueExists = errors.New("dispatch: queue label already registered")

	// Dependency graph errors.
	ErrCycleDetected      = errors.New("dispatch: dependency edge would create a cycle")
	ErrUnknownOperation   = errors.New("dispatch: operation not part of this graph")
	ErrOperationSubmitted = errors.New("dispatch: operation already submitted")
	ErrDependencyFailed   = errors.New("dispatch: dependency finished with a fault")

	// ErrActionFault is the sentinel wrapped by every ActionFault, so callers can
	// match any recovered panic with errors.Is regardless of the panic value.
	ErrActionFault = errors.New("dispatch: action fault")

	// ErrDeadlockRisk is never returned at runtime. It documents the one hazard the
	// runtime does not detect: calling SubmitSync on a Serial queue from inside an
	// action that same queue is currently executing. The queue cannot admit the new
	// item while the running action occupies its single slot, and the running action
	// never returns because it is blocked on the new item. Avoiding this is a caller
	// responsibility.
	ErrDeadlockRisk = errors.New("dispatch: recursive SubmitSync on a serial queue deadlocks")
)

// ActionFault captures a panic raised by a submitted action. The fault is recorded
// on the item's result and never propagated to sibling items or the worker pool.
type ActionFault struct {
	Panic any
	Stack []byte
}

func (f *ActionFault) Error() string {
	return fmt.Sprintf("dispatch: action fault: %v", f.Panic)
}

func (f *ActionFault) Unwrap() error { return ErrActionFault }

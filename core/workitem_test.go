package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestWorkItem_TransitionCAS verifies lifecycle transitions
// Given: a fresh work item in the pending state
// When: transitions are attempted from matching and non-matching states
// Then: only the matching transition succeeds
func TestWorkItem_TransitionCAS(t *testing.T) {
	// Arrange
	item := newWorkItem("transition", func(ctx context.Context) {})

	// Act & Assert
	if item.State() != StatePending {
		t.Fatalf("initial state = %v, want pending", item.State())
	}
	if item.transition(StateReady, StateRunning) {
		t.Error("transition from a non-matching state succeeded")
	}
	if !item.transition(StatePending, StateReady) {
		t.Error("transition(Pending, Ready) failed")
	}
	if !item.transition(StateReady, StateRunning) {
		t.Error("transition(Ready, Running) failed")
	}
	if item.State() != StateRunning {
		t.Errorf("state = %v, want running", item.State())
	}
}

// TestWorkItem_CompleteIdempotent verifies first-writer-wins completion
// Given: a work item
// When: complete is called twice with different results
// Then: only the first result is recorded and the done channel closes once
func TestWorkItem_CompleteIdempotent(t *testing.T) {
	// Arrange
	item := newWorkItem("complete", func(ctx context.Context) {})
	firstErr := errors.New("first")

	// Act
	first := item.complete(Result{Err: firstErr})
	second := item.complete(Result{Err: errors.New("second")})

	// Assert
	if !first {
		t.Error("first complete returned false")
	}
	if second {
		t.Error("second complete returned true, want no-op")
	}
	h := &Handle{item: item}
	res, ok := h.Result()
	if !ok {
		t.Fatal("Result() not available after completion")
	}
	if !errors.Is(res.Err, firstErr) {
		t.Errorf("res.Err = %v, want the first result", res.Err)
	}
}

// TestWorkItem_CancelledResultShortCircuitsState verifies terminal state selection
// Given: a pending work item
// When: it completes with a cancelled result
// Then: its state is cancelled, not finished
func TestWorkItem_CancelledResultShortCircuitsState(t *testing.T) {
	// Arrange
	item := newWorkItem("cancelled", func(ctx context.Context) {})

	// Act
	item.complete(Result{Cancelled: true})

	// Assert
	if got := item.State(); got != StateCancelled {
		t.Errorf("state = %v, want cancelled", got)
	}
}

// TestHandle_ResultBeforeCompletion verifies the non-blocking result probe
// Given: an incomplete work item
// When: Result is called
// Then: it reports not-ok without blocking
func TestHandle_ResultBeforeCompletion(t *testing.T) {
	// Arrange
	item := newWorkItem("probe", func(ctx context.Context) {})
	h := &Handle{item: item}

	// Act
	_, ok := h.Result()

	// Assert
	if ok {
		t.Error("Result() ok = true before completion, want false")
	}
}

// TestHandle_WaitContextCancelled verifies bounded waits
// Given: an item that never completes
// When: Wait is called with a short timeout
// Then: Wait returns the context error
func TestHandle_WaitContextCancelled(t *testing.T) {
	// Arrange
	item := newWorkItem("stuck", func(ctx context.Context) {})
	h := &Handle{item: item}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Act
	_, err := h.Wait(ctx)

	// Assert
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

// TestState_String verifies state names
// Given: each lifecycle state
// When: String is called
// Then: the human-readable name is returned
func TestState_String(t *testing.T) {
	cases := map[State]string{
		StatePending:   "pending",
		StateReady:     "ready",
		StateRunning:   "running",
		StateCancelled: "cancelled",
		StateFinished:  "finished",
		State(99):      "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

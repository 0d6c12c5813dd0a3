package dispatch_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	dispatch "github.com/taskwell/go-dispatch"
)

// TestGlobal_PanicsWithoutInit verifies the uninitialized guard
// Given: no global dispatcher
// When: Global is called
// Then: it panics
func TestGlobal_PanicsWithoutInit(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Global() did not panic without Init")
		}
	}()
	dispatch.Global()
}

// TestInitAndShutdownGlobal verifies the global lifecycle
// Given: an initialized global dispatcher
// When: items are submitted and ShutdownGlobal is called
// Then: items run, a second Init is a no-op, and a fresh Init works after shutdown
func TestInitAndShutdownGlobal(t *testing.T) {
	// Arrange
	dispatch.Init(&dispatch.Config{PoolSize: 2, Logger: dispatch.NewNoOpLogger()})
	first := dispatch.Global()

	// A repeated Init keeps the existing dispatcher.
	dispatch.Init(&dispatch.Config{PoolSize: 8})
	if dispatch.Global() != first {
		t.Error("second Init replaced the global dispatcher")
	}

	q, err := first.NewQueue("global", dispatch.Serial)
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}

	var counter atomic.Int32

	// Act
	for i := 0; i < 5; i++ {
		if _, err := first.SubmitAsync(q, func(ctx context.Context) { counter.Add(1) }); err != nil {
			t.Fatalf("SubmitAsync failed: %v", err)
		}
	}
	dispatch.ShutdownGlobal(true)

	// Assert
	if got := counter.Load(); got != 5 {
		t.Errorf("executed = %d, want 5", got)
	}
	if !first.IsClosed() {
		t.Error("IsClosed() = false after ShutdownGlobal")
	}

	// A fresh Init after shutdown creates a new dispatcher.
	dispatch.Init(&dispatch.Config{PoolSize: 2, Logger: dispatch.NewNoOpLogger()})
	defer dispatch.ShutdownGlobal(true)
	if dispatch.Global() == first {
		t.Error("Init after ShutdownGlobal reused the closed dispatcher")
	}
}

// TestFacadeReexports verifies the one-import surface
// Given: only the root package imported
// When: queues, operations, and graphs are used through the aliases
// Then: the full workflow runs end to end
func TestFacadeReexports(t *testing.T) {
	// Arrange
	d := dispatch.New(&dispatch.Config{PoolSize: 2, Logger: dispatch.NewNoOpLogger()})
	defer d.Shutdown(true)

	q, err := d.NewQueue("facade", dispatch.Concurrent)
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}

	g := dispatch.NewGraph()
	var order atomic.Int32
	var firstAt, secondAt int32

	a := g.NewOperation(func(ctx context.Context) { firstAt = order.Add(1) },
		dispatch.WithName("first"), dispatch.WithPriority(1))
	b := g.NewOperation(func(ctx context.Context) { secondAt = order.Add(1) },
		dispatch.WithName("second"))
	if err := g.AddDependency(b, a); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}

	// Act
	handles, err := d.SubmitGraph(q, g)
	if err != nil {
		t.Fatalf("SubmitGraph failed: %v", err)
	}
	for _, h := range handles {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if _, err := h.Wait(ctx); err != nil {
			cancel()
			t.Fatalf("Wait failed: %v", err)
		}
		cancel()
	}

	// Assert
	if firstAt != 1 || secondAt != 2 {
		t.Errorf("execution order = (%d, %d), want (1, 2)", firstAt, secondAt)
	}
}

// Package dispatch provides a task-dispatch runtime modeled on serial and
// concurrent dispatch queues backed by one shared worker pool.
//
// Work is submitted to queues rather than run on goroutines the caller manages.
// A Serial queue runs one item at a time in submission order; a Concurrent queue
// lets up to the pool's capacity run simultaneously. All queues borrow workers
// from the dispatcher's executor, so creating a queue is cheap and queues never
// own threads.
//
// # Quick Start
//
//	d := dispatch.New(nil) // pool sized to available hardware concurrency
//	defer d.Shutdown(true)
//
//	q, _ := d.NewQueue("state", dispatch.Serial)
//
//	// Asynchronous: returns immediately with an awaitable handle.
//	h, _ := d.SubmitAsync(q, func(ctx context.Context) { /* ... */ })
//	<-h.Done()
//
//	// Synchronous: parks the caller until the item finishes.
//	res, _ := d.SubmitSync(q, func(ctx context.Context) { /* ... */ })
//
// # Operations
//
// Operations extend items with dependencies, priority, and advisory
// cancellation. They are built on a Graph, which rejects any dependency edge
// that would create a cycle:
//
//	g := dispatch.NewGraph()
//	a := g.NewOperation(loadIndex)
//	b := g.NewOperation(scan, dispatch.WithPriority(1))
//	_ = g.AddDependency(b, a) // b starts only after a finishes
//	handles, _ := d.SubmitGraph(q, g)
//
// # Hazards
//
// Calling SubmitSync on a Serial queue from inside an action that same queue is
// executing deadlocks: the queue cannot admit the new item while the calling
// action occupies its single slot. The runtime does not detect this at runtime;
// see ErrDeadlockRisk.
package dispatch

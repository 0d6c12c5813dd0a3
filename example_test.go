package dispatch_test

import (
	"context"
	"fmt"
	"time"

	dispatch "github.com/taskwell/go-dispatch"
)

// ExampleInit demonstrates the basic usage with only one import.
func ExampleInit() {
	// Initialize the global dispatcher
	dispatch.Init(&dispatch.Config{PoolSize: 2, Logger: dispatch.NewNoOpLogger()})
	defer dispatch.ShutdownGlobal(true)

	d := dispatch.Global()
	q, _ := d.NewQueue("example-serial", dispatch.Serial)

	done := make(chan struct{})

	// Serial queues run items one at a time, in submission order
	d.SubmitAsync(q, func(ctx context.Context) {
		fmt.Println("Item 1")
	})

	d.SubmitAsync(q, func(ctx context.Context) {
		fmt.Println("Item 2")
	})

	d.SubmitAsync(q, func(ctx context.Context) {
		fmt.Println("Item 3")
		close(done)
	})

	<-done
	time.Sleep(10 * time.Millisecond) // Allow output to flush

	// Output:
	// Item 1
	// Item 2
	// Item 3
}

// ExampleGraph demonstrates dependency-ordered operations.
func ExampleGraph() {
	d := dispatch.New(&dispatch.Config{PoolSize: 4, Logger: dispatch.NewNoOpLogger()})
	defer d.Shutdown(true)

	q, _ := d.NewQueue("pipeline", dispatch.Concurrent)

	g := dispatch.NewGraph()
	extract := g.NewOperation(func(ctx context.Context) {
		fmt.Println("extract")
	}, dispatch.WithName("extract"))
	transform := g.NewOperation(func(ctx context.Context) {
		fmt.Println("transform")
	}, dispatch.WithName("transform"))
	load := g.NewOperation(func(ctx context.Context) {
		fmt.Println("load")
	}, dispatch.WithName("load"))

	// transform waits for extract; load waits for transform
	g.AddDependency(transform, extract)
	g.AddDependency(load, transform)

	handles, _ := d.SubmitGraph(q, g)
	for _, h := range handles {
		<-h.Done()
	}
	time.Sleep(10 * time.Millisecond)

	// Output:
	// extract
	// transform
	// load
}

// ExampleDispatcher_SubmitSync demonstrates blocking submission.
func ExampleDispatcher_SubmitSync() {
	d := dispatch.New(&dispatch.Config{PoolSize: 2, Logger: dispatch.NewNoOpLogger()})
	defer d.Shutdown(true)

	q, _ := d.NewQueue("sync-example", dispatch.Serial)

	res, _ := d.SubmitSync(q, func(ctx context.Context) {
		fmt.Println("ran on the pool")
	})
	fmt.Println("error:", res.Err)

	// Output:
	// ran on the pool
	// error: <nil>
}

package core

import "time"

// QueueStats is a point-in-time snapshot of one queue.
type QueueStats struct {
	Label        string
	Mode         QueueMode
	Pending      int
	InFlight     int
	Closed       bool
	LastItemName string
	LastItemAt   time.Time
}

// PoolStats is a point-in-time snapshot of the executor.
type PoolStats struct {
	Workers int
	Ready   int
	Active  int
	Delayed int
	Running bool
}

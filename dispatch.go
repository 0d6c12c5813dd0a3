package dispatch

import "sync"

// Global dispatcher helper. Most applications want exactly one worker pool for
// the whole process; these helpers manage it as a singleton, the same way a
// process-wide thread pool is usually initialized once at startup.

var (
	globalDispatcher *Dispatcher
	globalMu         sync.Mutex
)

// Init initializes the global dispatcher. Calling Init again while a global
// dispatcher exists is a no-op.
func Init(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher != nil {
		return
	}
	globalDispatcher = New(cfg)
}

// Global returns the global dispatcher. It panics if Init has not been called.
func Global() *Dispatcher {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher == nil {
		panic("dispatch: global dispatcher not initialized, call dispatch.Init first")
	}
	return globalDispatcher
}

// ShutdownGlobal shuts the global dispatcher down and forgets it, so a later
// Init can create a fresh one. drain has the same meaning as Dispatcher.Shutdown.
func ShutdownGlobal(drain bool) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalDispatcher != nil {
		globalDispatcher.Shutdown(drain)
		globalDispatcher = nil
	}
}

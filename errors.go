package uthread

import "github.com/tjsail33/uthread/internal/scheduler"

// Sentinel errors returned once a Runtime's compile-time caps are
// reached. Caps default to 1000 and are configurable via WithMaxThreads,
// WithMaxMutexes and WithMaxConds.
var (
	ErrTooManyThreads = scheduler.ErrTooManyThreads
	ErrTooManyMutexes = scheduler.ErrTooManyMutexes
	ErrTooManyConds   = scheduler.ErrTooManyConds
	// ErrSchedulerStopped is returned once a Runtime's dispatch loop has
	// observed an empty ready queue and returned: the process-level
	// analogue of "the last user thread terminated" (§4.1); as an
	// embeddable library the host process keeps running after the
	// dispatch loop has returned.
	ErrSchedulerStopped = scheduler.ErrSchedulerStopped
)

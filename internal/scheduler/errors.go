package scheduler

import "errors"

var (
	// ErrTooManyThreads is returned by Create once the configured thread
	// cap has been reached.
	ErrTooManyThreads = errors.New("uthread: maximum number of threads reached")
	// ErrTooManyMutexes is returned by MutexInit once the configured
	// mutex cap has been reached.
	ErrTooManyMutexes = errors.New("uthread: maximum number of mutexes reached")
	// ErrTooManyConds is returned by CondInit once the configured
	// condition-variable cap has been reached.
	ErrTooManyConds = errors.New("uthread: maximum number of condition variables reached")
	// ErrSchedulerStopped is returned by Create, MutexInit and CondInit
	// once the dispatch loop has observed an empty ready queue and
	// returned (§4.1, "the process exits naturally when the last user
	// thread terminates"). An embedded Engine that reaches this state
	// cannot accept new work: its dispatch goroutine is gone.
	ErrSchedulerStopped = errors.New("uthread: scheduler has stopped")
)

// DeadlockInfo describes the state of the engine at the moment a deadlock
// was detected: advancing past a blocking action left no runnable thread.
type DeadlockInfo struct {
	// BlockedThreadID is the id of the thread whose blocking call
	// triggered the detection.
	BlockedThreadID int
	// Action names the scheduler action that was being serviced.
	Action string
}

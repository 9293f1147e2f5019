// Package uthread is a cooperative, timer-preemptible user-level
// threading library: pthread-flavored thread creation, yielding,
// joining, mutexes and condition variables, scheduled by a single
// dispatch loop rather than by the Go runtime's own goroutine
// scheduler.
//
// A Runtime owns one ready queue, one set of mutexes and one set of
// condition variables. Package-level functions (Create, Yield, Exit,
// Join, Checkpoint, NewMutex, NewCond) operate on a lazily constructed
// default Runtime for programs that only need one; construct a Runtime
// directly with New for anything else.
package uthread

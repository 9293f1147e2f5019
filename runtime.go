package uthread

import (
	"sync"

	"github.com/tjsail33/uthread/internal/scheduler"
)

// ThreadFunc is the entry point signature for a spawned thread: it
// receives the argument passed to Create and its return value becomes
// the exit code observed by Join.
type ThreadFunc = scheduler.ThreadFunc

// Runtime is one independent scheduler: its own ready queue, mutexes
// and condition variables. Most programs only need the package-level
// default Runtime (see Create, Yield, ...); construct one directly with
// New to run more than one isolated scheduler in the same process.
type Runtime struct {
	eng *scheduler.Engine
}

// New builds a Runtime. The dispatch loop and preemption timer are not
// started until the first call on it (creating a thread, mutex or
// condition variable, or any other Runtime, Mutex or Cond method).
func New(opts ...Option) *Runtime {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runtime{eng: scheduler.NewEngine(cfg.toEngineConfig())}
}

var (
	defaultOnce sync.Once
	defaultRT   *Runtime
)

func defaultRuntime() *Runtime {
	defaultOnce.Do(func() { defaultRT = New() })
	return defaultRT
}

// Create spawns a new thread running fn(arg) and returns its id.
func (r *Runtime) Create(fn ThreadFunc, arg any) (int, error) {
	return r.eng.Create(fn, arg)
}

// Yield gives up the CPU to the next ready thread.
func (r *Runtime) Yield() { r.eng.Yield() }

// Exit terminates the calling thread with the given exit code. It never
// returns to its caller.
func (r *Runtime) Exit(code int) { r.eng.Exit(code) }

// Join blocks until the thread identified by id has terminated and
// returns its exit code.
func (r *Runtime) Join(id int) int { return r.eng.Join(id) }

// Checkpoint yields if a preemption tick is pending. Long-running,
// purely computational threads should call this periodically.
func (r *Runtime) Checkpoint() { r.eng.Checkpoint() }

// Create spawns a new thread on the default Runtime.
func Create(fn ThreadFunc, arg any) (int, error) { return defaultRuntime().Create(fn, arg) }

// Yield gives up the CPU on the default Runtime.
func Yield() { defaultRuntime().Yield() }

// Exit terminates the calling thread on the default Runtime.
func Exit(code int) { defaultRuntime().Exit(code) }

// Join blocks on the default Runtime until id has terminated.
func Join(id int) int { return defaultRuntime().Join(id) }

// Checkpoint yields on the default Runtime if a preemption tick is
// pending.
func Checkpoint() { defaultRuntime().Checkpoint() }

package scheduler

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// preemptController arms a real interval timer and watches for the
// resulting SIGALRM, setting Engine.preemptPending rather than acting on
// it directly. A Go goroutine running application code cannot be forced
// off the CPU mid-instruction the way the original's handle_SIGALRM
// forces a pthread_yield from inside the signal handler itself; this is
// the one place the port narrows the original's guarantees. See
// SPEC_FULL.md §4.7.
type preemptController struct {
	interval time.Duration

	disabled atomic.Bool
}

func newPreemptController(interval time.Duration) *preemptController {
	return &preemptController{interval: interval}
}

// Arm installs the SIGALRM handler and starts the real-time interval
// timer. Safe to call once per Engine.
func (p *preemptController) Arm(e *Engine) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGALRM)

	nsec := p.interval.Nanoseconds()
	it := unix.Itimerval{
		Interval: unix.NsecToTimeval(nsec),
		Value:    unix.NsecToTimeval(nsec),
	}
	_ = unix.Setitimer(unix.ITIMER_REAL, &it, nil)

	go func() {
		for range sigCh {
			if !p.disabled.Load() {
				e.preemptPending.Store(true)
			}
		}
	}()
}

// disable/enable bracket every engine entry point, mirroring the
// original's alarm(0) ... alarm(1) pairing around each pthread_* call.
// Unlike the original, this does not actually stop the timer (Setitimer
// syscalls on every API call would be wasteful); it only tells the
// watcher goroutine to stop latching new ticks while a thread is mid
// API-call, which is the part of the original's behavior that actually
// mattered (no preemption request can be observed to land inside a
// critical section).
func (p *preemptController) disable() { p.disabled.Store(true) }
func (p *preemptController) enable()  { p.disabled.Store(false) }

package scheduler

import (
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type action int

const (
	actionYield action = iota
	actionExit
	actionJoin
	actionCondWait
	actionCondSignal
	actionCondBroadcast
	actionMutexUnlock
	actionMutexLockWait
)

func (a action) String() string {
	switch a {
	case actionYield:
		return "yield"
	case actionExit:
		return "exit"
	case actionJoin:
		return "join"
	case actionCondWait:
		return "cond-wait"
	case actionCondSignal:
		return "cond-signal"
	case actionCondBroadcast:
		return "cond-broadcast"
	case actionMutexUnlock:
		return "mutex-unlock-wake"
	case actionMutexLockWait:
		return "mutex-lock-wait"
	default:
		return "unknown"
	}
}

// request is a single handoff from a running thread to the scheduler
// goroutine. It is constructed on the calling thread's own goroutine
// (safe because only the current ready-queue head ever constructs one),
// handed to the engine over toSched, and never touched again by the
// caller until its own resume channel fires.
type request struct {
	thread  *Thread
	kind    action
	joinID  int
	condID  int
	mutexID int
}

// Config configures an Engine. See uthread.Config for the public,
// documented surface; this is the internal mirror consumed by NewEngine.
type Config struct {
	MaxThreads      int
	MaxMutexes      int
	MaxConds        int
	PreemptInterval time.Duration
	Logger          *logrus.Logger
	OnDeadlock      func(DeadlockInfo)
}

// Engine is the scheduler: ready queue, wait sets, join lists and the
// dispatch loop that moves threads between them. All of its state is
// only ever touched from the goroutine that currently "owns" the ready
// queue head, or from the single dispatch goroutine while a request is
// in flight — never concurrently, by construction of the channel
// handoff protocol.
type Engine struct {
	startOnce sync.Once
	started   bool
	stopped   bool
	// stoppedFlag mirrors stopped for readers outside the dispatch
	// goroutine (the API layer, on whichever goroutine currently holds
	// the ready-queue head); stopped itself is only ever touched from
	// within run().
	stoppedFlag atomic.Bool

	head, tail *Thread
	size       int

	nextThreadID int
	maxThreads   int
	threads      map[int]*Thread
	returnValues map[int]int

	nextMutexID int
	maxMutexes  int
	mutexLocked []bool
	mutexSets   []waitFIFO

	nextCondID int
	maxConds   int
	condSets   []waitFIFO

	toSched chan *request

	preemptPending atomic.Bool
	preempt        *preemptController

	logger     *logrus.Logger
	onDeadlock func(DeadlockInfo)
}

// NewEngine builds an Engine from cfg. The dispatch goroutine and
// preemption timer are not started until the first real API call
// (EnsureStarted), mirroring the original library's lazy
// schedularCreated check at the top of every entry point.
func NewEngine(cfg Config) *Engine {
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = 1000
	}
	if cfg.MaxMutexes <= 0 {
		cfg.MaxMutexes = 1000
	}
	if cfg.MaxConds <= 0 {
		cfg.MaxConds = 1000
	}
	if cfg.PreemptInterval <= 0 {
		cfg.PreemptInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Engine{
		maxThreads:   cfg.MaxThreads,
		maxMutexes:   cfg.MaxMutexes,
		maxConds:     cfg.MaxConds,
		threads:      make(map[int]*Thread),
		returnValues: make(map[int]int),
		mutexLocked:  make([]bool, cfg.MaxMutexes),
		mutexSets:    make([]waitFIFO, cfg.MaxMutexes),
		condSets:     make([]waitFIFO, cfg.MaxConds),
		toSched:      make(chan *request),
		logger:       cfg.Logger,
		onDeadlock:   cfg.OnDeadlock,
		preempt:      newPreemptController(cfg.PreemptInterval),
	}
}

// EnsureStarted lazily builds the synthetic TCB for the calling
// (main) goroutine, starts the dispatch loop and arms the preemption
// timer. Safe to call repeatedly; only the first call has any effect.
func (e *Engine) EnsureStarted() {
	e.startOnce.Do(func() {
		main := newThread(e.nextThreadID)
		e.nextThreadID++
		e.threads[main.ID] = main
		e.enqueueReady(main)
		go e.run()
		e.preempt.Arm(e)
		e.started = true
	})
}

func (e *Engine) disablePreempt() { e.preempt.disable() }
func (e *Engine) enablePreempt()  { e.preempt.enable() }

// run is the dispatch loop: the one goroutine that moves threads between
// the ready queue, wait sets and join lists. The only ready-queue changes
// made elsewhere are EnsureStarted and Create appending a new thread at
// the tail from the calling goroutine.
func (e *Engine) run() {
	for req := range e.toSched {
		switch req.kind {
		case actionYield:
			e.doYield(req.thread)
		case actionExit:
			e.doExit(req)
		case actionJoin:
			e.doJoin(req)
		case actionCondWait:
			e.doCondWait(req)
		case actionCondSignal:
			e.doCondSignal(req)
		case actionCondBroadcast:
			e.doCondBroadcast(req)
		case actionMutexUnlock:
			e.doMutexUnlock(req)
		case actionMutexLockWait:
			e.doMutexLockWait(req)
		}
		if e.stopped {
			return
		}
	}
}

// switchTo hands control to t by unblocking the goroutine parked on its
// resume channel. t must be non-nil; callers that might advance onto an
// empty ready queue must check for deadlock before calling this.
func (e *Engine) switchTo(t *Thread) {
	t.state = StateRunning
	t.resume <- struct{}{}
}

func (e *Engine) fatalDeadlock(blocked *Thread, act action) {
	e.logger.WithFields(logrus.Fields{
		"thread_id": blocked.ID,
		"action":    act.String(),
	}).Error("uthread: deadlock detected, no runnable thread remains")
	info := DeadlockInfo{BlockedThreadID: blocked.ID, Action: act.String()}
	if e.onDeadlock != nil {
		e.onDeadlock(info)
		return
	}
	os.Exit(1)
}

// --- action handlers, run exclusively on the dispatch goroutine ---

func (e *Engine) doYield(cur *Thread) {
	if e.size > 1 {
		e.dequeueReadyHead()
		e.enqueueReady(cur)
	}
	e.switchTo(e.head)
}

func (e *Engine) doExit(req *request) {
	cur := req.thread
	code := cur.exitCode
	e.returnValues[cur.ID] = code
	cur.state = StateTerminated

	j := cur.joinHead
	for j != nil {
		next := j.waitNext
		j.waitNext = nil
		j.joinResult = code
		e.enqueueReady(j)
		j = next
	}
	cur.joinHead, cur.joinTail = nil, nil

	e.dequeueReadyHead()
	delete(e.threads, cur.ID)

	if e.head == nil {
		e.stopped = true
		e.stoppedFlag.Store(true)
		return
	}
	e.switchTo(e.head)
}

func (e *Engine) findTarget(id int) *Thread {
	if t := e.searchReady(e.head, id); t != nil {
		return t
	}
	for i := range e.condSets {
		if t := e.searchWaitChain(e.condSets[i].head, id); t != nil {
			return t
		}
	}
	for i := range e.mutexSets {
		if t := e.searchWaitChain(e.mutexSets[i].head, id); t != nil {
			return t
		}
	}
	return nil
}

func (e *Engine) searchReady(n *Thread, id int) *Thread {
	for ; n != nil; n = n.rqNext {
		if n.ID == id {
			return n
		}
		if t := e.searchWaitChain(n.joinHead, id); t != nil {
			return t
		}
	}
	return nil
}

func (e *Engine) searchWaitChain(n *Thread, id int) *Thread {
	for ; n != nil; n = n.waitNext {
		if n.ID == id {
			return n
		}
		if t := e.searchWaitChain(n.joinHead, id); t != nil {
			return t
		}
	}
	return nil
}

func (e *Engine) doJoin(req *request) {
	cur := req.thread
	target := e.findTarget(req.joinID)
	if target == nil {
		cur.joinResult = e.returnValues[req.joinID]
		e.switchTo(cur)
		return
	}
	e.dequeueReadyHead()
	appendJoiner(target, cur)
	if e.head == nil {
		e.fatalDeadlock(cur, actionJoin)
		return
	}
	e.switchTo(e.head)
}

func (e *Engine) condWaitSet(id int) *waitFIFO  { return &e.condSets[id] }
func (e *Engine) mutexWaitSet(id int) *waitFIFO { return &e.mutexSets[id] }

func (e *Engine) doCondWait(req *request) {
	cur := req.thread
	wq := e.condWaitSet(req.condID)
	e.dequeueReadyHead()
	cur.state = StateWaitingCond
	wq.push(cur)
	if e.head == nil {
		e.fatalDeadlock(cur, actionCondWait)
		return
	}
	e.switchTo(e.head)
}

func (e *Engine) doCondSignal(req *request) {
	wq := e.condWaitSet(req.condID)
	if t := wq.pop(); t != nil {
		e.enqueueReady(t)
	}
	e.switchTo(req.thread)
}

func (e *Engine) doCondBroadcast(req *request) {
	wq := e.condWaitSet(req.condID)
	for {
		t := wq.pop()
		if t == nil {
			break
		}
		e.enqueueReady(t)
	}
	e.switchTo(req.thread)
}

// doMutexUnlock implements the direct hand-off interpretation: if a
// waiter is dequeued it inherits ownership of the lock without the
// locked flag ever toggling; the flag is only cleared when the wait set
// is empty. See DESIGN.md, "Mutex unlock direct hand-off".
func (e *Engine) doMutexUnlock(req *request) {
	wq := e.mutexWaitSet(req.mutexID)
	if t := wq.pop(); t != nil {
		e.enqueueReady(t)
	} else {
		e.mutexLocked[req.mutexID] = false
	}
	e.switchTo(req.thread)
}

func (e *Engine) doMutexLockWait(req *request) {
	cur := req.thread
	wq := e.mutexWaitSet(req.mutexID)
	e.dequeueReadyHead()
	cur.state = StateWaitingMutex
	wq.push(cur)
	if e.head == nil {
		e.fatalDeadlock(cur, actionMutexLockWait)
		return
	}
	e.switchTo(e.head)
}

// --- public entry points, run on whichever goroutine is currently head ---

// Create spawns a new thread running entry(arg) and returns its id.
func (e *Engine) Create(entry ThreadFunc, arg any) (int, error) {
	e.EnsureStarted()
	if e.stoppedFlag.Load() {
		return 0, ErrSchedulerStopped
	}
	e.disablePreempt()
	defer e.enablePreempt()

	if e.size >= e.maxThreads {
		return 0, ErrTooManyThreads
	}
	t := newThread(e.nextThreadID)
	e.nextThreadID++
	e.threads[t.ID] = t
	e.enqueueReady(t)
	go e.runThread(t, entry, arg)
	return t.ID, nil
}

func (e *Engine) runThread(t *Thread, entry ThreadFunc, arg any) {
	<-t.resume
	e.enablePreempt()
	code := entry(arg)
	e.exitCurrent(code)
}

// Yield gives up the CPU to the next ready thread.
func (e *Engine) Yield() {
	e.EnsureStarted()
	e.disablePreempt()
	defer e.enablePreempt()

	cur := e.head
	e.toSched <- &request{thread: cur, kind: actionYield}
	<-cur.resume
}

// Exit terminates the calling thread with the given exit code. Like
// pthread_exit, it never returns to its caller.
func (e *Engine) Exit(code int) {
	e.EnsureStarted()
	e.disablePreempt()
	e.exitCurrent(code)
	runtime.Goexit()
}

func (e *Engine) exitCurrent(code int) {
	cur := e.head
	cur.exitCode = code
	e.toSched <- &request{thread: cur, kind: actionExit}
}

// Join blocks until the thread identified by id has terminated and
// returns its exit code. Joining an id that never existed or has
// already terminated returns immediately with its stored exit code (or
// the zero value if none was ever recorded).
func (e *Engine) Join(id int) int {
	e.EnsureStarted()
	if e.stoppedFlag.Load() {
		return e.returnValues[id]
	}
	e.disablePreempt()
	defer e.enablePreempt()

	cur := e.head
	e.toSched <- &request{thread: cur, kind: actionJoin, joinID: id}
	<-cur.resume
	return cur.joinResult
}

// Checkpoint yields if a preemption tick has arrived since the last
// Checkpoint that consumed one; no other call clears or consults the
// pending flag. Long-running, purely computational
// threads should call this periodically; see SPEC_FULL.md §4.7.
func (e *Engine) Checkpoint() {
	e.EnsureStarted()
	if e.preemptPending.CompareAndSwap(true, false) {
		e.Yield()
	}
}

// MutexInit allocates a new mutex and returns its id.
func (e *Engine) MutexInit() (int, error) {
	e.EnsureStarted()
	if e.stoppedFlag.Load() {
		return 0, ErrSchedulerStopped
	}
	e.disablePreempt()
	defer e.enablePreempt()

	if e.nextMutexID >= e.maxMutexes {
		return 0, ErrTooManyMutexes
	}
	id := e.nextMutexID
	e.nextMutexID++
	e.mutexLocked[id] = false
	return id, nil
}

// MutexLock acquires the mutex identified by id, blocking if it is
// already held.
func (e *Engine) MutexLock(id int) error {
	e.EnsureStarted()
	e.disablePreempt()
	defer e.enablePreempt()
	e.lockMutexInternal(id)
	return nil
}

// MutexUnlock releases the mutex identified by id, waking one waiter if
// any are queued (direct hand-off).
func (e *Engine) MutexUnlock(id int) error {
	e.EnsureStarted()
	e.disablePreempt()
	defer e.enablePreempt()
	e.unlockMutexInternal(id)
	return nil
}

func (e *Engine) lockMutexInternal(id int) {
	if !e.mutexLocked[id] {
		e.mutexLocked[id] = true
		return
	}
	cur := e.head
	e.toSched <- &request{thread: cur, kind: actionMutexLockWait, mutexID: id}
	<-cur.resume
}

func (e *Engine) unlockMutexInternal(id int) {
	cur := e.head
	e.toSched <- &request{thread: cur, kind: actionMutexUnlock, mutexID: id}
	<-cur.resume
}

// CondInit allocates a new condition variable and returns its id.
func (e *Engine) CondInit() (int, error) {
	e.EnsureStarted()
	if e.stoppedFlag.Load() {
		return 0, ErrSchedulerStopped
	}
	e.disablePreempt()
	defer e.enablePreempt()

	if e.nextCondID >= e.maxConds {
		return 0, ErrTooManyConds
	}
	id := e.nextCondID
	e.nextCondID++
	return id, nil
}

// CondWait releases mutexID, blocks on condID until signaled, then
// reacquires mutexID before returning.
func (e *Engine) CondWait(condID, mutexID int) error {
	e.EnsureStarted()
	e.disablePreempt()
	defer e.enablePreempt()

	e.unlockMutexInternal(mutexID)

	cur := e.head
	e.toSched <- &request{thread: cur, kind: actionCondWait, condID: condID}
	<-cur.resume

	e.lockMutexInternal(mutexID)
	return nil
}

// CondSignal wakes one thread waiting on condID, if any.
func (e *Engine) CondSignal(condID int) error {
	e.EnsureStarted()
	e.disablePreempt()
	defer e.enablePreempt()

	cur := e.head
	e.toSched <- &request{thread: cur, kind: actionCondSignal, condID: condID}
	<-cur.resume
	return nil
}

// CondBroadcast wakes every thread waiting on condID.
func (e *Engine) CondBroadcast(condID int) error {
	e.EnsureStarted()
	e.disablePreempt()
	defer e.enablePreempt()

	cur := e.head
	e.toSched <- &request{thread: cur, kind: actionCondBroadcast, condID: condID}
	<-cur.resume
	return nil
}

// ReadyCount reports how many threads currently sit in the ready queue.
// Exposed for tests and diagnostics.
func (e *Engine) ReadyCount() int { return e.size }

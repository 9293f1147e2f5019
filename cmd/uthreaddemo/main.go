// Command uthreaddemo runs the scheduling scenarios used to validate the
// uthread package and prints their trace output.
package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/urfave/cli/v2"

	"github.com/tjsail33/uthread"
)

// trace is a concurrency-safe append-only log used by every demo
// scenario; appends happen one-at-a-time by construction (only the
// scheduler's current head thread ever runs) but the mutex keeps this
// demo binary honest if that invariant is ever violated by a bug.
type trace struct {
	mu    sync.Mutex
	lines []string
}

func (t *trace) add(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

func (t *trace) dump() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range t.lines {
		fmt.Println(l)
	}
}

func main() {
	app := &cli.App{
		Name:  "uthreaddemo",
		Usage: "run uthread scheduling scenarios",
		Commands: []*cli.Command{
			scenarioCommand("yield-order", "two threads interleaved by explicit yields", scenarioYieldOrder),
			scenarioCommand("join", "a thread joining on another's exit code", scenarioJoin),
			scenarioCommand("mutex", "mutual exclusion over a shared counter", scenarioMutex),
			scenarioCommand("cond", "producer/consumer over a condition variable", scenarioCond),
			scenarioCommand("broadcast", "waking every waiter on a condition variable", scenarioBroadcast),
			scenarioCommand("cap", "exhausting the configured thread cap", scenarioCap),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func scenarioCommand(name, usage string, fn func(*trace)) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(ctx *cli.Context) error {
			tr := &trace{}
			fn(tr)
			tr.dump()
			return nil
		},
	}
}

// scenarioYieldOrder mirrors the original library's own smoke test: two
// threads print, yield, print again, then exit with distinct codes that
// main joins on in creation order.
func scenarioYieldOrder(tr *trace) {
	rt := uthread.New()
	tr.add("Starting...")

	first, _ := rt.Create(func(arg any) int {
		tr.add("First message")
		rt.Yield()
		tr.add("Third message")
		rt.Exit(1)
		return 0
	}, nil)

	second, _ := rt.Create(func(arg any) int {
		tr.add("Second message")
		rt.Yield()
		tr.add("Fourth message")
		rt.Exit(5)
		return 0
	}, nil)

	tr.add("first exited with %d", rt.Join(first))
	tr.add("second exited with %d", rt.Join(second))
}

func scenarioJoin(tr *trace) {
	rt := uthread.New()
	worker, _ := rt.Create(func(arg any) int {
		tr.add("worker running")
		rt.Yield()
		tr.add("worker done")
		return 42
	}, nil)
	code := rt.Join(worker)
	tr.add("joined worker, exit code %d", code)
}

func scenarioMutex(tr *trace) {
	rt := uthread.New()
	m, _ := rt.NewMutex()
	counter := 0

	var ids []int
	for i := 0; i < 3; i++ {
		id, _ := rt.Create(func(arg any) int {
			for j := 0; j < 5; j++ {
				m.Lock()
				counter++
				tr.add("thread %v bumped counter to %d", arg, counter)
				m.Unlock()
				rt.Yield()
			}
			return 0
		}, i)
		ids = append(ids, id)
	}
	for _, id := range ids {
		rt.Join(id)
	}
	tr.add("final counter = %d", counter)
}

func scenarioCond(tr *trace) {
	rt := uthread.New()
	m, _ := rt.NewMutex()
	c, _ := rt.NewCond()
	ready := false

	consumer, _ := rt.Create(func(arg any) int {
		m.Lock()
		for !ready {
			tr.add("consumer waiting")
			c.Wait(m)
		}
		tr.add("consumer woke, ready=%v", ready)
		m.Unlock()
		return 0
	}, nil)

	rt.Create(func(arg any) int {
		rt.Yield()
		m.Lock()
		ready = true
		tr.add("producer set ready")
		c.Signal()
		m.Unlock()
		return 0
	}, nil)

	rt.Join(consumer)
}

func scenarioBroadcast(tr *trace) {
	rt := uthread.New()
	m, _ := rt.NewMutex()
	c, _ := rt.NewCond()
	done := false

	var waiters []int
	for i := 0; i < 3; i++ {
		id, _ := rt.Create(func(arg any) int {
			m.Lock()
			for !done {
				c.Wait(m)
			}
			tr.add("waiter %v woken by broadcast", arg)
			m.Unlock()
			return 0
		}, i)
		waiters = append(waiters, id)
	}

	rt.Create(func(arg any) int {
		rt.Yield()
		m.Lock()
		done = true
		c.Broadcast()
		m.Unlock()
		return 0
	}, nil)

	for _, id := range waiters {
		rt.Join(id)
	}
}

func scenarioCap(tr *trace) {
	rt := uthread.New(uthread.WithMaxThreads(2))
	var created []int
	var failedAt int
	for i := 0; i < 4; i++ {
		id, err := rt.Create(func(arg any) int { return 0 }, i)
		if err != nil {
			failedAt = i
			tr.add("create #%d failed: %v", i, err)
			break
		}
		created = append(created, id)
	}
	sort.Ints(created)
	tr.add("created %d threads before hitting the cap at attempt %d", len(created), failedAt)
	for _, id := range created {
		rt.Join(id)
	}
}

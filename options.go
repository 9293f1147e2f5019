package uthread

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tjsail33/uthread/internal/scheduler"
)

// DeadlockInfo describes the state of the runtime at the moment a
// deadlock was detected.
type DeadlockInfo = scheduler.DeadlockInfo

// Config holds Runtime construction options. Use the With* functions
// below with New rather than constructing a Config directly.
type Config struct {
	maxThreads      int
	maxMutexes      int
	maxConds        int
	preemptInterval time.Duration
	logger          *logrus.Logger
	onDeadlock      func(DeadlockInfo)
}

func defaultConfig() Config {
	return Config{
		maxThreads:      1000,
		maxMutexes:      1000,
		maxConds:        1000,
		preemptInterval: time.Second,
		logger:          logrus.StandardLogger(),
	}
}

func (c Config) toEngineConfig() scheduler.Config {
	return scheduler.Config{
		MaxThreads:      c.maxThreads,
		MaxMutexes:      c.maxMutexes,
		MaxConds:        c.maxConds,
		PreemptInterval: c.preemptInterval,
		Logger:          c.logger,
		OnDeadlock:      c.onDeadlock,
	}
}

// Option configures a Runtime built with New.
type Option func(*Config)

// WithMaxThreads overrides the maximum number of threads in the ready
// queue, including the calling "main" thread (default 1000). Create fails
// once that many are queued; threads blocked on a mutex, condition
// variable or join are not counted.
func WithMaxThreads(n int) Option {
	return func(c *Config) { c.maxThreads = n }
}

// WithMaxMutexes overrides the maximum number of mutexes that can ever
// be created (default 1000; ids are never recycled).
func WithMaxMutexes(n int) Option {
	return func(c *Config) { c.maxMutexes = n }
}

// WithMaxConds overrides the maximum number of condition variables that
// can ever be created (default 1000; ids are never recycled).
func WithMaxConds(n int) Option {
	return func(c *Config) { c.maxConds = n }
}

// WithPreemptInterval overrides the round-robin preemption tick
// (default 1s). See Checkpoint for why this is advisory rather than a
// hard interruption guarantee.
func WithPreemptInterval(d time.Duration) Option {
	return func(c *Config) { c.preemptInterval = d }
}

// WithLogger overrides the logger used for scheduler diagnostics
// (default logrus.StandardLogger()).
func WithLogger(l *logrus.Logger) Option {
	return func(c *Config) { c.logger = l }
}

// WithDeadlockHandler overrides what happens when the scheduler detects
// that no thread remains runnable while one is blocking. By default the
// runtime logs the condition and calls os.Exit(1), matching the
// original library's treatment of deadlock as fatal; embedding programs
// and tests that cannot tolerate a hard process exit should supply
// their own handler.
func WithDeadlockHandler(f func(DeadlockInfo)) Option {
	return func(c *Config) { c.onDeadlock = f }
}

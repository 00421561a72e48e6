// Package shutdown implements the process-wide interrupt station: a single
// guard condition and sleep condition variable shared by every executor and
// every sleep_for call in the process.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/wayfarer-robotics/rclgo/internal/xlog"
)

// GuardCondition is the middleware-facing handle included in every
// executor's wait-set. Triggering it wakes any blocked
// wait immediately; Clear resets it once the wake has been observed.
// Modeled as a closable-channel-backed condition rather than reusing
// lib/ipc's generic ClosableChannel directly, since a guard condition is
// triggered many times over its lifetime and ClosableChannel.Close is a
// one-shot operation.
type GuardCondition struct {
	mu      sync.Mutex
	ch      chan struct{}
	trigger chan struct{}
}

// NewGuardCondition builds an untriggered guard condition.
func NewGuardCondition() *GuardCondition {
	return &GuardCondition{trigger: make(chan struct{})}
}

// Trigger wakes every current and future waiter until Clear is called.
func (g *GuardCondition) Trigger() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.trigger:
		// already triggered
	default:
		close(g.trigger)
	}
}

// Clear resets the guard condition so a future wait blocks again.
func (g *GuardCondition) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.trigger:
		g.trigger = make(chan struct{})
	default:
	}
}

// Wait returns a channel that is closed once Trigger has been called.
func (g *GuardCondition) Wait() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.trigger
}

// Station is the process-wide shutdown object:
// a guard condition every engine includes in its wait-set,
// an atomic interrupted flag, and a signal-installed status. Default()
// returns the process-wide Station; New builds independent ones.
// init(argv) is modeled as Init.
type Station struct {
	interrupted    atomic.Bool
	signalInstalled atomic.Bool
	guard           *GuardCondition
	sleepCond       *GuardCondition
	logger          xlog.Logger

	mu    sync.Mutex
	sigCh chan os.Signal
}

var (
	defaultOnce    sync.Once
	defaultStation *Station
)

// Default returns the process-wide Station, constructing it on first use.
func Default() *Station {
	defaultOnce.Do(func() {
		defaultStation = newStation(xlog.Nop())
	})
	return defaultStation
}

// New builds an independent Station, distinct from the Default singleton
// (e.g. one per test case); most callers want Default instead.
func New(logger xlog.Logger) *Station {
	return newStation(logger)
}

func newStation(logger xlog.Logger) *Station {
	if logger == nil {
		logger = xlog.Nop()
	}
	return &Station{
		guard:     NewGuardCondition(),
		sleepCond: NewGuardCondition(),
		logger:    logger,
	}
}

// GuardConditionHandle is the handle every executor's wait-set must
// include.
func (s *Station) GuardConditionHandle() *GuardCondition { return s.guard }

// SleepConditionHandle is the condition variable sleep_for waits on.
func (s *Station) SleepConditionHandle() *GuardCondition { return s.sleepCond }

// Init subscribes this station to SIGINT through os/signal.Notify and
// shuts it down on receipt. Other Notify subscribers in the process still
// receive the signal; a handler installed outside the Go runtime is not
// called. argv is accepted for
// interface parity with init(argc, argv) conventions but this core
// defines no middleware-specific arguments to consume from it.
func (s *Station) Init(argv []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signalInstalled.Load() {
		return
	}
	s.sigCh = make(chan os.Signal, 1)
	signal.Notify(s.sigCh, syscall.SIGINT)
	s.signalInstalled.Store(true)
	go func() {
		for range s.sigCh {
			s.logger.Info("received SIGINT, shutting down")
			s.Shutdown()
		}
	}()
}

// Ok returns true while the station has not been signalled.
func (s *Station) Ok() bool { return !s.interrupted.Load() }

// Shutdown behaves identically to receiving SIGINT: it flips the
// interrupted flag, triggers the guard condition so every waiting
// executor wakes, and notifies the sleep condition variable so every
// blocked sleep_for returns early. Idempotent; never reset.
func (s *Station) Shutdown() {
	if !s.interrupted.CompareAndSwap(false, true) {
		return
	}
	s.guard.Trigger()
	s.sleepCond.Trigger()
}

// reset is a test-only helper to get a fresh, unsignalled Station without
// going through the process-global Default singleton or installing real
// OS signal handlers.
func reset() *Station {
	return newStation(xlog.Nop())
}

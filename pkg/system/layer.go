// Package system provides the stack lock and the timer service shared by the
// session, exchange and interaction model layers.
//
// All protocol state is mutated with the Layer lock held. Transport receive
// goroutines and timer callbacks take the lock before calling into the
// stack; application code wraps its calls in WithLock.
package system

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
)

// Config configures a Layer.
type Config struct {
	// Clock drives timers. Nil selects the wall clock.
	Clock clock.Clock

	LoggerFactory logging.LoggerFactory
}

// Layer owns the stack lock and schedules timers whose callbacks run with
// the lock held.
type Layer struct {
	mu    sync.Mutex
	clock clock.Clock
	log   logging.LeveledLogger
}

// NewLayer creates a system layer.
func NewLayer(config Config) *Layer {
	l := &Layer{clock: config.Clock}
	if l.clock == nil {
		l.clock = clock.New()
	}
	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("system")
	}
	return l
}

// Lock acquires the stack lock.
func (l *Layer) Lock() { l.mu.Lock() }

// Unlock releases the stack lock.
func (l *Layer) Unlock() { l.mu.Unlock() }

// TryLock acquires the stack lock only if it is free. Callers that must not
// block, such as UI refreshes, skip their update when it returns false.
func (l *Layer) TryLock() bool { return l.mu.TryLock() }

// WithLock runs fn with the stack lock held and returns its error.
func (l *Layer) WithLock(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

// Clock returns the clock timers are scheduled on.
func (l *Layer) Clock() clock.Clock { return l.clock }

// Now is shorthand for Clock().Now().
func (l *Layer) Now() time.Time { return l.clock.Now() }

// Timer is a one-shot timer started by StartTimer.
type Timer struct {
	layer *Layer
	t     *clock.Timer
	done  bool // fired or cancelled; guarded by the stack lock
}

// StartTimer arms a one-shot timer. fn runs with the stack lock held unless
// the timer is cancelled first. Must be called with the lock held.
func (l *Layer) StartTimer(d time.Duration, fn func()) *Timer {
	tm := &Timer{layer: l}
	tm.t = l.clock.AfterFunc(d, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if tm.done {
			return
		}
		tm.done = true
		if l.log != nil {
			l.log.Tracef("timer fired after %v", d)
		}
		fn()
	})
	return tm
}

// CancelTimer stops t. It is a no-op for nil or already finished timers.
// Must be called with the lock held.
func (l *Layer) CancelTimer(t *Timer) {
	if t == nil {
		return
	}
	t.Cancel()
}

// Cancel stops the timer. A callback already waiting for the stack lock
// observes the cancellation and does not run. Must be called with the lock
// held.
func (t *Timer) Cancel() {
	if t.done {
		return
	}
	t.done = true
	t.t.Stop()
}

// Active reports whether the timer is still pending. Must be called with the
// lock held.
func (t *Timer) Active() bool { return !t.done }

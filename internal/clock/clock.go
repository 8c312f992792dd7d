// Package clock abstracts wall-clock time so every timer in the client
// (stream debounce, session tick, end-of-session fallback) can be driven
// deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Timer is a scheduled single-shot callback that can be stopped.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired or stopped.
	Stop() bool
}

// Clock supplies the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f after d elapses. f may run on another goroutine
	// with the real clock.
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the wall-clock implementation.
type Real struct{}

// New returns the wall-clock Clock.
func New() Clock { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{time.AfterFunc(d, f)}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

// Deferred is a cancellable deferred action with cancel-on-supersede
// semantics: arming always cancels the previously armed run first, so at
// most one invocation is ever outstanding. Arm and Cancel are safe to
// call from different goroutines (transport read loop, UI, timer).
type Deferred struct {
	clk Clock

	mu    sync.Mutex
	timer Timer
}

// NewDeferred creates a deferred action bound to clk.
func NewDeferred(clk Clock) *Deferred {
	return &Deferred{clk: clk}
}

// Arm schedules f after d, cancelling any previously armed action.
func (a *Deferred) Arm(d time.Duration, f func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelLocked()
	a.timer = a.clk.AfterFunc(d, f)
}

// Cancel stops the armed action, if any. Safe to call repeatedly.
func (a *Deferred) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelLocked()
}

func (a *Deferred) cancelLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

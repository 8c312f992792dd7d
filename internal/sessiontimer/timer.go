// Package sessiontimer counts down the per-session time budget and
// raises one-time escalations as the remaining time crosses the warning
// and danger thresholds.
package sessiontimer

import (
	"fmt"
	"sync"
	"time"

	"github.com/joss/agentdeck/internal/clock"
)

const (
	// Budget is the full session allowance granted by the server.
	Budget = 5 * time.Hour
	// WarningThreshold is where the countdown turns amber.
	WarningThreshold = 30 * time.Minute
	// DangerThreshold is where the countdown turns red.
	DangerThreshold = 10 * time.Minute

	tickInterval = time.Second
)

// Level classifies how much budget is left.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelDanger
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelDanger:
		return "danger"
	default:
		return "normal"
	}
}

// Timer drives the client-side countdown. The server owns the real
// budget; Start and Sync keep the local view aligned with what the
// server reports.
type Timer struct {
	mu        sync.Mutex
	clk       clock.Clock
	tick      clock.Timer
	remaining time.Duration
	running   bool
	warned    bool
	dangered  bool

	onTick   func(remaining time.Duration)
	onLevel  func(level Level, remaining time.Duration)
	onExpire func()
}

func New(clk clock.Clock) *Timer {
	return &Timer{clk: clk}
}

// OnTick registers the per-second display callback.
func (t *Timer) OnTick(f func(remaining time.Duration)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = f
}

// OnLevelChange registers the escalation callback. It fires at most once
// per level per run.
func (t *Timer) OnLevelChange(f func(level Level, remaining time.Duration)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLevel = f
}

// OnExpire registers the callback for the budget reaching zero.
func (t *Timer) OnExpire(f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = f
}

// Start begins counting down from remaining, or from the full Budget
// when remaining is zero or negative. Escalation flags reset so a fresh
// run can warn again.
func (t *Timer) Start(remaining time.Duration) {
	t.mu.Lock()
	if t.tick != nil {
		t.tick.Stop()
	}
	if remaining <= 0 {
		remaining = Budget
	}
	t.remaining = remaining
	t.running = true
	t.warned = false
	t.dangered = false
	t.tick = t.clk.AfterFunc(tickInterval, t.step)
	t.mu.Unlock()
}

// Sync adjusts the countdown to a server-reported value without
// resetting escalation flags; crossing callbacks still fire if the new
// value lands past a threshold.
func (t *Timer) Sync(remaining time.Duration) {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.remaining = remaining
	t.mu.Unlock()
	t.escalate()
}

// Stop halts the countdown and clears remaining time and escalation
// state.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tick != nil {
		t.tick.Stop()
		t.tick = nil
	}
	t.running = false
	t.remaining = 0
	t.warned = false
	t.dangered = false
}

// Running reports whether the countdown is active.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Remaining returns the current countdown value.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Level classifies the current remaining time.
func (t *Timer) Level() Level {
	t.mu.Lock()
	defer t.mu.Unlock()
	return levelFor(t.remaining)
}

func levelFor(remaining time.Duration) Level {
	switch {
	case remaining <= DangerThreshold:
		return LevelDanger
	case remaining <= WarningThreshold:
		return LevelWarning
	default:
		return LevelNormal
	}
}

func (t *Timer) step() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.remaining -= tickInterval
	remaining := t.remaining
	onTick := t.onTick

	if remaining <= 0 {
		t.running = false
		t.tick = nil
		onExpire := t.onExpire
		t.mu.Unlock()
		if onTick != nil {
			onTick(0)
		}
		if onExpire != nil {
			onExpire()
		}
		return
	}

	t.tick = t.clk.AfterFunc(tickInterval, t.step)
	t.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	t.escalate()
}

func (t *Timer) escalate() {
	t.mu.Lock()
	remaining := t.remaining
	var fire func(Level, time.Duration)
	var level Level

	switch {
	case remaining <= DangerThreshold && !t.dangered:
		t.dangered = true
		t.warned = true
		fire = t.onLevel
		level = LevelDanger
	case remaining <= WarningThreshold && !t.warned:
		t.warned = true
		fire = t.onLevel
		level = LevelWarning
	}
	t.mu.Unlock()

	if fire != nil {
		fire(level, remaining)
	}
}

// FormatRemaining renders a countdown as H:MM:SS, dropping the hour when
// it is zero.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

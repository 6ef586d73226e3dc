package dashboard

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts timer scheduling so liveness can be tested with a
// fake clock instead of real timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// RealClock schedules on the runtime timer wheel.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc schedules f after d.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// TimeoutSource supplies the global sensor timeout.
// Implemented by settings.TimeoutCache.
type TimeoutSource interface {
	SensorTimeout(ctx context.Context) time.Duration
}

// StaticTimeout is a fixed TimeoutSource for tests and fallbacks.
type StaticTimeout time.Duration

// SensorTimeout returns the fixed duration.
func (s StaticTimeout) SensorTimeout(context.Context) time.Duration {
	return time.Duration(s)
}

// Tracker runs the per-device online/offline state machine.
// Every device starts offline; a matching message drives it online and
// (re)schedules an offline timer for the current sensor timeout. When
// the timer fires without a further message, the onOffline callback
// runs. Timers are ephemeral and never persisted.
//
// A timeout change does not reschedule timers already pending; it only
// applies to timers scheduled afterwards. Accepted drift, not a bug.
//
// All methods are safe for concurrent use.
type Tracker struct {
	clock     Clock
	timeouts  TimeoutSource
	onOffline func(deviceID string)

	mu     sync.Mutex
	timers map[string]Timer
}

// NewTracker creates a tracker. onOffline is invoked outside the
// tracker's lock when a device's silence window elapses; callers must
// re-check device existence there, since expiry can race removal.
func NewTracker(clock Clock, timeouts TimeoutSource, onOffline func(deviceID string)) *Tracker {
	return &Tracker{
		clock:     clock,
		timeouts:  timeouts,
		onOffline: onOffline,
		timers:    make(map[string]Timer),
	}
}

// Touch marks device activity: it cancels any pending offline timer for
// the device and schedules a fresh one for the current timeout.
func (t *Tracker) Touch(ctx context.Context, deviceID string) {
	timeout := t.timeouts.SensorTimeout(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.timers[deviceID]; ok {
		old.Stop()
	}

	var tm Timer
	tm = t.clock.AfterFunc(timeout, func() {
		t.mu.Lock()
		// A newer Touch or a Cancel supersedes this timer.
		if t.timers[deviceID] != tm {
			t.mu.Unlock()
			return
		}
		delete(t.timers, deviceID)
		t.mu.Unlock()

		t.onOffline(deviceID)
	})
	t.timers[deviceID] = tm
}

// Cancel stops and discards the pending timer for a device.
// Mandatory before device removal so a stale timer callback cannot
// touch a deleted device's state.
func (t *Tracker) Cancel(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tm, ok := t.timers[deviceID]; ok {
		tm.Stop()
		delete(t.timers, deviceID)
	}
}

// CancelAll stops every pending timer.
func (t *Tracker) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, tm := range t.timers {
		tm.Stop()
		delete(t.timers, id)
	}
}

// Pending returns the number of armed timers.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

package dashboard

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// fakeClock is a manually advanced clock for deterministic timer tests.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	f       func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasArmed := !t.stopped
	t.stopped = true
	return wasArmed
}

// Advance moves the clock forward and fires due timers outside the lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)

	var due []*fakeTimer
	remaining := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.when.After(c.now):
			t.stopped = true
			due = append(due, t)
		default:
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// fakeRepo is an in-memory ConfigRepository. Snapshots round-trip
// through JSON so stored state is independent of the caller's.
type fakeRepo struct {
	mu        sync.Mutex
	saved     map[string][]byte
	saveErr   error
	saveCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{saved: make(map[string][]byte)}
}

func (r *fakeRepo) Load(_ context.Context, userID string) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, ok := r.saved[userID]
	if !ok {
		return nil, ErrConfigNotFound
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *fakeRepo) Save(_ context.Context, userID string, snap *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saveCalls++
	if r.saveErr != nil {
		return r.saveErr
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	r.saved[userID] = raw
	return nil
}

func (r *fakeRepo) seed(userID string, snap *Snapshot) {
	raw, _ := json.Marshal(snap)
	r.mu.Lock()
	r.saved[userID] = raw
	r.mu.Unlock()
}

func (r *fakeRepo) setSaveErr(err error) {
	r.mu.Lock()
	r.saveErr = err
	r.mu.Unlock()
}

func (r *fakeRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveCalls
}

// fakeTransport records subscriptions and publishes.
type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	subscribed   []string
	unsubscribed []string
	published    []publishedMessage
}

type publishedMessage struct {
	topic   string
	payload []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connected: true}
}

func (t *fakeTransport) Publish(topic string, payload []byte, _ byte, _ bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.published = append(t.published, publishedMessage{topic: topic, payload: payload})
	return nil
}

func (t *fakeTransport) Subscribe(topic string, _ byte, _ func(string, []byte) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribed = append(t.subscribed, topic)
	return nil
}

func (t *fakeTransport) Unsubscribe(topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unsubscribed = append(t.unsubscribed, topic)
	return nil
}

func (t *fakeTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) setConnected(connected bool) {
	t.mu.Lock()
	t.connected = connected
	t.mu.Unlock()
}

func (t *fakeTransport) publishCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.published)
}

func (t *fakeTransport) hasSubscription(topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.subscribed {
		if s == topic {
			return true
		}
	}
	return false
}

// fakeTimeout is a mutable TimeoutSource.
type fakeTimeout struct {
	mu sync.Mutex
	d  time.Duration
}

func (f *fakeTimeout) SensorTimeout(context.Context) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.d
}

func (f *fakeTimeout) set(d time.Duration) {
	f.mu.Lock()
	f.d = d
	f.mu.Unlock()
}

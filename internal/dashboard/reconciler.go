package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// recentMessageLimit bounds the unmatched-message buffer feeding
// auto-detection.
const recentMessageLimit = 100

// eventBufferSize is the per-subscriber event channel depth. Slow
// consumers drop events rather than blocking message processing.
const eventBufferSize = 64

// Transport is the slice of the MQTT client the engine drives.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Telemetry receives device state points. Implemented by the InfluxDB
// client; writes are async and best-effort.
type Telemetry interface {
	WriteDeviceMetric(deviceID string, measurement string, value float64)
	WriteDeviceStatus(deviceID string, topic string, online bool)
}

// EventType classifies dashboard state-change events.
type EventType string

// Event types streamed to dashboard sessions.
const (
	EventDeviceUpdated EventType = "device_updated"
	EventDeviceOffline EventType = "device_offline"
	EventDeviceAdded   EventType = "device_added"
	EventDeviceRemoved EventType = "device_removed"
)

// Event is one dashboard state change, streamed over the websocket.
type Event struct {
	Type     EventType `json:"type"`
	DeviceID string    `json:"deviceId,omitempty"`
	Device   *Device   `json:"device,omitempty"`
	At       time.Time `json:"at"`
}

// Engine is the reconciliation loop for one user's dashboard: the
// single consumer of the message stream. It matches incoming topics to
// devices, applies payloads, drives liveness, buffers unmatched traffic
// for auto-detection, and publishes control commands.
type Engine struct {
	userID    string
	store     *Store
	matcher   *Matcher
	tracker   *Tracker
	transport Transport
	telemetry Telemetry
	clock     Clock
	logger    Logger
	qos       byte

	recent *messageBuffer

	subMu       sync.Mutex
	subscribers map[chan Event]struct{}
	closed      bool
}

// NewEngine assembles the matcher, store, and tracker for one user.
// Pass nil clock for real timers.
func NewEngine(userID string, repo ConfigRepository, timeouts TimeoutSource, transport Transport, clock Clock) *Engine {
	if clock == nil {
		clock = RealClock{}
	}

	e := &Engine{
		userID:      userID,
		transport:   transport,
		clock:       clock,
		logger:      noopLogger{},
		recent:      newMessageBuffer(recentMessageLimit),
		subscribers: make(map[chan Event]struct{}),
	}
	e.matcher = NewMatcher()
	e.store = NewStore(userID, repo, e.matcher, clock)
	e.tracker = NewTracker(clock, timeouts, e.deviceExpired)
	e.store.BindTracker(e.tracker)
	e.store.SetUnsubscribe(e.unsubscribeTopic)
	return e
}

// SetLogger sets the logger for the engine and its components.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
	e.store.SetLogger(logger)
	e.matcher.SetLogger(logger)
}

// SetTelemetry wires an optional telemetry sink for device points.
func (e *Engine) SetTelemetry(t Telemetry) {
	e.telemetry = t
}

// SetQoS sets the QoS used for subscriptions and control publishes.
func (e *Engine) SetQoS(qos byte) {
	e.qos = qos
}

// Store exposes the device store for query and mutation endpoints.
func (e *Engine) Store() *Store {
	return e.store
}

// Start loads the persisted dashboard and subscribes to the message
// stream if the transport is connected.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Load(ctx); err != nil {
		return fmt.Errorf("starting engine for %s: %w", e.userID, err)
	}
	e.SubscribeTopics()
	return nil
}

// SubscribeTopics (re-)subscribes to the catch-all filter plus each
// known device's topic. Duplicate subscriptions are safe no-ops, so
// this is idempotent and suitable for reconnect callbacks. Failures
// are logged, not fatal; the catch-all usually still covers delivery.
func (e *Engine) SubscribeTopics() {
	if !e.transport.IsConnected() {
		return
	}

	if err := e.transport.Subscribe("#", e.qos, e.HandleMessage); err != nil {
		e.logger.Warn("catch-all subscribe failed", "user_id", e.userID, "error", err)
	}
	for _, d := range e.store.Devices() {
		if d.Topic == "" {
			continue
		}
		if err := e.transport.Subscribe(d.Topic, e.qos, e.HandleMessage); err != nil {
			e.logger.Warn("device subscribe failed",
				"user_id", e.userID, "topic", d.Topic, "error", err)
		}
	}
}

// HandleMessage processes one incoming MQTT message.
//
// Command topics are ignored outright. A matched message replaces the
// device's data wholesale and re-arms its offline timer; an unmatched
// one lands in the bounded recent buffer for the classifier and causes
// no state mutation.
func (e *Engine) HandleMessage(topic string, payload []byte) error {
	if IsCommandTopic(topic) {
		return nil
	}

	now := e.clock.Now()
	data := ParsePayload(payload)

	device, ok := e.store.ApplyMessage(topic, data, now)
	if !ok {
		e.recent.Add(Message{Topic: topic, Payload: string(payload), ReceivedAt: now})
		return nil
	}

	e.tracker.Touch(context.Background(), device.ID)
	e.emit(Event{Type: EventDeviceUpdated, DeviceID: device.ID, Device: device, At: now})

	if e.telemetry != nil {
		e.telemetry.WriteDeviceStatus(device.ID, device.Topic, true)
		for key, v := range device.Data {
			if v.Kind == KindNumber {
				e.telemetry.WriteDeviceMetric(device.ID, key, v.Num)
			}
		}
	}
	return nil
}

// AddDevice creates a device, subscribes its topic, and announces it.
func (e *Engine) AddDevice(ctx context.Context, input AddDeviceInput) (*Device, error) {
	device, err := e.store.AddDevice(ctx, input)
	if err != nil {
		return nil, err
	}

	if e.transport.IsConnected() {
		if err := e.transport.Subscribe(device.Topic, e.qos, e.HandleMessage); err != nil {
			e.logger.Warn("device subscribe failed",
				"user_id", e.userID, "topic", device.Topic, "error", err)
		}
	}

	e.emit(Event{Type: EventDeviceAdded, DeviceID: device.ID, Device: device, At: e.clock.Now()})
	return device, nil
}

// RemoveDevice deletes a device and announces the removal.
func (e *Engine) RemoveDevice(ctx context.Context, id string) error {
	if err := e.store.RemoveDevice(ctx, id); err != nil {
		return err
	}
	e.emit(Event{Type: EventDeviceRemoved, DeviceID: id, At: e.clock.Now()})
	return nil
}

// Control publishes a command payload to the device's topic.
//
// Not-controllable devices and a disconnected transport make this a
// logged no-op rather than an error; the dashboard stays responsive and
// the command is simply dropped.
func (e *Engine) Control(deviceID string, payload map[string]any) error {
	device, err := e.store.Device(deviceID)
	if err != nil {
		e.logger.Warn("control for unknown device", "user_id", e.userID, "id", deviceID)
		return nil
	}
	if !device.Controllable {
		e.logger.Warn("control for non-controllable device",
			"user_id", e.userID, "id", deviceID, "type", device.Type)
		return nil
	}
	if !e.transport.IsConnected() {
		e.logger.Warn("control dropped, transport disconnected",
			"user_id", e.userID, "id", deviceID)
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding control payload: %w", err)
	}
	if err := e.transport.Publish(device.Topic, raw, e.qos, false); err != nil {
		return fmt.Errorf("publishing control command: %w", err)
	}

	e.logger.Info("control published", "user_id", e.userID, "id", deviceID, "topic", device.Topic)
	return nil
}

// Detect runs the classifier over the recent unmatched messages,
// skipping topics that now belong to a device.
func (e *Engine) Detect() []Candidate {
	known := make(map[string]struct{})
	for _, d := range e.store.Devices() {
		if d.Topic != "" {
			known[d.Topic] = struct{}{}
		}
	}

	recent := e.recent.Snapshot()
	unclaimed := recent[:0:0]
	for _, msg := range recent {
		if _, ok := known[msg.Topic]; ok {
			continue
		}
		unclaimed = append(unclaimed, msg)
	}

	return Classify(unclaimed, e.store.DeletedTopics())
}

// Events registers a subscriber for state-change events. The returned
// cancel function must be called to release the channel.
func (e *Engine) Events() (<-chan Event, func()) {
	ch := make(chan Event, eventBufferSize)

	e.subMu.Lock()
	if e.closed {
		e.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	e.subscribers[ch] = struct{}{}
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.subMu.Unlock()
	}
	return ch, cancel
}

// Close cancels all timers and closes every event subscription.
func (e *Engine) Close() {
	e.tracker.CancelAll()

	e.subMu.Lock()
	e.closed = true
	for ch := range e.subscribers {
		delete(e.subscribers, ch)
		close(ch)
	}
	e.subMu.Unlock()
}

// deviceExpired is the tracker's offline callback. The store re-checks
// existence, so a timer racing a removal is harmless.
func (e *Engine) deviceExpired(deviceID string) {
	if !e.store.MarkOffline(deviceID) {
		return
	}

	e.emit(Event{Type: EventDeviceOffline, DeviceID: deviceID, At: e.clock.Now()})

	if e.telemetry != nil {
		if device, err := e.store.Device(deviceID); err == nil {
			e.telemetry.WriteDeviceStatus(deviceID, device.Topic, false)
		}
	}
	e.logger.Debug("device offline", "user_id", e.userID, "id", deviceID)
}

// unsubscribeTopic is the store's hook for departing devices. Only
// attempted while connected; a dropped unsubscribe is harmless because
// unmatched messages are dropped anyway.
func (e *Engine) unsubscribeTopic(topic string) {
	if !e.transport.IsConnected() {
		return
	}
	if err := e.transport.Unsubscribe(topic); err != nil {
		e.logger.Warn("unsubscribe failed", "user_id", e.userID, "topic", topic, "error", err)
	}
}

// emit fans an event out to subscribers without blocking; full
// channels drop the event.
func (e *Engine) emit(ev Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	for ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// messageBuffer is a bounded most-recent-first message list.
type messageBuffer struct {
	mu    sync.Mutex
	limit int
	items []Message
}

func newMessageBuffer(limit int) *messageBuffer {
	return &messageBuffer{limit: limit}
}

// Add prepends a message, evicting the oldest past the limit.
func (b *messageBuffer) Add(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, Message{})
	copy(b.items[1:], b.items)
	b.items[0] = msg
	if len(b.items) > b.limit {
		b.items = b.items[:b.limit]
	}
}

// Snapshot returns a copy, most recent first.
func (b *messageBuffer) Snapshot() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, len(b.items))
	copy(out, b.items)
	return out
}

package dashboard

import (
	"context"
	"fmt"
	"sync"
)

// Manager owns one reconciliation engine per user over a shared MQTT
// connection. Every inbound message arrives through dispatch, which
// fans it out to all engines; per-user isolation is only the user-id
// key, so every engine sees the full stream and matches independently.
//
// The transport keeps one handler per topic filter, and a later
// Subscribe on the same filter replaces the earlier handler. Engines
// therefore never install their own handlers: they subscribe through a
// transport view that registers dispatch for every filter, so repeated
// or overlapping subscriptions from any number of engines always
// resolve to the same fan-out and can never displace it.
type Manager struct {
	transport Transport
	repo      ConfigRepository
	timeouts  TimeoutSource
	telemetry Telemetry
	clock     Clock
	logger    Logger
	qos       byte

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewManager creates a manager. Pass nil clock for real timers.
func NewManager(transport Transport, repo ConfigRepository, timeouts TimeoutSource, clock Clock) *Manager {
	if clock == nil {
		clock = RealClock{}
	}
	return &Manager{
		transport: transport,
		repo:      repo,
		timeouts:  timeouts,
		clock:     clock,
		logger:    noopLogger{},
		engines:   make(map[string]*Engine),
	}
}

// SetLogger sets the logger for the manager and future engines.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetTelemetry wires an optional telemetry sink into future engines.
func (m *Manager) SetTelemetry(t Telemetry) {
	m.telemetry = t
}

// SetQoS sets the QoS used for subscriptions and control publishes.
func (m *Manager) SetQoS(qos byte) {
	m.qos = qos
}

// Start takes the catch-all subscription. Call once after the MQTT
// client connects; the client restores the subscription on reconnect.
func (m *Manager) Start() error {
	if err := m.transport.Subscribe("#", m.qos, m.dispatch); err != nil {
		return fmt.Errorf("subscribing catch-all: %w", err)
	}
	m.logger.Info("dashboard manager started")
	return nil
}

// Engine returns the engine for a user, creating and starting it on
// first use.
func (m *Manager) Engine(ctx context.Context, userID string) (*Engine, error) {
	m.mu.Lock()
	if e, ok := m.engines[userID]; ok {
		m.mu.Unlock()
		return e, nil
	}
	m.mu.Unlock()

	e := NewEngine(userID, m.repo, m.timeouts, engineTransport{m.transport, m}, m.clock)
	e.SetLogger(m.logger)
	e.SetQoS(m.qos)
	if m.telemetry != nil {
		e.SetTelemetry(m.telemetry)
	}
	if err := e.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have won the race; prefer the started one.
	if existing, ok := m.engines[userID]; ok {
		e.Close()
		return existing, nil
	}
	m.engines[userID] = e

	m.logger.Info("engine started", "user_id", userID)
	return e, nil
}

// Drop closes and removes a user's engine, e.g. on account deletion.
func (m *Manager) Drop(userID string) {
	m.mu.Lock()
	e, ok := m.engines[userID]
	delete(m.engines, userID)
	m.mu.Unlock()

	if ok {
		e.Close()
	}
}

// Shutdown closes every engine.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for id, e := range m.engines {
		engines = append(engines, e)
		delete(m.engines, id)
	}
	m.mu.Unlock()

	for _, e := range engines {
		e.Close()
	}
	m.logger.Info("dashboard manager stopped")
}

// engineTransport is the transport view handed to engines. Subscribe
// registers the manager's dispatch instead of the caller's handler, so
// an engine re-subscribing the catch-all or a topic another user also
// watches is a no-op for routing. Publish, Unsubscribe, and
// IsConnected promote from the shared transport.
type engineTransport struct {
	Transport
	m *Manager
}

func (t engineTransport) Subscribe(topic string, qos byte, _ func(topic string, payload []byte) error) error {
	return t.Transport.Subscribe(topic, qos, t.m.dispatch)
}

// dispatch fans one message out to every engine. Each engine's store
// serializes its own state, so engines process independently.
func (m *Manager) dispatch(topic string, payload []byte) error {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.Unlock()

	for _, e := range engines {
		if err := e.HandleMessage(topic, payload); err != nil {
			m.logger.Warn("message handling failed",
				"user_id", e.userID, "topic", topic, "error", err)
		}
	}
	return nil
}

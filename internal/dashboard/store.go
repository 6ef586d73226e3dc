package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the dashboard package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// cleanupDebounce is how long after a mutation the invalid-record sweep
// runs. Re-triggering replaces the pending run instead of stacking.
const cleanupDebounce = time.Second

// Store is the authoritative in-memory dashboard state for one user:
// an insertion-ordered device collection plus layouts, the deleted-topic
// set, and view filters.
//
// One mutex serializes message application, timer expiry, and UI
// mutations, so ordering within a user's dashboard is total.
//
// Persistence is write-through and explicit: every mutating operation
// saves the full snapshot through the repository before returning.
// There is no background autosave. On save failure the in-memory state
// is retained and the error is surfaced to the caller.
type Store struct {
	userID  string
	repo    ConfigRepository
	matcher *Matcher
	clock   Clock
	logger  Logger

	// tracker must be bound before Load; see BindTracker.
	tracker *Tracker

	// unsubscribe, when set, is called with the topic of any device
	// leaving the store. The engine checks transport connectivity there.
	unsubscribe func(topic string)

	mu            sync.Mutex
	devices       []Device
	layouts       map[string]LayoutEntry
	deletedTopics map[string]struct{}
	filters       Filters
	lastUpdated   time.Time
	cleanup       Timer
}

// NewStore creates an empty store for the given user.
func NewStore(userID string, repo ConfigRepository, matcher *Matcher, clock Clock) *Store {
	return &Store{
		userID:        userID,
		repo:          repo,
		matcher:       matcher,
		clock:         clock,
		logger:        noopLogger{},
		layouts:       make(map[string]LayoutEntry),
		deletedTopics: make(map[string]struct{}),
		filters:       DefaultFilters(),
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// BindTracker wires the liveness tracker. Must be called once before
// the store processes any operation that touches timers.
func (s *Store) BindTracker(t *Tracker) {
	s.tracker = t
}

// SetUnsubscribe installs the transport unsubscribe hook.
func (s *Store) SetUnsubscribe(fn func(topic string)) {
	s.unsubscribe = fn
}

// Load replaces the in-memory state with the persisted snapshot.
// A missing snapshot yields an empty dashboard. Liveness timers are not
// persisted, so every device starts offline until a message arrives.
func (s *Store) Load(ctx context.Context) error {
	snap, err := s.repo.Load(ctx, s.userID)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return nil
		}
		return fmt.Errorf("loading dashboard config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices = make([]Device, len(snap.Devices))
	for i := range snap.Devices {
		d := snap.Devices[i]
		d.IsOnline = false
		s.devices[i] = *d.DeepCopy()
	}

	s.layouts = make(map[string]LayoutEntry, len(snap.DeviceLayouts))
	for id, entry := range snap.DeviceLayouts {
		s.layouts[id] = entry
	}

	s.deletedTopics = make(map[string]struct{}, len(snap.DeletedTopics))
	for _, topic := range snap.DeletedTopics {
		s.deletedTopics[topic] = struct{}{}
	}

	if snap.DeviceFilters != (Filters{}) {
		s.filters = snap.DeviceFilters
	}
	s.lastUpdated = snap.LastUpdated

	s.logger.Info("dashboard loaded",
		"user_id", s.userID,
		"devices", len(s.devices),
		"deleted_topics", len(s.deletedTopics),
	)
	return nil
}

// AddDeviceInput is the caller-supplied spec for a new device.
type AddDeviceInput struct {
	Name    string     `json:"name"`
	Type    DeviceType `json:"type"`
	Topic   string     `json:"topic"`
	Room    string     `json:"room"`
	Enabled *bool      `json:"enabled,omitempty"`
}

// AddDevice creates a device from the input and persists the snapshot.
//
// The device gets a fresh ID and the static type-config defaults for
// icon and controllability. A layout entry is synthesized at the bottom
// of the grid if absent, and the topic is removed from the deleted set:
// a manual add always supersedes a prior bulk deletion.
func (s *Store) AddDevice(ctx context.Context, input AddDeviceInput) (*Device, error) {
	if strings.TrimSpace(input.Topic) == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidDevice)
	}

	cfg, known := TypeConfigFor(input.Type)
	name := input.Name
	if name == "" {
		name = cfg.Name
	}
	if name == "" {
		name = "Unknown Device"
	}
	icon := cfg.Icon
	if icon == "" {
		icon = "device-unknown"
	}
	room := input.Room
	if room == "" {
		room = "General"
	}
	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}
	if !known {
		s.logger.Debug("adding device with unknown type", "type", input.Type)
	}

	device := Device{
		ID:           "dev-" + uuid.NewString()[:8],
		Name:         name,
		Type:         input.Type,
		Topic:        input.Topic,
		Room:         room,
		Icon:         icon,
		Controllable: cfg.Controllable,
		Enabled:      enabled,
		Data:         DeviceData{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices = append(s.devices, device)
	if _, ok := s.layouts[device.ID]; !ok {
		s.layouts[device.ID] = LayoutEntry{
			X: 0, Y: s.bottomYLocked(),
			W: defaultTileW, H: defaultTileH,
			MinW: layoutMinW, MaxW: layoutMaxW,
			MinH: layoutMinH, MaxH: layoutMaxH,
		}
	}
	delete(s.deletedTopics, device.Topic)

	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	s.scheduleCleanupLocked()

	s.logger.Info("device added", "user_id", s.userID, "id", device.ID, "topic", device.Topic)
	return device.DeepCopy(), nil
}

// RemoveDevice deletes a single device and persists.
//
// The device's timer is cancelled and its topic unsubscribed, but the
// topic is NOT added to the deleted set; only bulk clears block
// re-detection, targeted removal does not.
func (s *Store) RemoveDevice(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrDeviceNotFound
	}
	topic := s.devices[idx].Topic

	s.tracker.Cancel(id)
	if topic != "" && s.unsubscribe != nil {
		s.unsubscribe(topic)
	}

	s.devices = append(s.devices[:idx], s.devices[idx+1:]...)
	delete(s.layouts, id)

	if err := s.persistLocked(ctx); err != nil {
		return err
	}
	s.scheduleCleanupLocked()

	s.logger.Info("device removed", "user_id", s.userID, "id", id, "topic", topic)
	return nil
}

// DevicePatch carries the fields UpdateDevice may change. Nil fields
// are left untouched. The caller supplies a fully resolved patch; a
// type change does not re-derive icon or controllability automatically.
type DevicePatch struct {
	Name         *string     `json:"name,omitempty"`
	Type         *DeviceType `json:"type,omitempty"`
	Topic        *string     `json:"topic,omitempty"`
	Room         *string     `json:"room,omitempty"`
	Icon         *string     `json:"icon,omitempty"`
	Controllable *bool       `json:"controllable,omitempty"`
	Enabled      *bool       `json:"enabled,omitempty"`
}

// UpdateDevice shallow-merges the patch into the device and persists.
func (s *Store) UpdateDevice(ctx context.Context, id string, patch DevicePatch) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return nil, ErrDeviceNotFound
	}

	d := &s.devices[idx]
	if patch.Name != nil {
		d.Name = *patch.Name
	}
	if patch.Type != nil {
		d.Type = *patch.Type
	}
	if patch.Topic != nil {
		d.Topic = *patch.Topic
	}
	if patch.Room != nil {
		d.Room = *patch.Room
	}
	if patch.Icon != nil {
		d.Icon = *patch.Icon
	}
	if patch.Controllable != nil {
		d.Controllable = *patch.Controllable
	}
	if patch.Enabled != nil {
		d.Enabled = *patch.Enabled
	}

	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	s.scheduleCleanupLocked()

	return d.DeepCopy(), nil
}

// ToggleEnabled flips the enabled flag and persists. Disabled devices
// keep their record and layout entry but are hidden from enabled views.
func (s *Store) ToggleEnabled(ctx context.Context, id string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return nil, ErrDeviceNotFound
	}

	d := &s.devices[idx]
	d.Enabled = !d.Enabled

	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("device toggled", "user_id", s.userID, "id", id, "enabled", d.Enabled)
	return d.DeepCopy(), nil
}

// ClearAll cancels every timer and empties devices, layouts, AND the
// deleted-topic set, then persists immediately. A device re-added with
// a previously deleted topic is therefore never blocked after a clear.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracker.CancelAll()
	s.devices = nil
	s.layouts = make(map[string]LayoutEntry)
	s.deletedTopics = make(map[string]struct{})

	if err := s.persistLocked(ctx); err != nil {
		return err
	}

	s.logger.Info("dashboard cleared", "user_id", s.userID)
	return nil
}

// DeleteTopics records topics in the deleted set so auto-detection
// stops suggesting them, and persists.
func (s *Store) DeleteTopics(ctx context.Context, topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, topic := range topics {
		if topic != "" {
			s.deletedTopics[topic] = struct{}{}
		}
	}
	return s.persistLocked(ctx)
}

// ClearDeletedTopics empties the deleted-topic set and persists,
// re-enabling auto-detection for those topics.
func (s *Store) ClearDeletedTopics(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deletedTopics = make(map[string]struct{})
	return s.persistLocked(ctx)
}

// CleanupInvalid removes devices whose id, name, or topic is missing,
// blank, or the literal "null"/"undefined", prunes layout entries that
// no longer reference a device, and cancels orphaned timers. Returns
// the number of devices removed. Persists only when something changed.
//
// The store schedules this automatically, debounced, after mutations;
// it self-heals corrupt persisted state instead of crashing on it.
func (s *Store) CleanupInvalid(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupInvalidLocked(ctx)
}

func (s *Store) cleanupInvalidLocked(ctx context.Context) (int, error) {
	kept := s.devices[:0:0]
	removed := 0
	for i := range s.devices {
		d := s.devices[i]
		if d.Valid() {
			kept = append(kept, d)
			continue
		}
		removed++
		s.tracker.Cancel(d.ID)
		if d.Topic != "" && s.unsubscribe != nil {
			s.unsubscribe(d.Topic)
		}
	}
	s.devices = kept

	valid := make(map[string]struct{}, len(s.devices))
	for i := range s.devices {
		valid[s.devices[i].ID] = struct{}{}
	}
	pruned := 0
	for id := range s.layouts {
		if _, ok := valid[id]; !ok {
			delete(s.layouts, id)
			pruned++
		}
	}

	if removed == 0 && pruned == 0 {
		return 0, nil
	}

	if err := s.persistLocked(ctx); err != nil {
		return removed, err
	}

	s.logger.Info("invalid devices cleaned",
		"user_id", s.userID, "removed", removed, "layouts_pruned", pruned)
	return removed, nil
}

// scheduleCleanupLocked arms the debounced cleanup, replacing any
// pending run. Caller must hold s.mu.
func (s *Store) scheduleCleanupLocked() {
	if s.cleanup != nil {
		s.cleanup.Stop()
	}
	s.cleanup = s.clock.AfterFunc(cleanupDebounce, func() {
		s.mu.Lock()
		s.cleanup = nil
		if _, err := s.cleanupInvalidLocked(context.Background()); err != nil {
			s.logger.Warn("debounced cleanup failed", "user_id", s.userID, "error", err)
		}
		s.mu.Unlock()
	})
}

// UpdateLayout replaces tile geometry, clamping each entry to the grid
// bounds (x,y >= 0, w in [2,12], h in [2,8]), and persists.
func (s *Store) UpdateLayout(ctx context.Context, layouts map[string]LayoutEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range layouts {
		if id == "" {
			continue
		}
		s.layouts[id] = clampLayout(entry)
	}
	return s.persistLocked(ctx)
}

// SetFilters replaces the view filters and persists them for session
// continuity.
func (s *Store) SetFilters(ctx context.Context, f Filters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filters = f
	return s.persistLocked(ctx)
}

// Filtered returns the devices passing the current filters, applied in
// order: validity, type, status, room, controllable, enabled, then
// free-text search over name, room, and topic.
func (s *Store) Filtered() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.filters
	var out []Device
	for i := range s.devices {
		d := &s.devices[i]
		if !d.Valid() {
			continue
		}
		if f.Type != "" && f.Type != FilterAll && string(d.Type) != f.Type {
			continue
		}
		if f.Status == StatusOnline && !d.IsOnline {
			continue
		}
		if f.Status == StatusOffline && d.IsOnline {
			continue
		}
		if f.Room != "" && f.Room != FilterAll && d.Room != f.Room {
			continue
		}
		if f.Controllable == "true" && !d.Controllable {
			continue
		}
		if f.Controllable == "false" && d.Controllable {
			continue
		}
		if f.Enabled == "true" && !d.Enabled {
			continue
		}
		if f.Enabled == "false" && d.Enabled {
			continue
		}
		if f.Search != "" && !searchMatches(d, f.Search) {
			continue
		}
		out = append(out, *d.DeepCopy())
	}
	return out
}

func searchMatches(d *Device, search string) bool {
	q := strings.ToLower(search)
	return strings.Contains(strings.ToLower(d.Name), q) ||
		strings.Contains(strings.ToLower(d.Room), q) ||
		strings.Contains(strings.ToLower(d.Topic), q)
}

// ApplyMessage matches a topic against the live device set and, on a
// hit, replaces the device's data wholesale, stamps lastUpdated, and
// marks it online. A removal racing with an in-flight message is safe:
// the lookup consults the live set, so a vanished device is a miss.
//
// Message application is deliberately not persisted; only explicit
// mutations write through.
func (s *Store) ApplyMessage(topic string, data DeviceData, at time.Time) (*Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.matcher.Resolve(s.devices, topic)
	if !ok {
		return nil, false
	}

	d := &s.devices[idx]
	if !d.Valid() {
		return nil, false
	}
	d.Data = data.clone()
	ts := at
	d.LastUpdated = &ts
	d.IsOnline = true

	return d.DeepCopy(), true
}

// MarkOffline flips a device offline, guarding against timers that
// outlive their device. Reports whether the device existed.
func (s *Store) MarkOffline(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return false
	}
	s.devices[idx].IsOnline = false
	return true
}

// Device returns a copy of the device with the given ID.
func (s *Store) Device(id string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return nil, ErrDeviceNotFound
	}
	return s.devices[idx].DeepCopy(), nil
}

// Devices returns copies of all devices in insertion order.
func (s *Store) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Device, len(s.devices))
	for i := range s.devices {
		out[i] = *s.devices[i].DeepCopy()
	}
	return out
}

// DeletedTopics returns a copy of the deleted-topic set.
func (s *Store) DeletedTopics() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]struct{}, len(s.deletedTopics))
	for topic := range s.deletedTopics {
		out[topic] = struct{}{}
	}
	return out
}

// Filters returns the current view filters.
func (s *Store) Filters() Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// Snapshot returns a deep copy of the full dashboard state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Devices:       make([]Device, len(s.devices)),
		DeviceLayouts: make(map[string]LayoutEntry, len(s.layouts)),
		DeletedTopics: make([]string, 0, len(s.deletedTopics)),
		DeviceFilters: s.filters,
		LastUpdated:   s.lastUpdated,
	}
	for i := range s.devices {
		snap.Devices[i] = *s.devices[i].DeepCopy()
	}
	for id, entry := range s.layouts {
		snap.DeviceLayouts[id] = entry
	}
	for topic := range s.deletedTopics {
		snap.DeletedTopics = append(snap.DeletedTopics, topic)
	}
	return snap
}

// persistLocked writes the full snapshot through the repository.
// Caller must hold s.mu. On failure the in-memory state is retained and
// the wrapped error is returned for the caller to surface.
func (s *Store) persistLocked(ctx context.Context) error {
	s.lastUpdated = s.clock.Now().UTC()
	snap := s.snapshotLocked()

	if err := s.repo.Save(ctx, s.userID, &snap); err != nil {
		s.logger.Error("dashboard save failed, in-memory state retained",
			"user_id", s.userID, "error", err)
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return nil
}

// indexLocked returns the position of a device or -1.
// Caller must hold s.mu.
func (s *Store) indexLocked(id string) int {
	for i := range s.devices {
		if s.devices[i].ID == id {
			return i
		}
	}
	return -1
}

// bottomYLocked returns the first free row beneath the existing tiles.
// Caller must hold s.mu.
func (s *Store) bottomYLocked() int {
	bottom := 0
	for _, entry := range s.layouts {
		if entry.Y+entry.H > bottom {
			bottom = entry.Y + entry.H
		}
	}
	return bottom
}

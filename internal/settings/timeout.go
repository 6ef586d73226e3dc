package settings

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// timeoutCacheTTL is how long a fetched sensor timeout stays fresh.
// The admin API calls Refresh on updates, so the TTL only matters when
// the value is changed out of band (direct DB edit).
const timeoutCacheTTL = 5 * time.Minute

// refreshTimeout bounds the background repository read after a TTL lapse.
const refreshTimeout = 5 * time.Second

// Logger is the minimal logging interface the cache needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
}

// TimeoutCache serves the global sensor timeout with a TTL cache in front
// of the settings repository.
//
// Lookup order:
//  1. Cached value, fresh or stale. A stale value triggers a single
//     background refresh; callers never wait on the repository once a
//     value has been cached, except right after Refresh.
//  2. Repository fetch (parsed, clamped to [MinSensorTimeoutSeconds, MaxSensorTimeoutSeconds])
//  3. On fetch or parse failure: last cached value, even if stale
//  4. DefaultSensorTimeoutSeconds when nothing has ever been cached
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type TimeoutCache struct {
	repo   Repository
	logger Logger

	mu         sync.Mutex
	value      time.Duration
	fetchedAt  time.Time
	hasValue   bool
	forceFetch bool
	refreshing bool
}

// NewTimeoutCache creates a cache over the given repository.
// The logger may be nil.
func NewTimeoutCache(repo Repository, logger Logger) *TimeoutCache {
	return &TimeoutCache{
		repo:   repo,
		logger: logger,
	}
}

// SensorTimeout returns the current sensor timeout.
//
// This sits on the message hot path, so the mutex is never held across
// the repository read: a cached value is returned immediately even past
// its TTL, with at most one goroutine refreshing it behind the scenes.
// Only the first-ever call and the call right after Refresh fetch
// synchronously.
//
// A timeout fetched here applies to timers scheduled afterwards; timers
// already pending keep the value they were scheduled with.
func (c *TimeoutCache) SensorTimeout(ctx context.Context) time.Duration {
	c.mu.Lock()
	if c.hasValue && !c.forceFetch {
		v := c.value
		if time.Since(c.fetchedAt) >= timeoutCacheTTL && !c.refreshing {
			c.refreshing = true
			go c.backgroundRefresh()
		}
		c.mu.Unlock()
		return v
	}
	c.forceFetch = false
	c.mu.Unlock()

	seconds, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("sensor timeout fetch failed, using fallback", "error", err)
		}
		if c.hasValue {
			return c.value
		}
		return DefaultSensorTimeoutSeconds * time.Second
	}
	c.store(seconds)
	return c.value
}

// Refresh marks the cached value as superseded so the next SensorTimeout
// call re-reads the repository before answering. Call after an admin
// updates the setting.
func (c *TimeoutCache) Refresh() {
	c.mu.Lock()
	c.forceFetch = true
	c.mu.Unlock()
}

// backgroundRefresh re-reads the repository after a TTL lapse. On failure
// the stale value stays in place and the next lookup retries.
func (c *TimeoutCache) backgroundRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	seconds, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshing = false
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("sensor timeout refresh failed, keeping cached value", "error", err)
		}
		return
	}
	c.store(seconds)
}

// store records a fetched value. The caller must hold c.mu.
func (c *TimeoutCache) store(seconds int) {
	c.value = time.Duration(seconds) * time.Second
	c.fetchedAt = time.Now()
	c.hasValue = true
}

// fetch reads and validates the timeout from the repository. It touches
// no guarded state, so it runs without the mutex.
func (c *TimeoutCache) fetch(ctx context.Context) (int, error) {
	setting, err := c.repo.Get(ctx, KeySensorTimeout)
	if err != nil {
		return 0, err
	}

	seconds, err := strconv.Atoi(setting.Value)
	if err != nil {
		return 0, err
	}

	if seconds < MinSensorTimeoutSeconds {
		seconds = MinSensorTimeoutSeconds
	}
	if seconds > MaxSensorTimeoutSeconds {
		seconds = MaxSensorTimeoutSeconds
	}
	return seconds, nil
}

// Package settings manages global admin settings, per-user preferences,
// and MQTT broker profiles.
//
// Admin settings are typed key/value pairs stored in the admin_settings
// table. The most important one is the global sensor timeout, which drives
// the liveness tracker's online/offline decisions. Because that value is
// read on every device message, it is served from a TTL cache rather than
// hitting SQLite each time.
//
// User settings are untyped key/value preferences scoped to one account,
// and broker profiles are named MQTT broker configurations of which at
// most one is active.
//
// # Usage
//
//	repo := settings.NewSQLiteRepository(db.DB)
//	cache := settings.NewTimeoutCache(repo, logger)
//
//	timeout := cache.SensorTimeout(ctx) // cached, clamped, defaulted
//	cache.Refresh()                     // after an admin update
package settings

// Package dashboard implements the device-state reconciliation engine
// behind the Homeview dashboard.
//
// Each authenticated user owns one Engine. The engine consumes the MQTT
// message stream, matches topics to devices (exact or +/# wildcard),
// replaces device data wholesale on every matching message, tracks
// per-device online/offline liveness against the global sensor timeout,
// and buffers unmatched traffic for heuristic device auto-detection.
//
// Components:
//   - Matcher: topic pattern matching with a compiled-regex cache
//   - Tracker: per-device offline timers behind a Clock abstraction
//   - Classify: pure auto-detect heuristic over recent unmatched messages
//   - Store: insertion-ordered device collection with write-through
//     persistence of the full dashboard snapshot
//   - Engine: the single consumer tying the above together
//   - Manager: one engine per user over a shared MQTT connection
//
// All state for a user is guarded by a single mutex in the Store, keeping
// message handling, timer expiry, and UI mutations serialized.
package dashboard

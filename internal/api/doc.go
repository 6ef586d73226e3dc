// Package api implements the HTTP REST API and WebSocket server for Homeview Core.
//
// This package provides:
//   - REST endpoints for dashboard devices, layout, filters, and detection
//   - Session endpoints (login, me, password change) backed by the user store
//   - Per-user preference endpoints (key/value settings scoped to the caller)
//   - Admin endpoints for global settings, user accounts, and broker profiles
//   - A WebSocket stream of per-user dashboard events with ticket-based auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, JWT)
//
// # Architecture
//
// The API server sits between the browser dashboard and the per-user
// reconciliation engines. Device mutations and control commands go through
// the caller's engine; state changes flow back over the WebSocket as the
// engine emits them.
//
// # Security
//
// Authentication uses JWT bearer tokens signed with the configured secret.
// WebSocket connections use single-use tickets to prevent token leakage in
// URLs. Admin routes additionally require the admin role.
package api

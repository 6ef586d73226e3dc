// Package auth provides authentication and authorisation for Homeview Core.
//
// It implements a 2-tier role model (user → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - Short-lived JWT access tokens validated by signature only
//   - SQLite-backed user accounts seeded with an initial admin
//
// Every user owns their own dashboard (devices, layout, filters); the
// admin role additionally controls global settings, user accounts, and
// MQTT broker profiles.
package auth

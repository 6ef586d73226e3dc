package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/password", s.handleChangePassword)

			// WS ticket requires authentication - user must be logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Static device type table
			r.Get("/device-types", s.handleDeviceTypes)

			// Per-user preferences
			r.Route("/settings", func(r chi.Router) {
				r.Get("/", s.handleListUserSettings)
				r.Get("/{key}", s.handleGetUserSetting)
				r.Put("/{key}", s.handleSetUserSetting)
				r.Delete("/{key}", s.handleDeleteUserSetting)
			})

			// Dashboard-wide endpoints
			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/", s.handleGetDashboard)
				r.Delete("/", s.handleClearDashboard)
				r.Put("/layout", s.handleUpdateLayout)
				r.Get("/filters", s.handleGetFilters)
				r.Put("/filters", s.handleSetFilters)
				r.Get("/detect", s.handleDetectDevices)
				r.Post("/deleted-topics", s.handleDeleteTopics)
				r.Delete("/deleted-topics", s.handleClearDeletedTopics)
			})

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Post("/control", s.handleControlDevice)
					r.Post("/toggle", s.handleToggleDevice)
				})
			})

			// Admin endpoints
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)

				r.Route("/settings", func(r chi.Router) {
					r.Get("/", s.handleListSettings)
					r.Get("/{key}", s.handleGetSetting)
					r.Put("/{key}", s.handleUpdateSetting)
				})

				r.Route("/users", func(r chi.Router) {
					r.Get("/", s.handleListUsers)
					r.Post("/", s.handleCreateUser)
					r.Get("/{id}", s.handleGetUser)
					r.Patch("/{id}", s.handleUpdateUser)
					r.Delete("/{id}", s.handleDeleteUser)
				})

				r.Route("/brokers", func(r chi.Router) {
					r.Get("/", s.handleListBrokers)
					r.Post("/", s.handleCreateBroker)
					r.Post("/{id}/activate", s.handleActivateBroker)
					r.Delete("/{id}", s.handleDeleteBroker)
				})
			})

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dkmorland/homeview-core/internal/dashboard"
)

// engineFor returns the reconciliation engine owned by the calling user,
// creating and starting it on first use.
func (s *Server) engineFor(r *http.Request) (*dashboard.Engine, error) {
	claims := claimsFromContext(r.Context())
	return s.dashboards.Engine(r.Context(), claims.Subject)
}

// handleListDevices returns the caller's devices in insertion order.
// With ?filtered=true the persisted view filters are applied.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	var devices []dashboard.Device
	if r.URL.Query().Get("filtered") == "true" {
		devices = engine.Store().Filtered()
	} else {
		devices = engine.Store().Devices()
	}
	if devices == nil {
		devices = []dashboard.Device{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleCreateDevice adds a device to the caller's dashboard.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	var input dashboard.AddDeviceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	device, err := engine.AddDevice(r.Context(), input)
	if err != nil {
		if errors.Is(err, dashboard.ErrInvalidDevice) {
			writeBadRequest(w, "topic is required")
			return
		}
		s.logger.Error("add device failed", "error", err)
		writeInternalError(w, "failed to add device")
		return
	}

	writeJSON(w, http.StatusCreated, device)
}

// handleGetDevice returns a single device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	device, err := engine.Store().Device(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// handleUpdateDevice patches a device's editable fields.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	var patch dashboard.DevicePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	device, err := engine.Store().UpdateDevice(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		if errors.Is(err, dashboard.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("update device failed", "error", err)
		writeInternalError(w, "failed to update device")
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// handleDeleteDevice removes a device from the caller's dashboard.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	if err := engine.RemoveDevice(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, dashboard.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("remove device failed", "error", err)
		writeInternalError(w, "failed to remove device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleToggleDevice flips a device's enabled flag.
func (s *Server) handleToggleDevice(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	device, err := engine.Store().ToggleEnabled(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, dashboard.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("toggle device failed", "error", err)
		writeInternalError(w, "failed to toggle device")
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// handleControlDevice publishes a command payload to the device's topic.
//
// Commands for unknown, not-controllable, or disconnected devices are
// accepted and dropped; the engine logs the reason. The dashboard treats
// control as fire-and-forget.
func (s *Server) handleControlDevice(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := engine.Control(chi.URLParam(r, "id"), payload); err != nil {
		s.logger.Error("control publish failed", "error", err)
		writeInternalError(w, "failed to publish command")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleDeviceTypes returns the static device type table.
func (s *Server) handleDeviceTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"types": dashboard.AllTypeConfigs(),
	})
}

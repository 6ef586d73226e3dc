package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dkmorland/homeview-core/internal/settings"
)

// updateSettingRequest is the request body for PUT /admin/settings/{key}.
type updateSettingRequest struct {
	Value       string               `json:"value"`
	Type        settings.SettingType `json:"type,omitempty"`
	Description string               `json:"description,omitempty"`
}

// handleListSettings returns all global settings.
func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	list, err := s.settings.List(r.Context())
	if err != nil {
		s.logger.Error("list settings failed", "error", err)
		writeInternalError(w, "failed to list settings")
		return
	}
	if list == nil {
		list = []settings.Setting{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"settings": list,
		"count":    len(list),
	})
}

// handleGetSetting returns a single setting by key.
func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := s.settings.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		if errors.Is(err, settings.ErrSettingNotFound) {
			writeNotFound(w, "setting not found")
			return
		}
		s.logger.Error("get setting failed", "error", err)
		writeInternalError(w, "failed to get setting")
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

// handleUpdateSetting upserts a setting value.
//
// The sensor timeout is validated as an integer, clamped to its bounds,
// and the timeout cache is invalidated so new liveness timers pick the
// value up immediately.
func (s *Server) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	claims := claimsFromContext(r.Context())

	var req updateSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == "" {
		writeBadRequest(w, "value is required")
		return
	}

	existing, err := s.settings.Get(r.Context(), key)
	if err != nil && !errors.Is(err, settings.ErrSettingNotFound) {
		s.logger.Error("get setting for update failed", "error", err)
		writeInternalError(w, "failed to update setting")
		return
	}

	settingType := req.Type
	if settingType == "" {
		if existing != nil {
			settingType = existing.Type
		} else {
			settingType = settings.TypeString
		}
	}

	if key == settings.KeySensorTimeout {
		seconds, err := strconv.Atoi(req.Value)
		if err != nil {
			writeBadRequest(w, "sensor timeout must be an integer number of seconds")
			return
		}
		if seconds < settings.MinSensorTimeoutSeconds {
			seconds = settings.MinSensorTimeoutSeconds
		}
		if seconds > settings.MaxSensorTimeoutSeconds {
			seconds = settings.MaxSensorTimeoutSeconds
		}
		req.Value = strconv.Itoa(seconds)
		settingType = settings.TypeNumber
	}

	setting := &settings.Setting{
		Key:         key,
		Value:       req.Value,
		Type:        settingType,
		Description: req.Description,
		UpdatedBy:   claims.Subject,
	}
	if err := s.settings.Upsert(r.Context(), setting); err != nil {
		s.logger.Error("upsert setting failed", "error", err)
		writeInternalError(w, "failed to update setting")
		return
	}

	if key == settings.KeySensorTimeout && s.timeouts != nil {
		s.timeouts.Refresh()
	}

	s.logger.Info("setting updated", "key", key, "updated_by", claims.Subject)
	writeJSON(w, http.StatusOK, setting)
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dkmorland/homeview-core/internal/settings"
)

// setUserSettingRequest is the request body for PUT /settings/{key}.
type setUserSettingRequest struct {
	Value string `json:"value"`
}

// handleListUserSettings returns the calling user's preferences.
func (s *Server) handleListUserSettings(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	list, err := s.userPrefs.List(r.Context(), claims.Subject)
	if err != nil {
		s.logger.Error("list user settings failed", "error", err, "user_id", claims.Subject)
		writeInternalError(w, "failed to list settings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"settings": list,
		"count":    len(list),
	})
}

// handleGetUserSetting returns one of the calling user's preferences.
func (s *Server) handleGetUserSetting(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	setting, err := s.userPrefs.Get(r.Context(), claims.Subject, chi.URLParam(r, "key"))
	if err != nil {
		if errors.Is(err, settings.ErrSettingNotFound) {
			writeNotFound(w, "setting not found")
			return
		}
		s.logger.Error("get user setting failed", "error", err, "user_id", claims.Subject)
		writeInternalError(w, "failed to get setting")
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

// handleSetUserSetting upserts one of the calling user's preferences.
func (s *Server) handleSetUserSetting(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	key := chi.URLParam(r, "key")

	var req setUserSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.userPrefs.Set(r.Context(), claims.Subject, key, req.Value); err != nil {
		if errors.Is(err, settings.ErrInvalidKey) {
			writeBadRequest(w, "invalid setting key")
			return
		}
		s.logger.Error("set user setting failed", "error", err, "user_id", claims.Subject)
		writeInternalError(w, "failed to save setting")
		return
	}

	setting, err := s.userPrefs.Get(r.Context(), claims.Subject, key)
	if err != nil {
		s.logger.Error("read back user setting failed", "error", err, "user_id", claims.Subject)
		writeInternalError(w, "failed to save setting")
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

// handleDeleteUserSetting removes one of the calling user's preferences.
func (s *Server) handleDeleteUserSetting(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	if err := s.userPrefs.Delete(r.Context(), claims.Subject, chi.URLParam(r, "key")); err != nil {
		if errors.Is(err, settings.ErrInvalidKey) {
			writeBadRequest(w, "invalid setting key")
			return
		}
		s.logger.Error("delete user setting failed", "error", err, "user_id", claims.Subject)
		writeInternalError(w, "failed to delete setting")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

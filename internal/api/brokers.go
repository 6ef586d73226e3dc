package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dkmorland/homeview-core/internal/settings"
)

// createBrokerRequest is the request body for POST /admin/brokers.
type createBrokerRequest struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	UseSSL   bool   `json:"use_ssl"`
}

// handleListBrokers returns all broker profiles plus the active one.
func (s *Server) handleListBrokers(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.brokers.List(r.Context())
	if err != nil {
		s.logger.Error("list brokers failed", "error", err)
		writeInternalError(w, "failed to list broker profiles")
		return
	}

	var activeID int64
	if active, err := s.brokers.GetActive(r.Context()); err == nil {
		activeID = active.ID
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"brokers":   profiles,
		"count":     len(profiles),
		"active_id": activeID,
	})
}

// handleCreateBroker creates a new broker profile.
func (s *Server) handleCreateBroker(w http.ResponseWriter, r *http.Request) {
	var req createBrokerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Host == "" {
		writeBadRequest(w, "name and host are required")
		return
	}

	profile := &settings.BrokerProfile{
		Name:     req.Name,
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		UseSSL:   req.UseSSL,
	}
	if err := s.brokers.Create(r.Context(), profile); err != nil {
		s.logger.Error("create broker failed", "error", err)
		writeInternalError(w, "failed to create broker profile")
		return
	}

	claims := claimsFromContext(r.Context())
	s.logger.Info("broker profile created",
		"broker_id", profile.ID, "name", profile.Name, "created_by", claims.Subject)
	writeJSON(w, http.StatusCreated, profile)
}

// handleActivateBroker marks one profile active. The connection itself
// stays config-file driven; activation is what the admin UI reports.
func (s *Server) handleActivateBroker(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid broker id")
		return
	}

	if err := s.brokers.SetActive(r.Context(), id); err != nil {
		if errors.Is(err, settings.ErrBrokerNotFound) {
			writeNotFound(w, "broker profile not found")
			return
		}
		s.logger.Error("activate broker failed", "error", err)
		writeInternalError(w, "failed to activate broker profile")
		return
	}

	claims := claimsFromContext(r.Context())
	s.logger.Info("broker profile activated", "broker_id", id, "activated_by", claims.Subject)
	writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

// handleDeleteBroker removes an inactive broker profile.
func (s *Server) handleDeleteBroker(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid broker id")
		return
	}

	if err := s.brokers.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, settings.ErrBrokerNotFound):
			writeNotFound(w, "broker profile not found")
		case errors.Is(err, settings.ErrBrokerActive):
			writeConflict(w, "cannot delete the active broker profile")
		default:
			s.logger.Error("delete broker failed", "error", err)
			writeInternalError(w, "failed to delete broker profile")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

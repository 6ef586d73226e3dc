package api

import (
	"encoding/json"
	"net/http"

	"github.com/dkmorland/homeview-core/internal/dashboard"
)

// handleGetDashboard returns the caller's full dashboard snapshot:
// devices, layouts, deleted topics, and filters.
func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	writeJSON(w, http.StatusOK, engine.Store().Snapshot())
}

// handleClearDashboard removes every device, layout, and deleted-topic
// entry from the caller's dashboard.
func (s *Server) handleClearDashboard(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	if err := engine.Store().ClearAll(r.Context()); err != nil {
		s.logger.Error("clear dashboard failed", "error", err)
		writeInternalError(w, "failed to clear dashboard")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateLayout replaces tile geometry for the caller's dashboard.
// Entries are clamped to the grid bounds.
func (s *Server) handleUpdateLayout(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	var layouts map[string]dashboard.LayoutEntry
	if err := json.NewDecoder(r.Body).Decode(&layouts); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := engine.Store().UpdateLayout(r.Context(), layouts); err != nil {
		s.logger.Error("layout update failed", "error", err)
		writeInternalError(w, "failed to update layout")
		return
	}
	writeJSON(w, http.StatusOK, engine.Store().Snapshot().DeviceLayouts)
}

// handleGetFilters returns the caller's persisted view filters.
func (s *Server) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	writeJSON(w, http.StatusOK, engine.Store().Filters())
}

// handleSetFilters replaces the caller's view filters.
func (s *Server) handleSetFilters(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	var filters dashboard.Filters
	if err := json.NewDecoder(r.Body).Decode(&filters); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := engine.Store().SetFilters(r.Context(), filters); err != nil {
		s.logger.Error("filter update failed", "error", err)
		writeInternalError(w, "failed to update filters")
		return
	}
	writeJSON(w, http.StatusOK, filters)
}

// handleDetectDevices suggests devices from recent unmatched traffic.
func (s *Server) handleDetectDevices(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	candidates := engine.Detect()
	if candidates == nil {
		candidates = []dashboard.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"candidates": candidates,
		"count":      len(candidates),
	})
}

// deleteTopicsRequest is the request body for POST /dashboard/deleted-topics.
type deleteTopicsRequest struct {
	Topics []string `json:"topics"`
}

// handleDeleteTopics adds topics to the deleted set so auto-detection
// stops suggesting them.
func (s *Server) handleDeleteTopics(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	var req deleteTopicsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Topics) == 0 {
		writeBadRequest(w, "topics is required")
		return
	}

	if err := engine.Store().DeleteTopics(r.Context(), req.Topics); err != nil {
		s.logger.Error("delete topics failed", "error", err)
		writeInternalError(w, "failed to delete topics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleClearDeletedTopics empties the deleted-topic set, re-enabling
// auto-detection for those topics.
func (s *Server) handleClearDeletedTopics(w http.ResponseWriter, r *http.Request) {
	engine, err := s.engineFor(r)
	if err != nil {
		s.logger.Error("engine start failed", "error", err)
		writeInternalError(w, "failed to load dashboard")
		return
	}

	if err := engine.Store().ClearDeletedTopics(r.Context()); err != nil {
		s.logger.Error("clear deleted topics failed", "error", err)
		writeInternalError(w, "failed to clear deleted topics")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

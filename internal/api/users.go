package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dkmorland/homeview-core/internal/auth"
)

type createUserRequest struct {
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
}

type updateUserRequest struct {
	Email *string    `json:"email,omitempty"`
	Role  *auth.Role `json:"role,omitempty"`
}

// handleListUsers returns all user accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser creates a new user account.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Username == "" || req.Password == "" || req.Email == "" {
		writeBadRequest(w, "username, email, and password are required")
		return
	}
	if !auth.IsValidUsername(req.Username) {
		writeBadRequest(w, "username must be 1-64 characters: letters, digits, dots, hyphens, underscores")
		return
	}
	if !auth.IsValidEmail(req.Email) {
		writeBadRequest(w, "invalid email address")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	if req.Role == "" {
		req.Role = auth.RoleUser
	}
	if !auth.IsValidRole(req.Role) {
		writeBadRequest(w, "invalid role: must be user or admin")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("hash password failed", "error", err)
		writeInternalError(w, "failed to create user")
		return
	}

	claims := claimsFromContext(r.Context())
	user := &auth.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
	}

	if err := s.users.Create(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameExists):
			writeConflict(w, "username already exists")
		case errors.Is(err, auth.ErrEmailExists):
			writeConflict(w, "email already exists")
		default:
			s.logger.Error("create user failed", "error", err)
			writeInternalError(w, "failed to create user")
		}
		return
	}

	s.logger.Info("user created",
		"user_id", user.ID, "username", user.Username,
		"role", user.Role, "created_by", claims.Subject)
	writeJSON(w, http.StatusCreated, user)
}

// handleGetUser returns a single user by ID.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("get user failed", "error", err)
		writeInternalError(w, "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser modifies a user's mutable fields (email, role).
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("get user for update failed", "error", err)
		writeInternalError(w, "failed to update user")
		return
	}

	// Self-protection: cannot demote yourself out of admin.
	if req.Role != nil && id == claims.Subject && *req.Role != claims.Role {
		writeForbidden(w, "cannot change your own role")
		return
	}
	if req.Role != nil && !auth.IsValidRole(*req.Role) {
		writeBadRequest(w, "invalid role: must be user or admin")
		return
	}
	if req.Email != nil && !auth.IsValidEmail(*req.Email) {
		writeBadRequest(w, "invalid email address")
		return
	}

	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Role != nil {
		user.Role = *req.Role
	}

	if err := s.users.Update(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrEmailExists) {
			writeConflict(w, "email already exists")
			return
		}
		s.logger.Error("update user failed", "error", err)
		writeInternalError(w, "failed to update user")
		return
	}

	s.logger.Info("user updated", "user_id", id, "updated_by", claims.Subject)
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes a user account and drops their engine.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFromContext(r.Context())

	// Cannot delete yourself
	if id == claims.Subject {
		writeForbidden(w, "cannot delete your own account")
		return
	}

	if err := s.users.Delete(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("delete user failed", "error", err)
		writeInternalError(w, "failed to delete user")
		return
	}

	// The dashboard_config row cascades with the account; the live
	// engine goes with it.
	s.dashboards.Drop(id)

	s.logger.Info("user deleted", "user_id", id, "deleted_by", claims.Subject)
	w.WriteHeader(http.StatusNoContent)
}

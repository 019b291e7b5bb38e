package server

import (
	"net/http"

	"github.com/quay-labs/rosterd/account"
	"github.com/quay-labs/rosterd/auth"
	"github.com/quay-labs/rosterd/store"
)

// CreateUserRequest is the JSON body for POST /api/users.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UpdateUserRequest is the JSON body for PATCH /api/users/{id}. Absent
// fields leave the account untouched.
type UpdateUserRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

// UserResponse wraps a single account.
type UserResponse struct {
	User store.UserRecord `json:"user"`
}

// UsersResponse wraps the full account listing.
type UsersResponse struct {
	Users []store.UserRecord `json:"users"`
}

// handleMe returns the authenticated caller's own account.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	user, err := s.service.GetSelf(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

// handleListUsers returns every account. Admin only.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	users, err := s.service.ListAll(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if users == nil {
		users = []store.UserRecord{}
	}
	writeJSON(w, http.StatusOK, UsersResponse{Users: users})
}

// handleCreateUser creates an account with an explicit role. Admin only.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	var req CreateUserRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := s.service.CreateUser(r.Context(), id, req.Email, req.Name, req.Password, role)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserResponse{User: user})
}

// handleUpdateUser applies a partial update to the target account. Admin
// only.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	upd := account.UserUpdate{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	}
	if req.Role != nil {
		role, err := auth.ParseRole(*req.Role)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		upd.Role = &role
	}

	user, err := s.service.UpdateUser(r.Context(), id, r.PathValue("id"), upd)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

// handleDeleteUser removes the target account and its sessions. Admin
// only; deleting yourself is refused.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveIdentity(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteUser(r.Context(), id, r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

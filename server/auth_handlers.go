package server

import (
	"encoding/json"
	"net/http"

	"github.com/quay-labs/rosterd/store"
)

// RegisterRequest is the JSON body for POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is the JSON response for successful register/login calls.
type AuthResponse struct {
	User  store.UserRecord `json:"user"`
	Token string           `json:"token"`
}

// handleRegister creates a user-role account and logs it in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.service.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{User: result.User, Token: result.Token})
}

// handleLogin authenticates credentials and mints a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{User: result.User, Token: result.Token})
}

// handleLogout revokes the presented session token. Revoking nothing is
// still a success.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Logout(r.Context(), bearerToken(r)); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// decodeBody decodes a JSON request body, translating parse failures and
// oversized bodies into the proper statuses.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds size limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
